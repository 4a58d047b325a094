package state

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batcom/engine/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResourcePoolLoadGuardrails(t *testing.T) {
	p := NewResourcePool(testLogger())
	err := p.LoadGuardrails(map[string]map[string]any{
		"EAST": {
			"infantry_squad": map[string]any{
				"classnames": []any{"O_Soldier_F", "O_medic_F"},
				"max":        4,
			},
			"attack_helicopter": map[string]any{
				"classnames":   []any{"O_Heli_Attack_02_dynamicLoadout_F"},
				"max":          1,
				"defense_only": true,
			},
		},
	})
	require.NoError(t, err)

	remaining, ok := p.Remaining(model.SideEast, "infantry_squad")
	require.True(t, ok)
	assert.Equal(t, 4, remaining)
	assert.False(t, p.DefenseOnly(model.SideEast, "infantry_squad"))
	assert.False(t, p.IsVehicle(model.SideEast, "infantry_squad"))

	assert.True(t, p.DefenseOnly(model.SideEast, "attack_helicopter"))
	assert.True(t, p.IsVehicle(model.SideEast, "attack_helicopter"))

	_, ok = p.Remaining(model.SideWest, "infantry_squad")
	assert.False(t, ok)
}

func TestResourcePoolLoadGuardrailsErrors(t *testing.T) {
	p := NewResourcePool(testLogger())

	err := p.LoadGuardrails(map[string]map[string]any{
		"MARTIAN": {"squad": map[string]any{"max": 1}},
	})
	assert.ErrorContains(t, err, "unknown side")

	err = p.LoadGuardrails(map[string]map[string]any{
		"EAST": {"squad": map[string]any{"classnames": []any{"x"}, "max": -1}},
	})
	assert.ErrorContains(t, err, "negative capacity")
}

func TestResourcePoolZeroCapacityRejectsEveryDeploy(t *testing.T) {
	p := NewResourcePool(testLogger())
	err := p.LoadGuardrails(map[string]map[string]any{
		"EAST": {"squad": map[string]any{"classnames": []any{"x"}, "max": 0}},
	})
	require.NoError(t, err)

	remaining, ok := p.Remaining(model.SideEast, "squad")
	require.True(t, ok)
	assert.Zero(t, remaining)
	assert.Error(t, p.Reserve(model.SideEast, "squad"))
}

func TestResourcePoolReserve(t *testing.T) {
	p := NewResourcePool(testLogger())
	require.NoError(t, p.AddAsset(model.SideEast, "motorized_patrol", []string{"O_MRAP_02_hmg_F"}, 2, false, ""))

	require.NoError(t, p.Reserve(model.SideEast, "motorized_patrol"))
	require.NoError(t, p.Reserve(model.SideEast, "motorized_patrol"))

	remaining, ok := p.Remaining(model.SideEast, "motorized_patrol")
	require.True(t, ok)
	assert.Zero(t, remaining)
	assert.ErrorContains(t, p.Reserve(model.SideEast, "motorized_patrol"), "exhausted")

	assert.ErrorContains(t, p.Reserve(model.SideEast, "nonexistent"), "not in pool")
}

func TestResourcePoolAddRemoveClear(t *testing.T) {
	p := NewResourcePool(testLogger())
	require.NoError(t, p.AddAsset(model.SideEast, "squad", []string{"O_Soldier_F"}, 3, false, ""))

	// Adding again tops up capacity.
	require.NoError(t, p.AddAsset(model.SideEast, "squad", nil, 2, false, ""))
	remaining, _ := p.Remaining(model.SideEast, "squad")
	assert.Equal(t, 5, remaining)

	assert.Error(t, p.AddAsset(model.SideEast, "squad", nil, 0, false, ""))

	require.NoError(t, p.RemoveAsset(model.SideEast, "squad"))
	_, ok := p.Remaining(model.SideEast, "squad")
	assert.False(t, ok)
	assert.Error(t, p.RemoveAsset(model.SideEast, "squad"))

	require.NoError(t, p.AddAsset(model.SideEast, "squad", nil, 1, false, ""))
	p.ClearSide(model.SideEast)
	_, ok = p.Remaining(model.SideEast, "squad")
	assert.False(t, ok)
}

func TestClassForAsset(t *testing.T) {
	tests := []struct {
		assetType string
		want      model.TacticalClass
	}{
		{"infantry_squad", model.ClassInfantry},
		{"transport_helicopter", model.ClassAirRotary},
		{"cas_jet", model.ClassAirFixed},
		{"armor_platoon", model.ClassArmor},
		{"mechanized_section", model.ClassMechanized},
		{"transport_truck", model.ClassMotorized},
		{"patrol_boat", model.ClassNaval},
		{"static_weapons_team", model.ClassInfantry},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classForAsset(tt.assetType), tt.assetType)
	}
}

func TestLoadResourceTemplate(t *testing.T) {
	p := NewResourcePool(testLogger())
	require.NoError(t, p.LoadResourceTemplate("mechanized_east", model.SideEast))

	remaining, ok := p.Remaining(model.SideEast, "armor_platoon")
	require.True(t, ok)
	assert.Equal(t, 2, remaining)
	assert.True(t, p.DefenseOnly(model.SideEast, "armor_platoon"))
	assert.True(t, p.IsVehicle(model.SideEast, "armor_platoon"))

	assert.ErrorContains(t, p.LoadResourceTemplate("no_such_template", model.SideEast), "unknown resource template")
}

func TestListResourceTemplates(t *testing.T) {
	names := ListResourceTemplates()
	assert.Contains(t, names, "motorized_east")
	assert.Contains(t, names, "defense_garrison")
	assert.IsIncreasing(t, names)
}

func TestResourcePoolDescribe(t *testing.T) {
	p := NewResourcePool(testLogger())
	require.NoError(t, p.AddAsset(model.SideEast, "squad", []string{"O_Soldier_F"}, 3, false, "rifle squad"))
	require.NoError(t, p.Reserve(model.SideEast, "squad"))

	desc := p.Describe()
	east, ok := desc["EAST"].(map[string]any)
	require.True(t, ok)
	squad, ok := east["squad"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3, squad["max"])
	assert.Equal(t, 1, squad["used"])
	assert.Equal(t, 2, squad["remaining"])
}
