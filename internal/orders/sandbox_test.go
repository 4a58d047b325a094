package orders

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batcom/engine/internal/geo"
	"github.com/batcom/engine/internal/model"
)

// fakePool is a minimal in-memory Pool for sandbox tests.
type fakePool struct {
	remaining   map[string]int
	defenseOnly map[string]bool
	vehicle     map[string]bool
	reserved    int
}

func poolKey(side model.Side, asset string) string { return string(side) + "/" + asset }

func (p *fakePool) Remaining(side model.Side, asset string) (int, bool) {
	n, ok := p.remaining[poolKey(side, asset)]
	return n, ok
}

func (p *fakePool) DefenseOnly(side model.Side, asset string) bool {
	return p.defenseOnly[poolKey(side, asset)]
}

func (p *fakePool) IsVehicle(side model.Side, asset string) bool {
	return p.vehicle[poolKey(side, asset)]
}

func (p *fakePool) Reserve(side model.Side, asset string) error {
	k := poolKey(side, asset)
	if p.remaining[k] <= 0 {
		return errors.New("pool exhausted")
	}
	p.remaining[k]--
	p.reserved++
	return nil
}

func testSnapshot() *model.Snapshot {
	return &model.Snapshot{
		ControlledSides: []model.Side{model.SideEast},
		Groups: []model.Group{
			{ID: "GRP_EAST_1", Side: model.SideEast, IsControlled: true, UnitCount: 8,
				Position: model.Position{X: 5050, Y: 5050}},
			{ID: "GRP_EAST_2", Side: model.SideEast, IsControlled: true, UnitCount: 4,
				Position: model.Position{X: 5100, Y: 5000}},
			{ID: "GRP_WEST_1", Side: model.SideWest, UnitCount: 6,
				Position: model.Position{X: 5300, Y: 5100}},
		},
	}
}

func testBounds(t *testing.T) geo.Bounds {
	t.Helper()
	b, err := geo.Circle(model.Position{X: 5000, Y: 5000}, 1500)
	require.NoError(t, err)
	return b
}

func testSandbox(t *testing.T, mutate func(*SandboxConfig)) *Sandbox {
	t.Helper()
	cfg := SandboxConfig{
		Snapshot:        testSnapshot(),
		Bounds:          testBounds(t),
		Enabled:         true,
		MaxUnitsPerSide: 20,
		LiveUnits:       map[model.Side]int{model.SideEast: 12},
		Cycle:           3,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewSandbox(cfg, nil)
}

func defendOrder(group string, prio float64) model.Order {
	return model.Order{
		Type:    model.CmdDefendArea,
		GroupID: group,
		Params: model.OrderParams{
			Position: &model.Position{X: 5000, Y: 5000},
			Radius:   150,
		},
		Priority: &prio,
	}
}

func TestValidateAccepts(t *testing.T) {
	s := testSandbox(t, nil)
	cmd, rej := s.Validate(defendOrder("GRP_EAST_1", 9))
	require.Nil(t, rej)
	assert.True(t, cmd.Validated)
	assert.Equal(t, 9, cmd.ExecPriority)
	assert.Equal(t, 3, cmd.Cycle)
}

func TestValidateDefaultPriority(t *testing.T) {
	s := testSandbox(t, nil)
	order := defendOrder("GRP_EAST_1", 0)
	order.Priority = nil
	cmd, rej := s.Validate(order)
	require.Nil(t, rej)
	assert.Equal(t, DefaultPriority, cmd.ExecPriority)
}

func TestValidatePriorityClamp(t *testing.T) {
	s := testSandbox(t, nil)
	cmd, rej := s.Validate(defendOrder("GRP_EAST_1", 99))
	require.Nil(t, rej)
	assert.Equal(t, 10, cmd.ExecPriority)

	cmd, rej = s.Validate(defendOrder("GRP_EAST_1", -4))
	require.Nil(t, rej)
	assert.Equal(t, 0, cmd.ExecPriority)
}

func TestValidateBlockList(t *testing.T) {
	s := testSandbox(t, func(cfg *SandboxConfig) {
		cfg.BlockedCommands = []model.CommandType{model.CmdDefendArea}
	})
	_, rej := s.Validate(defendOrder("GRP_EAST_1", 5))
	require.NotNil(t, rej)
	assert.Contains(t, rej.Reason, "blocked")
}

func TestValidateAllowList(t *testing.T) {
	s := testSandbox(t, func(cfg *SandboxConfig) {
		cfg.AllowedCommands = []model.CommandType{model.CmdMoveTo}
	})
	_, rej := s.Validate(defendOrder("GRP_EAST_1", 5))
	require.NotNil(t, rej)
	assert.Contains(t, rej.Reason, "allow-list")
}

func TestValidateSchema(t *testing.T) {
	s := testSandbox(t, nil)
	tests := []struct {
		name  string
		order model.Order
	}{
		{"move_to without position", model.Order{Type: model.CmdMoveTo, GroupID: "GRP_EAST_1"}},
		{"patrol_route single waypoint", model.Order{Type: model.CmdPatrolRoute, GroupID: "GRP_EAST_1",
			Params: model.OrderParams{Waypoints: []model.Position{{X: 1, Y: 2}}}}},
		{"transport without dropoff", model.Order{Type: model.CmdTransportGroup, GroupID: "GRP_EAST_1",
			Params: model.OrderParams{PassengerGroupID: "GRP_EAST_2", Pickup: &model.Position{X: 5000, Y: 5000}}}},
		{"deploy without classes", model.Order{Type: model.CmdDeployAsset,
			Params: model.OrderParams{Side: "EAST", Position: &model.Position{X: 5000, Y: 5000}}}},
		{"unknown type", model.Order{Type: "teleport", GroupID: "GRP_EAST_1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rej := s.Validate(tt.order)
			require.NotNil(t, rej)
		})
	}
}

func TestValidateGroupChecks(t *testing.T) {
	s := testSandbox(t, nil)

	_, rej := s.Validate(defendOrder("GRP_UNKNOWN", 5))
	require.NotNil(t, rej)
	assert.Contains(t, rej.Reason, "not tracked")

	_, rej = s.Validate(defendOrder("GRP_WEST_1", 5))
	require.NotNil(t, rej)
	assert.Contains(t, rej.Reason, "uncontrolled side")
}

func TestValidateControlledGroupList(t *testing.T) {
	s := testSandbox(t, func(cfg *SandboxConfig) {
		cfg.ControlledGroups = map[string]bool{"GRP_EAST_1": true}
		cfg.PendingGroups = map[string]model.Side{"DEPLOY_1": model.SideEast}
	})

	_, rej := s.Validate(defendOrder("GRP_EAST_1", 5))
	assert.Nil(t, rej)

	// tracked, controlled side, but not on the explicit list
	_, rej = s.Validate(defendOrder("GRP_EAST_2", 5))
	require.NotNil(t, rej)
	assert.Contains(t, rej.Reason, "controlled group list")

	// groups spawned this cycle are exempt
	_, rej = s.Validate(defendOrder("DEPLOY_1", 5))
	assert.Nil(t, rej)
}

func TestValidatePendingGroupReference(t *testing.T) {
	s := testSandbox(t, func(cfg *SandboxConfig) {
		cfg.PendingGroups = map[string]model.Side{"DEPLOY_1": model.SideEast}
	})
	_, rej := s.Validate(defendOrder("DEPLOY_1", 5))
	assert.Nil(t, rej, "orders may reference groups announced by spawn orders in the same reply")
}

func TestValidateOutOfBounds(t *testing.T) {
	s := testSandbox(t, nil)
	order := defendOrder("GRP_EAST_1", 5)
	order.Params.Position = &model.Position{X: 20000, Y: 20000}

	_, rej := s.Validate(order)
	require.NotNil(t, rej)
	assert.Contains(t, rej.Reason, "outside AO")
}

func TestValidateUndefinedBoundsAcceptsFinite(t *testing.T) {
	s := testSandbox(t, func(cfg *SandboxConfig) {
		cfg.Bounds = geo.Undefined()
	})
	order := defendOrder("GRP_EAST_1", 5)
	order.Params.Position = &model.Position{X: 1e7, Y: 1e7}
	_, rej := s.Validate(order)
	assert.Nil(t, rej)
}

func deployOrder(asset string, classes ...string) model.Order {
	return model.Order{
		Type: model.CmdDeployAsset,
		Params: model.OrderParams{
			Side:        "EAST",
			AssetType:   asset,
			UnitClasses: classes,
			Position:    &model.Position{X: 5200, Y: 5200},
		},
	}
}

func TestValidateDeployPool(t *testing.T) {
	pool := &fakePool{
		remaining: map[string]int{"EAST/infantry_squad": 2},
	}
	s := testSandbox(t, func(cfg *SandboxConfig) { cfg.Pool = pool })

	// two deploys consume the pool
	for i := 0; i < 2; i++ {
		_, rej := s.Validate(deployOrder("infantry_squad", "A", "B", "C"))
		require.Nil(t, rej, "deploy %d should pass", i)
	}
	assert.Equal(t, 2, pool.reserved)

	// third is rejected, counters unchanged
	_, rej := s.Validate(deployOrder("infantry_squad", "A", "B", "C"))
	require.NotNil(t, rej)
	assert.Contains(t, rej.Reason, "pool exhausted")
	assert.Equal(t, 2, pool.reserved)
}

func TestValidateDeployUnknownAsset(t *testing.T) {
	pool := &fakePool{remaining: map[string]int{}}
	s := testSandbox(t, func(cfg *SandboxConfig) { cfg.Pool = pool })

	_, rej := s.Validate(deployOrder("tank_platoon", "T1"))
	require.NotNil(t, rej)
	assert.Contains(t, rej.Reason, "no pool entry")
}

func TestValidateDefenseOnlyAsset(t *testing.T) {
	pool := &fakePool{
		remaining:   map[string]int{"EAST/at_team": 1},
		defenseOnly: map[string]bool{"EAST/at_team": true},
	}

	s := testSandbox(t, func(cfg *SandboxConfig) { cfg.Pool = pool })
	_, rej := s.Validate(deployOrder("at_team", "AT1"))
	require.NotNil(t, rej)
	assert.Contains(t, rej.Reason, "defense-only")

	s = testSandbox(t, func(cfg *SandboxConfig) {
		cfg.Pool = pool
		cfg.DefensePhase = true
	})
	_, rej = s.Validate(deployOrder("at_team", "AT1"))
	assert.Nil(t, rej)
}

func TestValidateVehicleSeed(t *testing.T) {
	pool := &fakePool{
		remaining: map[string]int{"EAST/mech_platoon": 1},
		vehicle:   map[string]bool{"EAST/mech_platoon": true},
	}
	s := testSandbox(t, func(cfg *SandboxConfig) { cfg.Pool = pool })

	cmd, rej := s.Validate(deployOrder("mech_platoon", "V1", "V2"))
	require.Nil(t, rej)
	require.NotNil(t, cmd.Params.Seed, "vehicle deploys get a seed point")
	assert.False(t, testBounds(t).Contains(*cmd.Params.Seed), "seed lies outside the AO")
	assert.True(t, testBounds(t).Contains(*cmd.Params.Position), "destination stays inside")
}

func TestValidateSpawnCap(t *testing.T) {
	pool := &fakePool{remaining: map[string]int{"EAST/infantry_squad": 10}}
	s := testSandbox(t, func(cfg *SandboxConfig) {
		cfg.Pool = pool
		cfg.MaxUnitsPerSide = 16
		cfg.LiveUnits = map[model.Side]int{model.SideEast: 12}
	})

	// 12 live + 3 = 15, fits
	classes := []string{"A", "B", "C"}
	_, rej := s.Validate(deployOrder("infantry_squad", classes...))
	require.Nil(t, rej)

	// 15 + 3 = 18 > 16: the cap sees units admitted earlier this reply
	_, rej = s.Validate(deployOrder("infantry_squad", classes...))
	require.NotNil(t, rej)
	assert.Contains(t, rej.Reason, "max units per side")
}

func TestValidateRadiusRange(t *testing.T) {
	s := testSandbox(t, nil)
	order := defendOrder("GRP_EAST_1", 5)
	order.Params.Radius = MaxRadius + 1
	_, rej := s.Validate(order)
	require.NotNil(t, rej)
	assert.Contains(t, rej.Reason, "radius")
}

func TestValidateSandboxDisabled(t *testing.T) {
	s := testSandbox(t, func(cfg *SandboxConfig) { cfg.Enabled = false })

	// uncontrolled group and out-of-bounds position pass when disabled
	order := defendOrder("GRP_WEST_1", 5)
	order.Params.Position = &model.Position{X: 90000, Y: 90000}
	_, rej := s.Validate(order)
	assert.Nil(t, rej)

	// schema violations still fail
	_, rej = s.Validate(model.Order{Type: model.CmdMoveTo, GroupID: "GRP_WEST_1"})
	assert.NotNil(t, rej)
}

func TestValidateFirstFailureWins(t *testing.T) {
	// order fails both the allow-list and schema; the allow-list reason wins
	s := testSandbox(t, func(cfg *SandboxConfig) {
		cfg.BlockedCommands = []model.CommandType{model.CmdMoveTo}
	})
	_, rej := s.Validate(model.Order{Type: model.CmdMoveTo, GroupID: "GRP_EAST_1"})
	require.NotNil(t, rej)
	assert.Contains(t, rej.Reason, "blocked")
}

func TestValidateManyAccepted(t *testing.T) {
	s := testSandbox(t, nil)
	for i := 0; i < 5; i++ {
		order := defendOrder("GRP_EAST_1", float64(i+3))
		_, rej := s.Validate(order)
		require.Nil(t, rej, fmt.Sprintf("order %d", i))
	}
}
