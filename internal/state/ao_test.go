package state

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batcom/engine/internal/model"
)

func newTestAOManager(t *testing.T) *AOManager {
	t.Helper()
	m, err := NewAOManager(AOConfig{}, testLogger())
	require.NoError(t, err)
	return m
}

func TestAOLifecycle(t *testing.T) {
	m := newTestAOManager(t)
	assert.Equal(t, AOIdle, m.Phase())
	assert.Nil(t, m.Current())

	// end_ao is invalid outside Running.
	_, err := m.EndAO()
	assert.Error(t, err)

	require.NoError(t, m.StartAO("AO_1", "Altis", "op_dawn", 1))
	assert.Equal(t, AORunning, m.Phase())
	require.NotNil(t, m.Current())

	// A second start while running is rejected.
	assert.Error(t, m.StartAO("AO_2", "Altis", "op_dawn", 2))

	analysis, err := m.EndAO()
	require.NoError(t, err)
	assert.Equal(t, AOEnded, m.Phase())
	assert.Equal(t, "AO_1", analysis.AO.ID)
	assert.False(t, analysis.AO.EndedAt.IsZero())

	// Ended permits a fresh start.
	require.NoError(t, m.StartAO("AO_2", "Altis", "op_dawn", 2))
}

func TestAORecordCycleMonotonic(t *testing.T) {
	m := newTestAOManager(t)
	require.NoError(t, m.StartAO("AO_1", "Altis", "op_dawn", 1))

	require.NoError(t, m.RecordCycle(CycleRecord{Cycle: 1, Accepted: make([]model.Command, 2)}))
	require.NoError(t, m.RecordCycle(CycleRecord{Cycle: 2, Accepted: make([]model.Command, 1)}))
	assert.Error(t, m.RecordCycle(CycleRecord{Cycle: 2}))
	assert.Error(t, m.RecordCycle(CycleRecord{Cycle: 1}))

	analysis, err := m.EndAO()
	require.NoError(t, err)
	assert.Equal(t, 2, analysis.TotalCycles)
	assert.Equal(t, 3, analysis.TotalOrders)
}

func TestAORecordCycleOutsideRunningDropped(t *testing.T) {
	m := newTestAOManager(t)
	assert.NoError(t, m.RecordCycle(CycleRecord{Cycle: 1}))
	require.NoError(t, m.StartAO("AO_1", "Altis", "op_dawn", 1))
	analysis, err := m.EndAO()
	require.NoError(t, err)
	assert.Zero(t, analysis.TotalCycles)
}

func TestContributionPoints(t *testing.T) {
	tests := []struct {
		event   string
		points  int
		capture bool
	}{
		{"commander_killed", 30, true},
		{"commander_captured", 40, true},
		{"hvt_killed", 25, true},
		{"hvt_captured", 35, true},
		{"tower_destroyed", 20, false},
		{"jammer_destroyed", 20, false},
		{"depot_destroyed", 15, false},
		{"small_objective", 5, false},
	}
	for _, tt := range tests {
		points, capture, err := contributionPoints(tt.event)
		require.NoError(t, err, tt.event)
		assert.Equal(t, tt.points, points, tt.event)
		assert.Equal(t, tt.capture, capture, tt.event)
	}

	_, _, err := contributionPoints("teleported_home")
	assert.Error(t, err)
}

func TestAOProgressScoring(t *testing.T) {
	m := newTestAOManager(t)
	require.NoError(t, m.StartAO("AO_1", "Altis", "op_dawn", 1))

	require.NoError(t, m.RecordProgress("commander_captured", "uid_alpha", []string{"uid_bravo", "uid_alpha"}))
	require.NoError(t, m.RecordProgress("small_objective", "uid_bravo", nil))
	assert.Error(t, m.RecordProgress("bogus_event", "uid_alpha", nil))

	analysis, err := m.EndAO()
	require.NoError(t, err)
	require.Len(t, analysis.HVTPlayers, 2)

	// alpha: 40 contribution + 1 capture event; bravo: 10 proximity + 5.
	top := analysis.HVTPlayers[0]
	assert.Equal(t, "uid_alpha", top.UID)
	assert.Equal(t, 40, top.Contributions)
	assert.Equal(t, 1, top.CaptureEvents)
	assert.Equal(t, 40*1.0+1*3.0, top.Composite)

	second := analysis.HVTPlayers[1]
	assert.Equal(t, "uid_bravo", second.UID)
	assert.Equal(t, 15, second.Contributions)
}

func TestAOHVTTopNTruncation(t *testing.T) {
	m, err := NewAOManager(AOConfig{TopPlayers: 2, TopGroups: 1}, testLogger())
	require.NoError(t, err)
	require.NoError(t, m.StartAO("AO_1", "Altis", "op_dawn", 1))

	for i := 0; i < 5; i++ {
		require.NoError(t, m.RecordProgress("small_objective", fmt.Sprintf("uid_%d", i), nil))
	}

	snap := &model.Snapshot{ControlledSides: []model.Side{model.SideEast}}
	m.RecordCasualties([]model.CasualtyEvent{
		{VictimID: "u1", KillerID: "GRP_EAST_1", KillerSide: model.SideEast},
		{VictimID: "u2", KillerID: "GRP_EAST_1", KillerSide: model.SideEast},
		{VictimID: "u3", KillerID: "GRP_EAST_2", KillerSide: model.SideEast},
		{VictimID: "u4", KillerID: "uid_0", KillerSide: model.SideWest},
	}, snap)

	analysis, err := m.EndAO()
	require.NoError(t, err)
	assert.Len(t, analysis.HVTPlayers, 2)
	require.Len(t, analysis.HVTGroups, 1)
	assert.Equal(t, "GRP_EAST_1", analysis.HVTGroups[0].GroupID)
	assert.Equal(t, 2, analysis.HVTGroups[0].CasualtiesInflicted)

	// The player kill landed on uid_0's score.
	for _, p := range analysis.HVTPlayers {
		if p.UID == "uid_0" {
			assert.Equal(t, 1, p.Kills)
		}
	}
}

func TestAORetentionAndSummary(t *testing.T) {
	m := newTestAOManager(t)
	assert.Empty(t, m.PreviousAOSummary())

	for i := 1; i <= 4; i++ {
		require.NoError(t, m.StartAO(fmt.Sprintf("AO_%d", i), "Altis", "op_dawn", i))
		require.NoError(t, m.RecordCycle(CycleRecord{Cycle: 1, Accepted: make([]model.Command, i)}))
		_, err := m.EndAO()
		require.NoError(t, err)
	}

	summary := m.PreviousAOSummary()
	// Only the three most recent AOs are retained.
	assert.NotContains(t, summary, "AO_1 ")
	assert.Contains(t, summary, "AO_2")
	assert.Contains(t, summary, "AO_3")
	assert.Contains(t, summary, "AO_4")
	assert.Contains(t, summary, "PREVIOUS AO INTEL:")
}

func TestAOProximityScoring(t *testing.T) {
	m := newTestAOManager(t)
	require.NoError(t, m.StartAO("AO_1", "Altis", "op_dawn", 1))

	snap := &model.Snapshot{
		Objectives: []model.Objective{
			{ID: "OBJ_A", Position: model.Position{X: 1000, Y: 1000}, Radius: 50, State: model.ObjectiveActive},
			{ID: "OBJ_DONE", Position: model.Position{X: 1000, Y: 1000}, Radius: 50, State: model.ObjectiveCaptured},
		},
		Players: []model.Player{
			{UID: "near", Name: "Near", Position: model.Position{X: 1010, Y: 1000}},
			{UID: "far", Name: "Far", Position: model.Position{X: 2000, Y: 2000}},
		},
	}
	m.RecordProximity(snap, 10)

	analysis, err := m.EndAO()
	require.NoError(t, err)
	require.NotEmpty(t, analysis.HVTPlayers)
	assert.Equal(t, "near", analysis.HVTPlayers[0].UID)
	// Terminal objectives do not double-count presence.
	assert.Equal(t, 10.0, analysis.HVTPlayers[0].ProximityTime)
}

func TestAOManualHVTAndProgress(t *testing.T) {
	m := newTestAOManager(t)
	_, err := m.Progress()
	assert.Error(t, err)

	require.NoError(t, m.StartAO("AO_1", "Altis", "op_dawn", 1))
	m.SetHVT([]string{"uid_cmd"})
	require.NoError(t, m.RecordCycle(CycleRecord{Cycle: 1, Accepted: make([]model.Command, 2)}))

	progress, err := m.Progress()
	require.NoError(t, err)
	assert.Equal(t, "AO_1", progress["ao_id"])
	assert.Equal(t, 1, progress["cycles"])
	assert.Equal(t, 2, progress["total_orders"])
	assert.Equal(t, []string{"uid_cmd"}, progress["manual_hvt"])
}
