package state

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batcom/engine/internal/model"
)

func TestEngineSides(t *testing.T) {
	e := NewEngine(testLogger())
	require.NoError(t, e.SetSides([]string{"east", "INDEPENDENT"}))
	assert.Equal(t, []model.Side{model.SideEast, model.SideGuer}, e.ControlledSides)

	require.NoError(t, e.SetAllies([]string{"WEST"}))
	assert.Equal(t, []model.Side{model.SideWest}, e.FriendlySides)

	assert.Error(t, e.SetSides([]string{"MARTIAN"}))
}

func TestEngineApplySnapshotDefaults(t *testing.T) {
	e := NewEngine(testLogger())
	snap := &model.Snapshot{
		ControlledSides: []model.Side{model.SideEast},
		FriendlySides:   []model.Side{model.SideWest},
		MissionIntent:   "Hold the town.",
	}
	e.ApplySnapshot(snap)
	assert.Equal(t, []model.Side{model.SideEast}, e.ControlledSides)
	assert.Equal(t, []model.Side{model.SideWest}, e.FriendlySides)
	assert.Equal(t, "Hold the town.", e.Intent)

	// Admin settings are not overwritten by later snapshots.
	e.SetBrief("Push north.", false)
	require.NoError(t, e.SetSides([]string{"INDEPENDENT"}))
	later := &model.Snapshot{
		ControlledSides: []model.Side{model.SideEast},
		MissionIntent:   "Something else.",
	}
	e.ApplySnapshot(later)
	assert.Equal(t, "Push north.", e.Intent)
	assert.Equal(t, []model.Side{model.SideGuer}, e.ControlledSides)
	assert.Equal(t, []model.Side{model.SideGuer}, later.ControlledSides)
}

func TestEngineObjectivesMerge(t *testing.T) {
	e := NewEngine(testLogger())
	e.ApplySnapshot(&model.Snapshot{
		Objectives: []model.Objective{
			{ID: "OBJ_A", Priority: 5, State: model.ObjectiveActive},
			{ID: "OBJ_B", Priority: 3, State: model.ObjectiveActive},
		},
	})
	require.NoError(t, e.InjectObjective(model.Objective{ID: "OBJ_A", Priority: 9, State: model.ObjectiveActive}))
	require.NoError(t, e.InjectObjective(model.Objective{ID: "OBJ_C", Priority: 7, State: model.ObjectiveActive}))
	assert.Error(t, e.InjectObjective(model.Objective{}))

	objs := e.Objectives()
	assert.Len(t, objs, 3)
	byID := make(map[string]model.Objective)
	for _, o := range objs {
		byID[o.ID] = o
	}
	assert.Equal(t, 9.0, byID["OBJ_A"].Priority, "admin objective wins on collision")
	assert.Equal(t, 3.0, byID["OBJ_B"].Priority)
	assert.Equal(t, 7.0, byID["OBJ_C"].Priority)
}

func TestEngineLiveUnits(t *testing.T) {
	e := NewEngine(testLogger())
	assert.Empty(t, e.LiveUnits())

	e.ApplySnapshot(&model.Snapshot{
		Groups: []model.Group{
			{ID: "g1", Side: model.SideEast, UnitCount: 8},
			{ID: "g2", Side: model.SideEast, UnitCount: 4},
			{ID: "g3", Side: model.SideWest, UnitCount: 6},
		},
	})
	counts := e.LiveUnits()
	assert.Equal(t, 12, counts[model.SideEast])
	assert.Equal(t, 6, counts[model.SideWest])
}

func TestEngineOrderHistoryBounded(t *testing.T) {
	e := NewEngine(testLogger())
	for i := 0; i < maxOrderHistory+5; i++ {
		e.AppendOrderHistory(fmt.Sprintf("cycle %d", i))
	}
	assert.Len(t, e.OrderHistory, 5, "prompt history keeps the last 5 cycles")
	assert.Equal(t, "cycle 5", e.OrderHistory[0])
	assert.Equal(t, "cycle 9", e.OrderHistory[4])
}

func TestEngineControlledGroupsAndKeys(t *testing.T) {
	e := NewEngine(testLogger())
	e.SetControlledGroups([]string{"GRP_1", "GRP_2"})
	assert.True(t, e.ControlledGroupIDs["GRP_1"])
	e.SetControlledGroups(nil)
	assert.Empty(t, e.ControlledGroupIDs)

	e.SetAPIKey("gemini", "k1")
	assert.Equal(t, "k1", e.SessionKeys["gemini"])

	e.AppendOrderHistory("a")
	e.SetBrief("new intent", true)
	assert.Empty(t, e.OrderHistory)
	assert.Equal(t, "new intent", e.Intent)
}
