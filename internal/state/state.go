package state

import (
	"fmt"
	"log/slog"

	"github.com/batcom/engine/internal/geo"
	"github.com/batcom/engine/internal/model"
)

// Engine is the mutable commander-facing session state. All access happens
// on the engine loop, so there is no locking here.
type Engine struct {
	Deployed bool
	Intent   string
	Task     map[string]any

	FriendlySides   []model.Side
	ControlledSides []model.Side
	// ControlledGroupIDs restricts command targets when non-empty; empty
	// means every group on a controlled side is fair game.
	ControlledGroupIDs map[string]bool

	Bounds       geo.Bounds
	DefensePhase bool

	// SessionKeys are admin-supplied API keys, keyed by provider name. They
	// outrank config-file and environment keys.
	SessionKeys map[string]string

	// LastSnapshot is the most recent accepted snapshot.
	LastSnapshot *model.Snapshot
	// AdminObjectives are injected via commanderTask and merged over
	// snapshot objectives by ID.
	AdminObjectives map[string]model.Objective

	// OrderHistory is the per-session tail of issued orders, rendered into
	// the cacheable prompt block.
	OrderHistory []string

	logger *slog.Logger
}

// maxOrderHistory bounds the prompt history block to the last 5 cycles.
const maxOrderHistory = 5

// NewEngine creates an undeployed engine state.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{
		ControlledGroupIDs: make(map[string]bool),
		SessionKeys:        make(map[string]string),
		AdminObjectives:    make(map[string]model.Objective),
		Bounds:             geo.Undefined(),
		logger:             logger,
	}
}

// SetSides replaces the controlled side set.
func (e *Engine) SetSides(names []string) error {
	sides, err := parseSides(names)
	if err != nil {
		return err
	}
	e.ControlledSides = sides
	return nil
}

// SetAllies replaces the friendly (player) side set.
func (e *Engine) SetAllies(names []string) error {
	sides, err := parseSides(names)
	if err != nil {
		return err
	}
	e.FriendlySides = sides
	return nil
}

func parseSides(names []string) ([]model.Side, error) {
	sides := make([]model.Side, 0, len(names))
	for _, n := range names {
		s, ok := model.NormalizeSide(n)
		if !ok {
			return nil, fmt.Errorf("unknown side %q", n)
		}
		sides = append(sides, s)
	}
	return sides, nil
}

// SetControlledGroups replaces the explicit control list. An empty list
// clears the restriction.
func (e *Engine) SetControlledGroups(ids []string) {
	e.ControlledGroupIDs = make(map[string]bool, len(ids))
	for _, id := range ids {
		e.ControlledGroupIDs[id] = true
	}
}

// SetBrief updates the commander intent, optionally dropping order history.
func (e *Engine) SetBrief(intent string, clearMemory bool) {
	e.Intent = intent
	if clearMemory {
		e.OrderHistory = nil
	}
}

// SetAPIKey stores an in-session provider key.
func (e *Engine) SetAPIKey(provider, key string) {
	e.SessionKeys[provider] = key
}

// InjectObjective upserts an admin-supplied objective.
func (e *Engine) InjectObjective(obj model.Objective) error {
	if obj.ID == "" {
		return fmt.Errorf("objective missing id")
	}
	e.AdminObjectives[obj.ID] = obj
	return nil
}

// ApplySnapshot stores the accepted snapshot and folds its side hints into
// the session when the admin has not set them explicitly.
func (e *Engine) ApplySnapshot(snap *model.Snapshot) {
	e.LastSnapshot = snap
	if len(e.ControlledSides) == 0 && len(snap.ControlledSides) > 0 {
		e.ControlledSides = snap.ControlledSides
	}
	if len(e.FriendlySides) == 0 && len(snap.FriendlySides) > 0 {
		e.FriendlySides = snap.FriendlySides
	}
	if snap.MissionIntent != "" && e.Intent == "" {
		e.Intent = snap.MissionIntent
	}
	// Snapshots evaluate against the session side sets from here on.
	snap.ControlledSides = e.ControlledSides
	snap.FriendlySides = e.FriendlySides
}

// Objectives merges snapshot objectives with admin-injected ones; admin
// entries win on ID collision.
func (e *Engine) Objectives() []model.Objective {
	var out []model.Objective
	seen := make(map[string]bool)
	if e.LastSnapshot != nil {
		for _, obj := range e.LastSnapshot.Objectives {
			if admin, ok := e.AdminObjectives[obj.ID]; ok {
				obj = admin
			}
			out = append(out, obj)
			seen[obj.ID] = true
		}
	}
	for id, obj := range e.AdminObjectives {
		if !seen[id] {
			out = append(out, obj)
		}
	}
	return out
}

// LiveUnits counts tracked units per side from the last snapshot.
func (e *Engine) LiveUnits() map[model.Side]int {
	counts := make(map[model.Side]int)
	if e.LastSnapshot == nil {
		return counts
	}
	for _, g := range e.LastSnapshot.Groups {
		counts[g.Side] += g.UnitCount
	}
	return counts
}

// AppendOrderHistory records an issued-orders line for the prompt block,
// keeping only the most recent entries.
func (e *Engine) AppendOrderHistory(line string) {
	e.OrderHistory = append(e.OrderHistory, line)
	if len(e.OrderHistory) > maxOrderHistory {
		e.OrderHistory = e.OrderHistory[len(e.OrderHistory)-maxOrderHistory:]
	}
}
