// Package snapshot normalizes raw world-state payloads from the host bridge
// into typed model.Snapshot values. Normalization is all-or-nothing: a
// malformed payload yields ErrBadSnapshot and no partial state.
package snapshot

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/batcom/engine/internal/model"
	"github.com/batcom/engine/internal/pairlist"
)

// ErrBadSnapshot is returned for any shape mismatch in the payload.
var ErrBadSnapshot = errors.New("bad snapshot payload")

// knowledgeFloor is the fog-of-war threshold below which unknown contacts are
// not admitted into the snapshot.
const knowledgeFloor = 1.5

// Normalizer converts bridge payloads to snapshots.
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer logging drops and warnings to logger.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// IngestRaw decodes a bridge pair-list string and normalizes it.
func (n *Normalizer) IngestRaw(raw string) (*model.Snapshot, error) {
	m, err := pairlist.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	return n.Ingest(m)
}

// Ingest builds a Snapshot from a decoded payload. Unknown keys are ignored;
// unknown side spellings and malformed required fields fail the whole
// snapshot.
func (n *Normalizer) Ingest(m *pairlist.Map) (*model.Snapshot, error) {
	snap := &model.Snapshot{}

	var ok bool
	if snap.MissionTime, ok = m.Float("mission_time"); !ok {
		return nil, fmt.Errorf("%w: missing mission_time", ErrBadSnapshot)
	}
	snap.Daytime, _ = m.Float("daytime")
	snap.WorldName, _ = m.String("world_name")
	snap.MissionName, _ = m.String("mission_name")
	snap.MissionIntent, _ = m.String("mission_intent")

	if w, ok := m.FloatSlice("weather"); ok {
		if len(w) != 4 {
			return nil, fmt.Errorf("%w: weather needs 4 values, got %d", ErrBadSnapshot, len(w))
		}
		snap.Weather = model.Weather{Overcast: w[0], Rain: w[1], Fog: w[2], Wind: w[3]}
	}

	var err error
	if snap.FriendlySides, err = sides(m, "friendly_sides"); err != nil {
		return nil, err
	}
	if snap.ControlledSides, err = sides(m, "controlled_sides"); err != nil {
		return nil, err
	}

	if dep, ok := m.Child("ai_deployment"); ok {
		snap.AIDeployment = make(map[model.Side]int, dep.Len())
		for _, key := range dep.Keys() {
			side, known := model.NormalizeSide(key)
			if !known {
				return nil, fmt.Errorf("%w: unknown side %q in ai_deployment", ErrBadSnapshot, key)
			}
			count, ok := dep.Int(key)
			if !ok {
				return nil, fmt.Errorf("%w: non-numeric deployment for %s", ErrBadSnapshot, side)
			}
			snap.AIDeployment[side] = count
		}
	}

	if vars, ok := m.Child("mission_variables"); ok {
		snap.MissionVariables = vars.ToAny()
	}

	if raw, ok := m.Slice("groups"); ok {
		for i, el := range raw {
			gm, ok := el.(*pairlist.Map)
			if !ok {
				return nil, fmt.Errorf("%w: group %d is not a record", ErrBadSnapshot, i)
			}
			g, err := n.parseGroup(gm)
			if err != nil {
				return nil, err
			}
			if !admitGroup(g) {
				n.logger.Debug("dropping low-knowledge contact", "group_id", g.ID, "knowledge", g.Knowledge)
				continue
			}
			snap.Groups = append(snap.Groups, g)
		}
	}

	if raw, ok := m.Slice("players"); ok {
		for i, el := range raw {
			pm, ok := el.(*pairlist.Map)
			if !ok {
				return nil, fmt.Errorf("%w: player %d is not a record", ErrBadSnapshot, i)
			}
			p, err := parsePlayer(pm)
			if err != nil {
				return nil, err
			}
			snap.Players = append(snap.Players, p)
		}
	}

	if raw, ok := m.Slice("objectives"); ok {
		for i, el := range raw {
			om, ok := el.(*pairlist.Map)
			if !ok {
				return nil, fmt.Errorf("%w: objective %d is not a record", ErrBadSnapshot, i)
			}
			o, err := parseObjective(om)
			if err != nil {
				return nil, err
			}
			snap.Objectives = append(snap.Objectives, o)
		}
	}

	if raw, ok := m.Slice("casualties"); ok {
		for i, el := range raw {
			cm, ok := el.(*pairlist.Map)
			if !ok {
				return nil, fmt.Errorf("%w: casualty %d is not a record", ErrBadSnapshot, i)
			}
			c, err := parseCasualty(cm)
			if err != nil {
				return nil, err
			}
			snap.Casualties = append(snap.Casualties, c)
		}
	}

	if contrib, ok := m.Child("contributions"); ok {
		snap.Contributions = make(map[string]int, contrib.Len())
		for _, uid := range contrib.Keys() {
			if v, ok := contrib.Int(uid); ok {
				snap.Contributions[uid] = v
			}
		}
	}

	return snap, nil
}

// admitGroup applies the fog-of-war floor: unknown contacts below the
// knowledge threshold never enter the engine.
func admitGroup(g model.Group) bool {
	if g.IsControlled || g.IsFriendly || g.IsPlayerGroup {
		return true
	}
	return g.Knowledge >= knowledgeFloor
}

func sides(m *pairlist.Map, key string) ([]model.Side, error) {
	raw, ok := m.StringSlice(key)
	if !ok {
		return nil, nil
	}
	out := make([]model.Side, 0, len(raw))
	for _, s := range raw {
		side, known := model.NormalizeSide(s)
		if !known {
			return nil, fmt.Errorf("%w: unknown side %q in %s", ErrBadSnapshot, s, key)
		}
		out = append(out, side)
	}
	return out, nil
}

func position(m *pairlist.Map, key string) (model.Position, bool, error) {
	coords, ok := m.FloatSlice(key)
	if !ok {
		return model.Position{}, false, nil
	}
	pos, err := model.PositionFromSlice(coords)
	if err != nil {
		return model.Position{}, false, fmt.Errorf("%w: %s: %v", ErrBadSnapshot, key, err)
	}
	return pos, true, nil
}

func (n *Normalizer) parseGroup(m *pairlist.Map) (model.Group, error) {
	var g model.Group

	id, ok := m.String("id")
	if !ok || id == "" {
		return g, fmt.Errorf("%w: group without id", ErrBadSnapshot)
	}
	g.ID = id

	rawSide, _ := m.String("side")
	side, known := model.NormalizeSide(rawSide)
	if !known {
		return g, fmt.Errorf("%w: group %s has unknown side %q", ErrBadSnapshot, id, rawSide)
	}
	g.Side = side

	class, _ := m.String("class")
	g.Class = model.NormalizeClass(class)

	pos, ok, err := position(m, "position")
	if err != nil {
		return g, err
	}
	if !ok {
		return g, fmt.Errorf("%w: group %s without position", ErrBadSnapshot, id)
	}
	g.Position = pos

	g.UnitCount, _ = m.Int("unit_count")
	g.Behaviour, _ = m.String("behaviour")
	g.CombatMode, _ = m.String("combat_mode")
	g.Formation, _ = m.String("formation")
	g.InCombat, _ = m.Bool("in_combat")
	g.WaypointType, _ = m.String("waypoint_type")
	if wp, ok, err := position(m, "waypoint_pos"); err != nil {
		return g, err
	} else if ok {
		g.WaypointPos = wp
	}

	g.IsControlled, _ = m.Bool("is_controlled")
	if g.IsControlled {
		g.Casualties, _ = m.Int("casualties")
		g.Posture, _ = m.String("posture")
	} else {
		g.IsPlayerGroup, _ = m.Bool("is_player_group")
		g.IsFriendly, _ = m.Bool("is_friendly")
		g.Knowledge, _ = m.Float("knowledge")
	}
	g.NightCapability, _ = m.Float("avg_night_capability")

	return g, nil
}

func parsePlayer(m *pairlist.Map) (model.Player, error) {
	var p model.Player

	name, _ := m.String("name")
	uid, ok := m.String("uid")
	if !ok || uid == "" {
		return p, fmt.Errorf("%w: player without uid", ErrBadSnapshot)
	}
	p.Name = name
	p.UID = uid

	rawSide, _ := m.String("side")
	side, known := model.NormalizeSide(rawSide)
	if !known {
		return p, fmt.Errorf("%w: player %s has unknown side %q", ErrBadSnapshot, uid, rawSide)
	}
	p.Side = side

	p.GroupID, _ = m.String("group_id")
	if pos, ok, err := position(m, "position"); err != nil {
		return p, err
	} else if ok {
		p.Position = pos
	}
	p.InVehicle, _ = m.Bool("in_vehicle")
	p.Damage, _ = m.Float("damage")

	return p, nil
}

func parseObjective(m *pairlist.Map) (model.Objective, error) {
	var o model.Objective

	id, ok := m.String("id")
	if !ok || id == "" {
		return o, fmt.Errorf("%w: objective without id", ErrBadSnapshot)
	}
	o.ID = id
	o.Description, _ = m.String("description")
	o.Priority, _ = m.Float("priority")
	o.TaskType, _ = m.String("task_type")

	pos, ok, err := position(m, "position")
	if err != nil {
		return o, err
	}
	if !ok {
		return o, fmt.Errorf("%w: objective %s without position", ErrBadSnapshot, id)
	}
	o.Position = pos

	o.Radius, _ = m.Float("radius")

	state, _ := m.String("state")
	switch model.ObjectiveState(state) {
	case model.ObjectiveActive, model.ObjectiveCaptured, model.ObjectiveDestroyed,
		model.ObjectiveCompleted, model.ObjectiveFailed:
		o.State = model.ObjectiveState(state)
	case "":
		o.State = model.ObjectiveActive
	default:
		return o, fmt.Errorf("%w: objective %s has unknown state %q", ErrBadSnapshot, id, state)
	}

	if meta, ok := m.Child("metadata"); ok {
		o.Metadata = meta.ToAny()
	}

	return o, nil
}

func parseCasualty(m *pairlist.Map) (model.CasualtyEvent, error) {
	var c model.CasualtyEvent

	c.VictimID, _ = m.String("victim_id")
	rawSide, _ := m.String("victim_side")
	side, known := model.NormalizeSide(rawSide)
	if !known {
		return c, fmt.Errorf("%w: casualty with unknown victim side %q", ErrBadSnapshot, rawSide)
	}
	c.VictimSide = side
	c.VictimType, _ = m.String("victim_type")

	c.KillerID, _ = m.String("killer_id")
	if ks, ok := m.String("killer_side"); ok && ks != "" {
		side, known := model.NormalizeSide(ks)
		if !known {
			return c, fmt.Errorf("%w: casualty with unknown killer side %q", ErrBadSnapshot, ks)
		}
		c.KillerSide = side
	}

	c.MissionTime, _ = m.Float("mission_time")
	if pos, ok, err := position(m, "position"); err != nil {
		return c, err
	} else if ok {
		c.Position = pos
	}
	c.Weapon, _ = m.String("weapon")
	c.ObjectiveID, _ = m.String("objective_id")

	return c, nil
}
