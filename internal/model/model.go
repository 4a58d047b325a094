// Package model defines the engine's core data types: world snapshots,
// groups, objectives, LLM orders, validated commands, and token usage.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Position is a 3-D game-world coordinate in meters. On the wire it is the
// host's [x, y, z] array; a 2-element array means ground level.
type Position struct {
	X float64
	Y float64
	Z float64
}

// MarshalJSON encodes the position as [x, y, z].
func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{p.X, p.Y, p.Z})
}

// UnmarshalJSON accepts [x, y] and [x, y, z] arrays.
func (p *Position) UnmarshalJSON(data []byte) error {
	var coords []float64
	if err := json.Unmarshal(data, &coords); err != nil {
		return err
	}
	pos, err := PositionFromSlice(coords)
	if err != nil {
		return err
	}
	*p = pos
	return nil
}

// Distance2D returns the planar distance between two positions.
func (p Position) Distance2D(o Position) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Finite reports whether all three coordinates are finite numbers.
func (p Position) Finite() bool {
	for _, v := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Slice returns the position as [x, y, z] for wire encoding.
func (p Position) Slice() []float64 {
	return []float64{p.X, p.Y, p.Z}
}

// PositionFromSlice builds a Position from a 2- or 3-element coordinate list.
// A missing Z defaults to ground level.
func PositionFromSlice(v []float64) (Position, error) {
	switch len(v) {
	case 2:
		return Position{X: v[0], Y: v[1]}, nil
	case 3:
		return Position{X: v[0], Y: v[1], Z: v[2]}, nil
	default:
		return Position{}, fmt.Errorf("position needs 2 or 3 coordinates, got %d", len(v))
	}
}

// Side is a faction identifier, normalized to the engine's canonical spelling.
type Side string

const (
	SideEast    Side = "EAST"
	SideWest    Side = "WEST"
	SideGuer    Side = "GUER"
	SideCiv     Side = "CIV"
	SideUnknown Side = "UNKNOWN"
)

// sideAliases maps the spellings the host may report to canonical sides.
var sideAliases = map[string]Side{
	"EAST": SideEast, "OPFOR": SideEast, "RED": SideEast,
	"WEST": SideWest, "BLUFOR": SideWest,
	"GUER": SideGuer, "RESISTANCE": SideGuer, "INDEPENDENT": SideGuer,
	"CIV": SideCiv, "CIVILIAN": SideCiv,
}

// NormalizeSide resolves a reported side spelling to its canonical value.
// Unknown spellings return SideUnknown and false.
func NormalizeSide(s string) (Side, bool) {
	side, ok := sideAliases[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return SideUnknown, false
	}
	return side, true
}

// TacticalClass describes what kind of force a group represents.
type TacticalClass string

const (
	ClassInfantry   TacticalClass = "infantry"
	ClassMotorized  TacticalClass = "motorized"
	ClassMechanized TacticalClass = "mechanized"
	ClassArmor      TacticalClass = "armor"
	ClassAirRotary  TacticalClass = "air_rotary"
	ClassAirFixed   TacticalClass = "air_fixed"
	ClassNaval      TacticalClass = "naval"
	ClassUnknown    TacticalClass = "unknown"
)

// NormalizeClass maps a reported class tag to a known TacticalClass.
func NormalizeClass(s string) TacticalClass {
	c := TacticalClass(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case ClassInfantry, ClassMotorized, ClassMechanized, ClassArmor,
		ClassAirRotary, ClassAirFixed, ClassNaval:
		return c
	default:
		return ClassUnknown
	}
}

// IsVehicle reports whether the class can serve as transport or fire support.
func (c TacticalClass) IsVehicle() bool {
	switch c {
	case ClassMotorized, ClassMechanized, ClassArmor, ClassAirRotary, ClassAirFixed, ClassNaval:
		return true
	}
	return false
}

// Group is one AI group as reported by a snapshot. The IsControlled
// discriminant selects which of the optional fields are meaningful:
// Casualties and Posture for controlled groups, IsFriendly and Knowledge
// for uncontrolled ones.
type Group struct {
	ID        string        `json:"id"`
	Side      Side          `json:"side"`
	Class     TacticalClass `json:"class"`
	Position  Position      `json:"position"`
	UnitCount int           `json:"unit_count"`

	Behaviour  string `json:"behaviour,omitempty"`
	CombatMode string `json:"combat_mode,omitempty"`
	Formation  string `json:"formation,omitempty"`
	InCombat   bool   `json:"in_combat,omitempty"`

	WaypointType string   `json:"waypoint_type,omitempty"`
	WaypointPos  Position `json:"waypoint_pos,omitempty"`

	IsControlled bool `json:"is_controlled"`

	// Controlled groups only.
	Casualties int    `json:"casualties,omitempty"`
	Posture    string `json:"posture,omitempty"`

	// Uncontrolled groups only.
	IsPlayerGroup bool    `json:"is_player_group,omitempty"`
	IsFriendly    bool    `json:"is_friendly,omitempty"`
	Knowledge     float64 `json:"knowledge,omitempty"`

	// Fraction of units equipped for night operations, when reported.
	NightCapability float64 `json:"night_capability,omitempty"`
}

// Player is a human participant reported by a snapshot.
type Player struct {
	Name      string   `json:"name"`
	UID       string   `json:"uid"`
	Side      Side     `json:"side"`
	GroupID   string   `json:"group_id"`
	Position  Position `json:"position"`
	InVehicle bool     `json:"in_vehicle,omitempty"`
	Damage    float64  `json:"damage,omitempty"`
}

// ObjectiveState is the lifecycle state of an objective.
type ObjectiveState string

const (
	ObjectiveActive    ObjectiveState = "active"
	ObjectiveCaptured  ObjectiveState = "captured"
	ObjectiveDestroyed ObjectiveState = "destroyed"
	ObjectiveCompleted ObjectiveState = "completed"
	ObjectiveFailed    ObjectiveState = "failed"
)

// Terminal reports whether the state ends the objective's lifecycle.
func (s ObjectiveState) Terminal() bool {
	switch s {
	case ObjectiveCaptured, ObjectiveDestroyed, ObjectiveCompleted, ObjectiveFailed:
		return true
	}
	return false
}

// Objective is a mission goal injected by the host and re-evaluated from
// snapshots each cycle. Priority may be on a 0-10 or 0-100 scale; the
// evaluator infers the scale from the base value.
type Objective struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Priority    float64        `json:"priority"`
	Position    Position       `json:"position"`
	Radius      float64        `json:"radius"`
	TaskType    string         `json:"task_type"`
	State       ObjectiveState `json:"state"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// CasualtyEvent records a unit death reported by the host.
type CasualtyEvent struct {
	VictimID    string   `json:"victim_id"`
	VictimSide  Side     `json:"victim_side"`
	VictimType  string   `json:"victim_type"`
	KillerID    string   `json:"killer_id,omitempty"`
	KillerSide  Side     `json:"killer_side,omitempty"`
	MissionTime float64  `json:"mission_time"`
	Position    Position `json:"position,omitempty"`
	Weapon      string   `json:"weapon,omitempty"`
	ObjectiveID string   `json:"objective_id,omitempty"`
}

// Weather is the host's 4-tuple weather report: overcast, rain and fog in
// [0,1], wind in meters per second.
type Weather struct {
	Overcast float64 `json:"overcast"`
	Rain     float64 `json:"rain"`
	Fog      float64 `json:"fog"`
	Wind     float64 `json:"wind"`
}

// Snapshot is one immutable world-state tick from the host.
type Snapshot struct {
	MissionTime float64 `json:"mission_time"`
	Daytime     float64 `json:"daytime"`
	Weather     Weather `json:"weather"`

	WorldName   string `json:"world_name"`
	MissionName string `json:"mission_name"`

	AIDeployment map[Side]int `json:"ai_deployment,omitempty"`

	Groups     []Group     `json:"groups"`
	Players    []Player    `json:"players"`
	Objectives []Objective `json:"objectives"`

	MissionVariables map[string]any `json:"mission_variables,omitempty"`
	MissionIntent    string         `json:"mission_intent,omitempty"`

	FriendlySides   []Side `json:"friendly_sides,omitempty"`
	ControlledSides []Side `json:"controlled_sides,omitempty"`

	Casualties    []CasualtyEvent `json:"casualties,omitempty"`
	Contributions map[string]int  `json:"contributions,omitempty"`
}

// ControlledGroups returns the groups the engine commands.
func (s *Snapshot) ControlledGroups() []Group {
	var out []Group
	for _, g := range s.Groups {
		if g.IsControlled {
			out = append(out, g)
		}
	}
	return out
}

// EnemyGroups returns known uncontrolled, non-friendly groups.
func (s *Snapshot) EnemyGroups() []Group {
	var out []Group
	for _, g := range s.Groups {
		if !g.IsControlled && !g.IsFriendly {
			out = append(out, g)
		}
	}
	return out
}

// GroupByID finds a group by its stable ID.
func (s *Snapshot) GroupByID(id string) (Group, bool) {
	for _, g := range s.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return Group{}, false
}

// IsControlledSide reports whether a side is under engine command.
func (s *Snapshot) IsControlledSide(side Side) bool {
	for _, c := range s.ControlledSides {
		if c == side {
			return true
		}
	}
	return false
}

// IsFriendlySide reports whether a side is allied (controlled sides included).
func (s *Snapshot) IsFriendlySide(side Side) bool {
	if s.IsControlledSide(side) {
		return true
	}
	for _, f := range s.FriendlySides {
		if f == side {
			return true
		}
	}
	return false
}

// TokenUsage records the token economics of one LLM call.
type TokenUsage struct {
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	CachedTokens int           `json:"cached_tokens"`
	TotalTokens  int           `json:"total_tokens"`
	Latency      time.Duration `json:"-"`
	LatencyMs    int64         `json:"latency_ms"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
}

// Normalize fills derived fields: total tokens and millisecond latency.
func (u *TokenUsage) Normalize() {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	u.LatencyMs = u.Latency.Milliseconds()
}
