package model

import (
	"encoding/json"
	"time"
)

// CommandType identifies one of the tactical commands the LLM may issue.
type CommandType string

const (
	CmdMoveTo         CommandType = "move_to"
	CmdDefendArea     CommandType = "defend_area"
	CmdPatrolRoute    CommandType = "patrol_route"
	CmdSeekAndDestroy CommandType = "seek_and_destroy"
	CmdTransportGroup CommandType = "transport_group"
	CmdEscortGroup    CommandType = "escort_group"
	CmdFireSupport    CommandType = "fire_support"
	CmdDeployAsset    CommandType = "deploy_asset"
	CmdSpawnSquad     CommandType = "spawn_squad"
)

// DefaultAllowedCommands is the allow-list applied when the safety config
// does not override it.
var DefaultAllowedCommands = []CommandType{
	CmdMoveTo, CmdDefendArea, CmdPatrolRoute, CmdSeekAndDestroy,
	CmdTransportGroup, CmdEscortGroup, CmdFireSupport,
	CmdDeployAsset, CmdSpawnSquad,
}

// Spawning reports whether the command creates a new group rather than
// steering an existing one.
func (c CommandType) Spawning() bool {
	return c == CmdDeployAsset || c == CmdSpawnSquad
}

// OrderParams carries the per-type parameters of an order. Only the fields
// relevant to the order's CommandType are populated; the sandbox enforces
// completeness per type.
type OrderParams struct {
	Position  *Position  `json:"position,omitempty"`
	Radius    float64    `json:"radius,omitempty"`
	Waypoints []Position `json:"waypoints,omitempty"`

	Speed      string `json:"speed,omitempty"`
	Formation  string `json:"formation,omitempty"`
	Behaviour  string `json:"behaviour,omitempty"`
	CombatMode string `json:"combat_mode,omitempty"`

	// transport_group
	PassengerGroupID string    `json:"passenger_group_id,omitempty"`
	Pickup           *Position `json:"pickup,omitempty"`
	Dropoff          *Position `json:"dropoff,omitempty"`

	// escort_group
	TargetGroupID string `json:"target_group_id,omitempty"`

	// deploy_asset / spawn_squad
	Side        string   `json:"side,omitempty"`
	AssetType   string   `json:"asset_type,omitempty"`
	UnitClasses []string `json:"unit_classes,omitempty"`
	GroupID     string   `json:"group_id,omitempty"`

	// Seed is chosen by the engine for vehicle deployments: the spawn point
	// outside the AO from which the group drives to Position.
	Seed *Position `json:"seed,omitempty"`
}

// Order is one tactical instruction as produced by the LLM, before
// validation. GroupID is empty for spawning commands.
type Order struct {
	Type        CommandType `json:"type"`
	GroupID     string      `json:"group_id,omitempty"`
	Params      OrderParams `json:"parameters"`
	Priority    *float64    `json:"priority,omitempty"`
	ObjectiveID string      `json:"objective_id,omitempty"`
}

// Command is a validated order ready for the host to drain. ExecPriority is
// the resolved execution priority on the 0-10 scale.
type Command struct {
	Order

	ExecPriority int       `json:"exec_priority"`
	Cycle        int       `json:"cycle"`
	IssuedAt     time.Time `json:"issued_at"`
	Validated    bool      `json:"validated"`
}

// SerializeOrders encodes an order list to the canonical JSON document shape
// the parser accepts, so accepted orders round-trip losslessly.
func SerializeOrders(reasoning string, orders []Order) ([]byte, error) {
	return json.Marshal(struct {
		Reasoning string  `json:"reasoning"`
		Orders    []Order `json:"orders"`
	}{Reasoning: reasoning, Orders: orders})
}
