package orders

import (
	"fmt"
	"log/slog"

	"github.com/batcom/engine/internal/geo"
	"github.com/batcom/engine/internal/model"
)

// DefaultPriority is assigned when the LLM omits an order priority.
const DefaultPriority = 5

// MaxRadius bounds every radius parameter, in meters.
const MaxRadius = 10000.0

// Pool is the sandbox's view of the resource pool. Implemented by
// state.ResourcePool.
type Pool interface {
	// Remaining returns the unreserved capacity for (side, assetType), or
	// ok=false when the pool has no such asset.
	Remaining(side model.Side, assetType string) (remaining int, ok bool)
	// DefenseOnly reports whether the asset is restricted to the AO defense
	// phase.
	DefenseOnly(side model.Side, assetType string) bool
	// IsVehicle reports whether the asset spawns as a vehicle group, which
	// must be seeded outside the AO.
	IsVehicle(side model.Side, assetType string) bool
	// Reserve consumes one unit of capacity. Called only after the order has
	// passed every check.
	Reserve(side model.Side, assetType string) error
}

// Rejection explains why an order was refused. Reason strings are stored in
// the cycle record and surfaced to admins.
type Rejection struct {
	Order  model.Order
	Reason string
}

// SandboxConfig carries the per-cycle validation inputs.
type SandboxConfig struct {
	Snapshot *model.Snapshot
	Bounds   geo.Bounds
	Pool     Pool

	// Enabled=false reduces validation to schema and parameter checks.
	Enabled bool

	AllowedCommands []model.CommandType
	BlockedCommands []model.CommandType

	MaxUnitsPerSide int
	// LiveUnits is the per-side unit census at the start of the cycle.
	LiveUnits map[model.Side]int

	// ControlledGroups, when non-empty, restricts order targets to the
	// listed group IDs. Groups spawned this cycle are exempt.
	ControlledGroups map[string]bool

	// DefensePhase admits defense_only assets.
	DefensePhase bool

	// PendingGroups are group IDs announced by spawn orders earlier in the
	// same reply.
	PendingGroups map[string]model.Side

	// Cycle is stamped onto accepted commands.
	Cycle int
}

// Sandbox validates one reply's orders. It is created per cycle so spawn
// admissions accumulate across the orders of a single reply.
type Sandbox struct {
	cfg     SandboxConfig
	logger  *slog.Logger
	allowed map[model.CommandType]bool
	blocked map[model.CommandType]bool

	// units admitted by spawn orders this cycle, per side
	admitted map[model.Side]int
}

// NewSandbox builds a Sandbox for one decision cycle.
func NewSandbox(cfg SandboxConfig, logger *slog.Logger) *Sandbox {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[model.CommandType]bool)
	if len(cfg.AllowedCommands) == 0 {
		for _, t := range model.DefaultAllowedCommands {
			allowed[t] = true
		}
	} else {
		for _, t := range cfg.AllowedCommands {
			allowed[t] = true
		}
	}
	blocked := make(map[model.CommandType]bool, len(cfg.BlockedCommands))
	for _, t := range cfg.BlockedCommands {
		blocked[t] = true
	}
	return &Sandbox{
		cfg:      cfg,
		logger:   logger,
		allowed:  allowed,
		blocked:  blocked,
		admitted: make(map[model.Side]int),
	}
}

// Validate applies the layered checks in order and returns either a command
// ready for the queue or the first failure.
func (s *Sandbox) Validate(order model.Order) (model.Command, *Rejection) {
	reject := func(format string, args ...any) (model.Command, *Rejection) {
		r := &Rejection{Order: order, Reason: fmt.Sprintf(format, args...)}
		s.logger.Warn("order rejected", "type", order.Type, "group_id", order.GroupID, "reason", r.Reason)
		return model.Command{}, r
	}

	if s.cfg.Enabled {
		if !s.allowed[order.Type] {
			return reject("command type %q not in allow-list", order.Type)
		}
		if s.blocked[order.Type] {
			return reject("command type %q is blocked", order.Type)
		}
	}

	if reason := checkSchema(order); reason != "" {
		return reject("%s", reason)
	}

	if s.cfg.Enabled {
		if reason := s.checkGroup(order); reason != "" {
			return reject("%s", reason)
		}
		if reason := s.checkGeography(&order); reason != "" {
			return reject("%s", reason)
		}
		if order.Type.Spawning() {
			if reason := s.checkPoolAndCap(order); reason != "" {
				return reject("%s", reason)
			}
		}
	}

	if reason := checkParams(order); reason != "" {
		return reject("%s", reason)
	}

	// All checks passed. Spawn orders consume their pool and cap budget now
	// so later orders in the same reply see the updated totals.
	if s.cfg.Enabled && order.Type.Spawning() && s.cfg.Pool != nil && order.Type == model.CmdDeployAsset {
		if err := s.cfg.Pool.Reserve(spawnSide(order), order.Params.AssetType); err != nil {
			return reject("reserving pool capacity: %v", err)
		}
	}
	if order.Type.Spawning() {
		s.admitted[spawnSide(order)] += len(order.Params.UnitClasses)
	}

	prio := DefaultPriority
	if order.Priority != nil {
		prio = int(*order.Priority)
		if prio < 0 {
			prio = 0
		}
		if prio > 10 {
			prio = 10
		}
	}

	return model.Command{
		Order:        order,
		ExecPriority: prio,
		Cycle:        s.cfg.Cycle,
		Validated:    true,
	}, nil
}

func spawnSide(order model.Order) model.Side {
	side, _ := model.NormalizeSide(order.Params.Side)
	return side
}

// checkSchema verifies the order carries every parameter its type requires.
func checkSchema(order model.Order) string {
	p := order.Params
	switch order.Type {
	case model.CmdMoveTo:
		if p.Position == nil {
			return "move_to requires a position"
		}
	case model.CmdDefendArea:
		if p.Position == nil || p.Radius == 0 {
			return "defend_area requires position and radius"
		}
	case model.CmdPatrolRoute:
		if len(p.Waypoints) < 2 {
			return fmt.Sprintf("patrol_route requires at least 2 waypoints, got %d", len(p.Waypoints))
		}
	case model.CmdSeekAndDestroy:
		if p.Position == nil || p.Radius == 0 {
			return "seek_and_destroy requires position and radius"
		}
	case model.CmdTransportGroup:
		if p.PassengerGroupID == "" || p.Pickup == nil || p.Dropoff == nil {
			return "transport_group requires passenger_group_id, pickup and dropoff"
		}
	case model.CmdEscortGroup:
		if p.TargetGroupID == "" || p.Radius == 0 {
			return "escort_group requires target_group_id and radius"
		}
	case model.CmdFireSupport:
		if p.Position == nil || p.Radius == 0 {
			return "fire_support requires position and radius"
		}
	case model.CmdDeployAsset, model.CmdSpawnSquad:
		if p.Side == "" || len(p.UnitClasses) == 0 || p.Position == nil {
			return fmt.Sprintf("%s requires side, unit_classes and position", order.Type)
		}
		if _, known := model.NormalizeSide(p.Side); !known {
			return fmt.Sprintf("unknown side %q", p.Side)
		}
	default:
		return fmt.Sprintf("unknown command type %q", order.Type)
	}
	return ""
}

// checkGroup resolves the target group and verifies the engine commands it.
func (s *Sandbox) checkGroup(order model.Order) string {
	if order.Type.Spawning() {
		// spawn orders create their group; an empty group_id is fine
		return ""
	}
	if order.GroupID == "" {
		return "order has no target group"
	}

	snap := s.cfg.Snapshot
	if side, ok := s.cfg.PendingGroups[order.GroupID]; ok {
		if !snap.IsControlledSide(side) {
			return fmt.Sprintf("pending group %s belongs to uncontrolled side %s", order.GroupID, side)
		}
		return ""
	}

	g, ok := snap.GroupByID(order.GroupID)
	if !ok {
		return fmt.Sprintf("group %s is not tracked", order.GroupID)
	}
	if !snap.IsControlledSide(g.Side) {
		return fmt.Sprintf("group %s belongs to uncontrolled side %s", order.GroupID, g.Side)
	}
	if len(s.cfg.ControlledGroups) > 0 && !s.cfg.ControlledGroups[order.GroupID] {
		return fmt.Sprintf("group %s is outside the controlled group list", order.GroupID)
	}

	// referenced groups in coordination orders must exist too
	if order.Type == model.CmdTransportGroup {
		if _, ok := snap.GroupByID(order.Params.PassengerGroupID); !ok {
			if _, pending := s.cfg.PendingGroups[order.Params.PassengerGroupID]; !pending {
				return fmt.Sprintf("passenger group %s is not tracked", order.Params.PassengerGroupID)
			}
		}
	}
	if order.Type == model.CmdEscortGroup {
		if _, ok := snap.GroupByID(order.Params.TargetGroupID); !ok {
			return fmt.Sprintf("escort target %s is not tracked", order.Params.TargetGroupID)
		}
	}
	return ""
}

// checkGeography verifies every position lies inside the AO. Vehicle
// deployments get their seed point assigned here; the ordered destination
// must still be inside.
func (s *Sandbox) checkGeography(order *model.Order) string {
	b := s.cfg.Bounds
	p := &order.Params

	check := func(name string, pos *model.Position) string {
		if pos == nil {
			return ""
		}
		if !b.Contains(*pos) {
			return fmt.Sprintf("%s %s outside AO bounds", name, format(*pos))
		}
		return ""
	}

	if msg := check("position", p.Position); msg != "" {
		return msg
	}
	if msg := check("pickup", p.Pickup); msg != "" {
		return msg
	}
	if msg := check("dropoff", p.Dropoff); msg != "" {
		return msg
	}
	for i := range p.Waypoints {
		if msg := check(fmt.Sprintf("waypoint %d", i), &p.Waypoints[i]); msg != "" {
			return msg
		}
	}

	if order.Type == model.CmdDeployAsset && s.cfg.Pool != nil &&
		s.cfg.Pool.IsVehicle(spawnSide(*order), p.AssetType) && b.Defined() {
		seed := b.SeedOutside(*p.Position)
		p.Seed = &seed
	}
	return ""
}

// checkPoolAndCap applies resource pool capacity and the per-side unit cap.
func (s *Sandbox) checkPoolAndCap(order model.Order) string {
	side := spawnSide(order)

	if order.Type == model.CmdDeployAsset {
		if s.cfg.Pool == nil {
			return "no resource pool configured"
		}
		remaining, ok := s.cfg.Pool.Remaining(side, order.Params.AssetType)
		if !ok {
			return fmt.Sprintf("no pool entry for %s/%s", side, order.Params.AssetType)
		}
		if remaining <= 0 {
			return fmt.Sprintf("pool exhausted for %s/%s", side, order.Params.AssetType)
		}
		if s.cfg.Pool.DefenseOnly(side, order.Params.AssetType) && !s.cfg.DefensePhase {
			return fmt.Sprintf("asset %s/%s is defense-only and the defense phase is not active", side, order.Params.AssetType)
		}
	}

	if s.cfg.MaxUnitsPerSide > 0 {
		live := s.cfg.LiveUnits[side] + s.admitted[side]
		if live+len(order.Params.UnitClasses) > s.cfg.MaxUnitsPerSide {
			return fmt.Sprintf("spawn would exceed max units per side (%d + %d > %d)",
				live, len(order.Params.UnitClasses), s.cfg.MaxUnitsPerSide)
		}
	}
	return ""
}

// checkParams verifies numeric sanity: finite coordinates, radii in bounds.
func checkParams(order model.Order) string {
	p := order.Params

	positions := []*model.Position{p.Position, p.Pickup, p.Dropoff, p.Seed}
	for i := range p.Waypoints {
		positions = append(positions, &p.Waypoints[i])
	}
	for _, pos := range positions {
		if pos != nil && !pos.Finite() {
			return "position has non-finite coordinates"
		}
	}

	needsRadius := order.Type == model.CmdDefendArea || order.Type == model.CmdSeekAndDestroy ||
		order.Type == model.CmdEscortGroup || order.Type == model.CmdFireSupport
	if needsRadius && (p.Radius <= 0 || p.Radius > MaxRadius) {
		return fmt.Sprintf("radius %.1f out of range (0, %.0f]", p.Radius, MaxRadius)
	}
	return ""
}

func format(p model.Position) string {
	return fmt.Sprintf("[%.0f, %.0f, %.0f]", p.X, p.Y, p.Z)
}
