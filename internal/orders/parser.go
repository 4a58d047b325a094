// Package orders turns raw LLM replies into validated commands: a tolerant
// JSON parser and the layered sandbox every order must pass before it may
// enter the command queue.
package orders

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/batcom/engine/internal/model"
	"github.com/batcom/engine/internal/util"
)

// ParseResult carries everything recovered from one LLM reply. A
// whole-document failure yields empty Orders and a single entry in Errors;
// per-order problems drop only the affected order, noted in Warnings.
type ParseResult struct {
	Reasoning string
	Orders    []model.Order
	Warnings  []string
	Errors    []string

	// PendingGroups maps group IDs announced by spawn orders in this reply to
	// their side, so later tactical orders may reference them.
	PendingGroups map[string]model.Side
}

// Parser converts raw replies into orders.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a Parser logging recovered problems to logger.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Parse accepts a JSON document {"reasoning": string, "orders": [...]} and
// extracts the usable subset. Extra fields are ignored. Spawn orders are
// moved ahead of tactical orders so group references onto freshly announced
// groups resolve during validation.
func (p *Parser) Parse(raw []byte) ParseResult {
	res := ParseResult{PendingGroups: make(map[string]model.Side)}

	doc := stripCodeFence(raw)

	var envelope struct {
		Reasoning string            `json:"reasoning"`
		Orders    []json.RawMessage `json:"orders"`
	}
	if err := json.Unmarshal(doc, &envelope); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("reply is not a valid order document: %v", err))
		p.logger.Error("discarding LLM reply", "error", err)
		return res
	}
	res.Reasoning = envelope.Reasoning

	var spawns, tactical []model.Order
	for i, rawOrder := range envelope.Orders {
		order, err := p.parseOrder(rawOrder)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("order %d dropped: %v", i, err))
			p.logger.Warn("dropping malformed order", "index", i, "error", err)
			continue
		}
		if order.Type.Spawning() {
			spawns = append(spawns, order)
			if id := order.Params.GroupID; id != "" {
				side, _ := model.NormalizeSide(order.Params.Side)
				res.PendingGroups[id] = side
			}
		} else {
			tactical = append(tactical, order)
		}
	}
	res.Orders = append(spawns, tactical...)
	return res
}

// parseOrder decodes one order from its raw JSON, tolerating the shapes the
// models actually produce: "group" as an alias of "group_id", 2-D positions,
// numeric strings for coordinates and priority.
func (p *Parser) parseOrder(raw json.RawMessage) (model.Order, error) {
	var generic map[string]any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return model.Order{}, fmt.Errorf("not an object: %w", err)
	}

	var order model.Order

	typ, _ := util.ToString(generic["type"])
	if typ == "" {
		return order, fmt.Errorf("missing type")
	}
	order.Type = model.CommandType(strings.ToLower(typ))

	if v, ok := generic["group_id"]; ok {
		order.GroupID, _ = util.ToString(v)
	} else if v, ok := generic["group"]; ok {
		order.GroupID, _ = util.ToString(v)
	}

	if v, ok := generic["priority"]; ok {
		if f, ok := util.ToFloat(v); ok {
			order.Priority = &f
		}
	}
	order.ObjectiveID, _ = util.ToString(generic["objective_id"])

	params, ok := generic["parameters"].(map[string]any)
	if !ok {
		if params, ok = generic["params"].(map[string]any); !ok {
			params = map[string]any{}
		}
	}
	if err := p.parseParams(params, &order.Params); err != nil {
		return order, err
	}
	return order, nil
}

func (p *Parser) parseParams(raw map[string]any, out *model.OrderParams) error {
	var err error
	if out.Position, err = optionalPosition(raw, "position"); err != nil {
		return err
	}
	if out.Pickup, err = optionalPosition(raw, "pickup"); err != nil {
		return err
	}
	if out.Dropoff, err = optionalPosition(raw, "dropoff"); err != nil {
		return err
	}

	if v, ok := raw["radius"]; ok {
		if out.Radius, ok = util.ToFloat(v); !ok {
			return fmt.Errorf("non-numeric radius")
		}
	}

	if wps, ok := raw["waypoints"].([]any); ok {
		for i, wp := range wps {
			pos, err := coercePosition(wp)
			if err != nil {
				return fmt.Errorf("waypoint %d: %w", i, err)
			}
			out.Waypoints = append(out.Waypoints, pos)
		}
	}

	out.Speed, _ = util.ToString(raw["speed"])
	out.Formation, _ = util.ToString(raw["formation"])
	out.Behaviour, _ = util.ToString(raw["behaviour"])
	out.CombatMode, _ = util.ToString(raw["combat_mode"])
	out.PassengerGroupID, _ = util.ToString(raw["passenger_group_id"])
	out.TargetGroupID, _ = util.ToString(raw["target_group_id"])
	out.Side, _ = util.ToString(raw["side"])
	out.AssetType, _ = util.ToString(raw["asset_type"])
	out.GroupID, _ = util.ToString(raw["group_id"])

	if classes, ok := raw["unit_classes"].([]any); ok {
		for _, c := range classes {
			if s, ok := util.ToString(c); ok && s != "" {
				out.UnitClasses = append(out.UnitClasses, s)
			}
		}
	}
	return nil
}

func optionalPosition(raw map[string]any, key string) (*model.Position, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	pos, err := coercePosition(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &pos, nil
}

// coercePosition accepts [x,y] and [x,y,z] arrays whose elements may be
// numbers or numeric strings. A missing z becomes ground level.
func coercePosition(v any) (model.Position, error) {
	arr, ok := v.([]any)
	if !ok {
		return model.Position{}, fmt.Errorf("position is not an array")
	}
	coords := make([]float64, 0, len(arr))
	for _, el := range arr {
		f, ok := util.ToFloat(el)
		if !ok {
			return model.Position{}, fmt.Errorf("non-numeric coordinate %v", el)
		}
		coords = append(coords, f)
	}
	return model.PositionFromSlice(coords)
}

// stripCodeFence removes a markdown fence wrapper if the model added one.
func stripCodeFence(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return raw
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return []byte(strings.TrimSpace(s))
}
