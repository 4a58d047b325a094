package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"

	"github.com/batcom/engine/internal/model"
	"github.com/batcom/engine/internal/pairlist"
)

// jsonPairs converts a JSON-encodable value into the wire pair shape.
// Object keys come out sorted; field order is not preserved.
func jsonPairs(v any) (*pairlist.Map, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, err
	}
	obj, ok := root.(map[string]any)
	if !ok {
		return nil, errors.New("value is not an object")
	}
	return mapPairs(obj), nil
}

func mapPairs(obj map[string]any) *pairlist.Map {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	m := pairlist.NewMap()
	for _, k := range keys {
		m.Set(k, convertValue(obj[k]))
	}
	return m
}

func convertValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return mapPairs(t)
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = convertValue(el)
		}
		return out
	default:
		return v
	}
}

// commandPairs renders one drained command for the host.
func commandPairs(cmd model.Command) (*pairlist.Map, error) {
	params, err := jsonPairs(cmd.Params)
	if err != nil {
		return nil, err
	}
	m := pairlist.NewMap().
		Set("type", string(cmd.Type)).
		Set("group_id", cmd.GroupID).
		Set("parameters", params).
		Set("priority", cmd.ExecPriority).
		Set("cycle", cmd.Cycle)
	if cmd.ObjectiveID != "" {
		m.Set("objective_id", cmd.ObjectiveID)
	}
	return m, nil
}

// objectiveFromParams builds an admin-injected objective from a task record.
func objectiveFromParams(p *pairlist.Map) (model.Objective, error) {
	var obj model.Objective
	id, _ := p.String("id")
	if id == "" {
		return obj, errors.New("task requires an id")
	}
	obj.ID = id
	obj.Description, _ = p.String("description")
	obj.Priority, _ = p.Float("priority")
	obj.Radius, _ = p.Float("radius")
	obj.TaskType, _ = p.String("task_type")
	if coords, ok := p.FloatSlice("position"); ok {
		pos, err := model.PositionFromSlice(coords)
		if err != nil {
			return obj, err
		}
		obj.Position = pos
	}
	obj.State = model.ObjectiveActive
	if st, ok := p.String("state"); ok && st != "" {
		obj.State = model.ObjectiveState(st)
	}
	return obj, nil
}
