// Package pairlist implements the bridge wire shape: ordered lists of
// [key, value] pairs, where a value is a scalar, a plain array, or a nested
// pair list. The host cannot send real maps over the bridge, so every
// structured payload arrives and leaves in this form.
package pairlist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/batcom/engine/internal/util"
)

// ErrBadShape is returned when a payload does not decode to a pair list.
var ErrBadShape = errors.New("payload is not a [key, value] pair list")

// Map is a decoded pair list with insertion order preserved.
type Map struct {
	keys   []string
	values map[string]any
}

// NewMap returns an empty ordered map.
func NewMap() *Map {
	return &Map{values: make(map[string]any)}
}

// Set inserts or replaces a key, preserving first-insertion order.
func (m *Map) Set(key string, value any) *Map {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
	return m
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string { return m.keys }

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.keys) }

// Get returns the raw value for key.
func (m *Map) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// String returns the value for key coerced to a cleaned string.
func (m *Map) String(key string) (string, bool) {
	v, ok := m.values[key]
	if !ok {
		return "", false
	}
	return util.ToString(v)
}

// Float returns the value for key coerced to float64. Numeric strings count.
func (m *Map) Float(key string) (float64, bool) {
	v, ok := m.values[key]
	if !ok {
		return 0, false
	}
	return util.ToFloat(v)
}

// Int returns the value for key coerced to int.
func (m *Map) Int(key string) (int, bool) {
	v, ok := m.values[key]
	if !ok {
		return 0, false
	}
	return util.ToInt(v)
}

// Bool returns the value for key coerced to bool.
func (m *Map) Bool(key string) (bool, bool) {
	v, ok := m.values[key]
	if !ok {
		return false, false
	}
	return util.ToBool(v)
}

// Child returns the nested pair list stored under key.
func (m *Map) Child(key string) (*Map, bool) {
	v, ok := m.values[key]
	if !ok {
		return nil, false
	}
	c, ok := v.(*Map)
	return c, ok
}

// Slice returns the plain array stored under key.
func (m *Map) Slice(key string) ([]any, bool) {
	v, ok := m.values[key]
	if !ok {
		return nil, false
	}
	s, ok := v.([]any)
	return s, ok
}

// StringSlice returns the array under key with every element coerced to string.
func (m *Map) StringSlice(key string) ([]string, bool) {
	raw, ok := m.Slice(key)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := util.ToString(v)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// FloatSlice returns the array under key with every element coerced to float64.
func (m *Map) FloatSlice(key string) ([]float64, bool) {
	raw, ok := m.Slice(key)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		f, ok := util.ToFloat(v)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// ToAny converts the map, recursively, to plain map[string]any. Order is lost;
// use only where the consumer does not care (opaque metadata).
func (m *Map) ToAny() map[string]any {
	out := make(map[string]any, len(m.keys))
	for _, k := range m.keys {
		switch v := m.values[k].(type) {
		case *Map:
			out[k] = v.ToAny()
		default:
			out[k] = v
		}
	}
	return out
}

// Decode parses a bridge payload into an ordered Map. The payload must be a
// JSON array of [key, value] pairs; nested pair lists become nested Maps and
// any other array stays a plain []any.
func Decode(raw string) (*Map, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	arr, ok := root.([]any)
	if !ok {
		return nil, ErrBadShape
	}
	m, ok := decodePairs(arr)
	if !ok {
		return nil, ErrBadShape
	}
	return m, nil
}

// decodePairs converts an array to a Map when every element is a [key, value]
// pair with a string key. Returns false otherwise.
func decodePairs(arr []any) (*Map, bool) {
	if len(arr) == 0 {
		return NewMap(), true
	}
	m := NewMap()
	for _, el := range arr {
		pair, ok := el.([]any)
		if !ok || len(pair) != 2 {
			return nil, false
		}
		key, ok := pair[0].(string)
		if !ok {
			return nil, false
		}
		m.Set(util.CleanBridgeString(key), normalize(pair[1]))
	}
	return m, true
}

// normalize recursively converts nested pair lists to Maps, leaving other
// values as decoded.
func normalize(v any) any {
	arr, ok := v.([]any)
	if !ok {
		return v
	}
	if m, ok := decodePairs(arr); ok {
		return m
	}
	out := make([]any, len(arr))
	for i, el := range arr {
		out[i] = normalize(el)
	}
	return out
}

// Encode renders the map back to the wire shape, preserving order. Nested
// Maps encode as nested pair lists.
func (m *Map) Encode() (string, error) {
	b, err := json.Marshal(m.toPairs())
	if err != nil {
		return "", fmt.Errorf("encoding pair list: %w", err)
	}
	return string(b), nil
}

// MarshalJSON emits the wire shape, so a Map nested inside a plain slice
// still encodes as a pair list.
func (m *Map) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.toPairs())
}

func (m *Map) toPairs() [][]any {
	pairs := make([][]any, 0, len(m.keys))
	for _, k := range m.keys {
		v := m.values[k]
		if child, ok := v.(*Map); ok {
			v = child.toPairs()
		}
		pairs = append(pairs, []any{k, v})
	}
	return pairs
}

// OK builds the standard success response, optionally extended with extra
// key/value pairs given in order.
func OK(kv ...any) *Map {
	m := NewMap().Set("status", "ok")
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			m.Set(key, kv[i+1])
		}
	}
	return m
}

// Error builds the standard failure response.
func Error(err error) *Map {
	return NewMap().Set("status", "error").Set("error", err.Error())
}
