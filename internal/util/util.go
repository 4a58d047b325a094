// Package util provides common helpers used across the engine boundary code.
package util

import (
	"encoding/json"
	"strconv"
	"strings"
)

// TrimQuotes removes one pair of surrounding double quotes, when present.
// A lone edge quote is part of an escape sequence and stays put.
func TrimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// CleanBridgeString applies the standard unescaping for one bridge argument.
func CleanBridgeString(s string) string {
	return FixEscapeQuotes(TrimQuotes(strings.TrimSpace(s)))
}

// ToFloat coerces a bridge value to float64. Accepts numeric types and
// numeric strings, which the host emits interchangeably.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(CleanBridgeString(t), 64)
		return f, err == nil
	}
	return 0, false
}

// ToInt coerces a bridge value to int, truncating fractional parts.
func ToInt(v any) (int, bool) {
	f, ok := ToFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// ToBool coerces a bridge value to bool. The host sends "true"/"false",
// 0/1 and native bools depending on the call site.
func ToBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(CleanBridgeString(t)) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no", "":
			return false, true
		}
		return false, false
	}
	if f, ok := ToFloat(v); ok {
		return f != 0, true
	}
	return false, false
}

// ToString coerces a bridge value to a cleaned string.
func ToString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return CleanBridgeString(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}
