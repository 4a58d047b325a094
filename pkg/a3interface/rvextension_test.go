package a3interface

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatDispatchResponse(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		result   any
		err      error
		expected string
	}{
		{
			name:     "pair-list reply passes through verbatim",
			command:  "is_initialized",
			result:   `[["status","ok"],["initialized",true]]`,
			err:      nil,
			expected: `[["status","ok"],["initialized",true]]`,
		},
		{
			name:     "plain string is wrapped",
			command:  "init",
			result:   "queued",
			err:      nil,
			expected: `["ok", "queued"]`,
		},
		{
			name:     "nil result",
			command:  "shutdown",
			result:   nil,
			err:      nil,
			expected: `["ok"]`,
		},
		{
			name:     "error response",
			command:  "world_snapshot",
			result:   nil,
			err:      errors.New("no handler registered"),
			expected: `["error", "no handler registered"]`,
		},
		{
			name:     "string array is JSON encoded",
			command:  "version",
			result:   []string{"0.0.1", "2026-02-01"},
			err:      nil,
			expected: `["ok", ["0.0.1","2026-02-01"]]`,
		},
		{
			name:     "int array is JSON encoded",
			command:  "data",
			result:   []int{1, 2, 3},
			err:      nil,
			expected: `["ok", [1,2,3]]`,
		},
		{
			name:     "map is JSON encoded",
			command:  "stats",
			result:   map[string]int{"count": 42},
			err:      nil,
			expected: `["ok", {"count":42}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatDispatchResponse(tt.command, tt.result, tt.err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestResponseFormatConsistency(t *testing.T) {
	t.Run("success responses open an array", func(t *testing.T) {
		responses := []struct {
			result any
		}{
			{result: "simple string"},
			{result: []string{"a", "b"}},
			{result: nil},
			{result: 42},
		}

		for _, r := range responses {
			got := formatDispatchResponse("test_connection", r.result, nil)
			assert.True(t, strings.HasPrefix(got, `[`))
			assert.False(t, strings.HasPrefix(got, `["error"`))
		}
	})

	t.Run("error responses start with error", func(t *testing.T) {
		got := formatDispatchResponse("test_connection", nil, errors.New("test error"))
		expected := `["error", "test error"]`
		assert.Equal(t, expected, got)
	})
}
