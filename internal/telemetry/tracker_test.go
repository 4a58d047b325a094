package telemetry

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batcom/engine/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func usage(in, out, cached int, latency time.Duration) model.TokenUsage {
	u := model.TokenUsage{
		InputTokens:  in,
		OutputTokens: out,
		CachedTokens: cached,
		Latency:      latency,
		Provider:     "gemini",
		Model:        "gemini-2.5-pro",
	}
	u.Normalize()
	return u
}

func TestTrackerRollingWindows(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	tr := NewTracker("", testLogger())
	tr.now = func() time.Time { return now }

	tr.Record(usage(100, 50, 0, 2*time.Second))

	now = now.Add(30 * time.Minute)
	tr.Record(usage(200, 80, 150, 4*time.Second))

	now = now.Add(90 * time.Second)
	s := tr.Stats()

	// Only the second call is inside the minute and it is 90s old now.
	assert.Zero(t, s.Minute.Calls)
	assert.Equal(t, 2, s.Hour.Calls)
	assert.Equal(t, 300, s.Hour.InputTokens)
	assert.Equal(t, 150, s.Hour.CachedTokens)
	assert.Equal(t, 2, s.Day.Calls)
	assert.Equal(t, 2, s.Lifetime.Calls)
	assert.Equal(t, int64(3000), s.Lifetime.AvgLatencyMs)
	assert.Equal(t, "gemini", s.Provider)
}

func TestTrackerLifetimeSurvivesPruning(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	tr := NewTracker("", testLogger())
	tr.now = func() time.Time { return now }

	tr.Record(usage(100, 50, 0, time.Second))
	now = now.Add(48 * time.Hour)
	tr.Record(usage(10, 5, 0, time.Second))

	s := tr.Stats()
	assert.Equal(t, 1, s.Day.Calls, "old event pruned from day window")
	assert.Equal(t, 2, s.Lifetime.Calls)
	assert.Equal(t, 110, s.Lifetime.InputTokens)
}

func TestTrackerJSONLAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token_usage.jsonl")
	tr := NewTracker(path, testLogger())

	tr.Record(usage(100, 50, 0, time.Second))
	tr.Stats()
	tr.Stats()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var s Stats
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &s))
		assert.Equal(t, 1, s.Lifetime.Calls)
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestTrackerBadPathNeverFails(t *testing.T) {
	tr := NewTracker("/nonexistent/dir/token_usage.jsonl", testLogger())
	tr.Record(usage(1, 1, 0, 0))
	s := tr.Stats()
	assert.Equal(t, 1, s.Lifetime.Calls)
}
