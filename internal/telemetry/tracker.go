// Package telemetry observes the LLM pipeline: rolling token usage
// counters, the per-AO API call log, and metric export to InfluxDB.
package telemetry

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/batcom/engine/internal/model"
)

// WindowStats aggregates token usage over one rolling window.
type WindowStats struct {
	Calls        int   `json:"calls"`
	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	CachedTokens int   `json:"cached_tokens"`
	TotalTokens  int   `json:"total_tokens"`
	AvgLatencyMs int64 `json:"avg_latency_ms"`
}

// Stats is the full rolling-bucket report for get_token_stats.
type Stats struct {
	Timestamp time.Time   `json:"timestamp"`
	Minute    WindowStats `json:"minute"`
	Hour      WindowStats `json:"hour"`
	Day       WindowStats `json:"day"`
	Lifetime  WindowStats `json:"lifetime"`
	Provider  string      `json:"provider,omitempty"`
	Model     string      `json:"model,omitempty"`
}

type usageEvent struct {
	at    time.Time
	usage model.TokenUsage
}

// Tracker keeps per-call usage events for the minute/hour/day windows plus
// lifetime counters. Events older than a day are pruned on write.
type Tracker struct {
	events   []usageEvent
	lifetime WindowStats
	lifetimeLatency int64

	lastProvider string
	lastModel    string

	path   string
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker creates a tracker. path is the token_usage.jsonl file; empty
// disables the append.
func NewTracker(path string, logger *slog.Logger) *Tracker {
	return &Tracker{path: path, logger: logger, now: time.Now}
}

// Record folds one LLM reply into the buckets.
func (t *Tracker) Record(u model.TokenUsage) {
	now := t.now()
	t.events = append(t.events, usageEvent{at: now, usage: u})
	t.prune(now)

	t.lifetime.Calls++
	t.lifetime.InputTokens += u.InputTokens
	t.lifetime.OutputTokens += u.OutputTokens
	t.lifetime.CachedTokens += u.CachedTokens
	t.lifetime.TotalTokens += u.TotalTokens
	t.lifetimeLatency += u.LatencyMs
	if t.lifetime.Calls > 0 {
		t.lifetime.AvgLatencyMs = t.lifetimeLatency / int64(t.lifetime.Calls)
	}
	t.lastProvider = u.Provider
	t.lastModel = u.Model
}

func (t *Tracker) prune(now time.Time) {
	cutoff := now.Add(-24 * time.Hour)
	kept := t.events[:0]
	for _, ev := range t.events {
		if ev.at.After(cutoff) {
			kept = append(kept, ev)
		}
	}
	t.events = kept
}

func (t *Tracker) window(now time.Time, span time.Duration) WindowStats {
	var w WindowStats
	var latency int64
	cutoff := now.Add(-span)
	for _, ev := range t.events {
		if !ev.at.After(cutoff) {
			continue
		}
		w.Calls++
		w.InputTokens += ev.usage.InputTokens
		w.OutputTokens += ev.usage.OutputTokens
		w.CachedTokens += ev.usage.CachedTokens
		w.TotalTokens += ev.usage.TotalTokens
		latency += ev.usage.LatencyMs
	}
	if w.Calls > 0 {
		w.AvgLatencyMs = latency / int64(w.Calls)
	}
	return w
}

// Stats reports the current rolling buckets and appends a JSONL line to the
// usage file. File trouble is logged, never raised.
func (t *Tracker) Stats() Stats {
	now := t.now()
	t.prune(now)
	s := Stats{
		Timestamp: now.UTC(),
		Minute:    t.window(now, time.Minute),
		Hour:      t.window(now, time.Hour),
		Day:       t.window(now, 24*time.Hour),
		Lifetime:  t.lifetime,
		Provider:  t.lastProvider,
		Model:     t.lastModel,
	}
	t.appendJSONL(s)
	return s
}

func (t *Tracker) appendJSONL(s Stats) {
	if t.path == "" {
		return
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		t.logger.Warn("token usage file open failed", "path", t.path, "error", err)
		return
	}
	defer f.Close()
	line, err := json.Marshal(s)
	if err != nil {
		t.logger.Warn("token usage encode failed", "error", err)
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		t.logger.Warn("token usage append failed", "path", t.path, "error", err)
	}
}
