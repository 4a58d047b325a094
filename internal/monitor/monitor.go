// Package monitor periodically reports engine health: circuit-breaker
// position, command queue depth, rolling token spend, and the active AO.
// It writes a status file next to the engine logs and feeds the Influx
// exporter, so a stalled provider chain is visible without log access.
package monitor

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/batcom/engine/internal/cmdqueue"
	"github.com/batcom/engine/internal/llm"
	"github.com/batcom/engine/internal/state"
	"github.com/batcom/engine/internal/telemetry"
)

// Dependencies holds all dependencies for the monitor service.
type Dependencies struct {
	Queue   *cmdqueue.Queue
	Tracker *telemetry.Tracker
	AO      *state.AOManager

	// Exporter is optional; nil disables Influx health points.
	Exporter *telemetry.Exporter

	// Manager returns the current provider chain, nil while the LLM layer
	// is disabled.
	Manager func() *llm.Manager

	// StatusDir is where status.json is written. Empty disables the file.
	StatusDir string

	Logger *slog.Logger
}

// Health is one sampled status report.
type Health struct {
	Time                time.Time `json:"time"`
	AOPhase             string    `json:"ao_phase"`
	AOID                string    `json:"ao_id,omitempty"`
	Breaker             string    `json:"breaker"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	QueueLength         int       `json:"queue_length"`
	CallsLifetime       int       `json:"calls_lifetime"`
	TokensLifetime      int       `json:"tokens_lifetime"`
}

// Service manages status monitoring.
type Service struct {
	deps      Dependencies
	interval  time.Duration
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a new monitor service. interval <= 0 defaults to 10 s.
func NewService(deps Dependencies, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Service{
		deps:     deps,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Sample reads the current engine health.
func (s *Service) Sample() Health {
	h := Health{
		Time:    time.Now().UTC(),
		AOPhase: string(s.deps.AO.Phase()),
		Breaker: "no providers",
	}
	if ao := s.deps.AO.Current(); ao != nil {
		h.AOID = ao.ID
	}
	if s.deps.Manager != nil {
		if mgr := s.deps.Manager(); mgr != nil {
			h.Breaker = mgr.BreakerState().String()
			h.ConsecutiveFailures = mgr.Breaker().ConsecutiveFailures()
		}
	}
	h.QueueLength = s.deps.Queue.Len()
	stats := s.deps.Tracker.Stats()
	h.CallsLifetime = stats.Lifetime.Calls
	h.TokensLifetime = stats.Lifetime.TotalTokens
	return h
}

// Start starts the status monitor goroutine.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		s.deps.Logger.Debug("Starting status monitor goroutine")

		var statusFile *os.File
		if s.deps.StatusDir != "" {
			var err error
			statusFile, err = os.Create(filepath.Join(s.deps.StatusDir, "status.json"))
			if err != nil {
				s.deps.Logger.Error("Error creating status file", "error", err)
			} else {
				defer statusFile.Close()
			}
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				h := s.Sample()

				if statusFile != nil {
					if b, err := json.MarshalIndent(h, "", "  "); err == nil {
						statusFile.Truncate(0)
						statusFile.Seek(0, 0)
						statusFile.Write(append(b, '\n'))
					}
				}

				if s.deps.Exporter != nil {
					s.deps.Exporter.RecordHealth(h.Breaker, h.ConsecutiveFailures, h.QueueLength)
				}

				s.deps.Logger.Debug("engine status",
					"ao_phase", h.AOPhase,
					"breaker", h.Breaker,
					"queue", h.QueueLength,
					"tokens", h.TokensLifetime)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	close(s.stopChan)
}
