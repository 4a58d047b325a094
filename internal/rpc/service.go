// Package rpc is the host-facing surface of the engine: the named bridge
// functions and the admin command table. Arguments arrive as pair-list
// payloads and every response is a pair list carrying a status field; an
// engine failure comes back as {status: "error", error: ...}, never as a
// raised fault.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/batcom/engine/internal/commander"
	"github.com/batcom/engine/internal/config"
	"github.com/batcom/engine/internal/dispatcher"
	"github.com/batcom/engine/internal/geo"
	"github.com/batcom/engine/internal/llm"
	"github.com/batcom/engine/internal/logging"
	"github.com/batcom/engine/internal/pairlist"
	"github.com/batcom/engine/internal/state"
	"github.com/batcom/engine/internal/telemetry"
)

// snapshotQueue bounds the async ingestion buffer. Snapshots beyond it are
// dropped rather than stalling the host tick.
const snapshotQueue = 64

// Dependencies holds the engine singletons the service operates.
type Dependencies struct {
	Engine    *state.Engine
	AO        *state.AOManager
	Pool      *state.ResourcePool
	Commander *commander.Commander
	Tracker   *telemetry.Tracker

	Version string
	LogsDir string

	// BuildManager constructs the provider chain from the current settings
	// and session API keys. Nil uses the settings-backed default.
	BuildManager func(ctx context.Context, sessionKeys map[string]string) (*llm.Manager, error)

	Logger *slog.Logger
}

// Service exposes the bridge functions. One mutex serializes admin calls
// and snapshot state mutation, so session state never sees a torn update.
// The provider call itself runs lock-free between the ingest and apply
// phases of a consultation.
type Service struct {
	deps Dependencies

	mu          sync.Mutex
	initialized bool
	manager     *llm.Manager
	aoIndex     int

	now func() time.Time
}

// NewService wires a service over its dependencies.
func NewService(deps Dependencies) *Service {
	return &Service{deps: deps, now: time.Now}
}

// Register installs the bridge functions on the dispatcher. Snapshot
// ingestion is buffered so the host tick never waits on a consultation.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	d.Register("init", s.handleInit, dispatcher.Logged())
	d.Register("shutdown", s.handleShutdown)
	d.Register("is_initialized", s.handleIsInitialized)
	d.Register("world_snapshot", s.handleSnapshot, dispatcher.Buffered(snapshotQueue), dispatcher.Logged())
	d.Register("get_pending_commands", s.handleGetCommands)
	d.Register("admin_command", s.handleAdmin, dispatcher.Logged())
	d.Register("test_connection", s.handleTestConnection)
	d.Register("get_token_stats", s.handleTokenStats)
}

// Manager returns the current provider manager, nil while the LLM layer is
// disabled or not yet configured.
func (s *Service) Manager() *llm.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager
}

func reply(m *pairlist.Map) (any, error) {
	enc, err := m.Encode()
	if err != nil {
		return `[["status","error"],["error","encoding response"]]`, nil
	}
	return enc, nil
}

func fail(err error) (any, error) {
	return reply(pairlist.Error(err))
}

// handleInit applies the host's configuration record, builds the provider
// chain, and marks the engine ready. A provider build failure with
// ai.enabled is fatal for the call: the engine stays uninitialized.
func (s *Service) handleInit(e dispatcher.Event) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(e.Args) > 0 && strings.TrimSpace(e.Args[0]) != "" {
		record, err := pairlist.Decode(e.Args[0])
		if err != nil {
			return fail(fmt.Errorf("bad config record: %w", err))
		}
		config.ApplyRecord(record)
		if g, ok := record.Child("guardrails"); ok {
			if err := s.applyGuardrails(g); err != nil {
				return fail(err)
			}
		}
	}

	if err := s.reconfigureLLM(context.Background()); err != nil {
		return fail(err)
	}
	s.initialized = true
	s.deps.Logger.Info("engine initialized", "version", s.deps.Version)
	return reply(pairlist.OK("version", s.deps.Version))
}

// handleShutdown seals a running AO and drops the provider chain. The
// service can be re-initialized afterwards.
func (s *Service) handleShutdown(dispatcher.Event) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deps.AO.Phase() == state.AORunning {
		if _, err := s.deps.Commander.EndAO(); err != nil {
			s.deps.Logger.Warn("sealing ao on shutdown", "error", err)
		}
	}
	if s.manager != nil {
		s.manager.ClearCaches(context.Background())
		s.manager = nil
	}
	s.deps.Commander.SetProvider(nil)
	s.initialized = false
	s.deps.Logger.Info("engine shut down")
	return reply(pairlist.OK())
}

func (s *Service) handleIsInitialized(dispatcher.Event) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return reply(pairlist.OK("initialized", s.initialized))
}

// handleSnapshot ingests one world snapshot. A malformed payload is
// reported and dropped; engine state is untouched. The provider call runs
// outside the service mutex, so emergencyStop can cancel it and command
// drains keep flowing during a consultation.
func (s *Service) handleSnapshot(e dispatcher.Event) (any, error) {
	if len(e.Args) == 0 {
		return fail(errors.New("missing snapshot payload"))
	}
	m, err := pairlist.Decode(e.Args[0])
	if err != nil {
		return fail(fmt.Errorf("bad snapshot: %w", err))
	}

	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return fail(errors.New("engine not initialized"))
	}
	consult, err := s.deps.Commander.IngestSnapshot(m)
	s.mu.Unlock()
	if err != nil {
		return fail(err)
	}
	if consult == nil {
		return reply(pairlist.OK())
	}

	consult.Execute(context.Background())

	s.mu.Lock()
	s.deps.Commander.ApplyConsultation(consult)
	s.mu.Unlock()
	return reply(pairlist.OK())
}

// handleGetCommands drains up to max_commands_per_tick validated commands.
// Drained commands are gone; the host owns them from here.
func (s *Service) handleGetCommands(dispatcher.Event) (any, error) {
	s.mu.Lock()
	cmds := s.deps.Commander.Drain()
	s.mu.Unlock()

	out := make([]any, 0, len(cmds))
	for _, cmd := range cmds {
		p, err := commandPairs(cmd)
		if err != nil {
			s.deps.Logger.Error("encoding drained command", "type", cmd.Type, "error", err)
			continue
		}
		out = append(out, p)
	}
	return reply(pairlist.OK("commands", out))
}

// handleTestConnection probes the provider chain, bypassing the breaker.
func (s *Service) handleTestConnection(dispatcher.Event) (any, error) {
	s.mu.Lock()
	mgr := s.manager
	s.mu.Unlock()
	if mgr == nil {
		return fail(errors.New("no providers configured"))
	}

	name, greeting, err := mgr.TestConnection(context.Background())
	if err != nil {
		return fail(err)
	}
	modelID := ""
	if p := mgr.Primary(); p != nil {
		modelID = p.ModelID()
	}
	return reply(pairlist.OK("provider", name, "model", modelID, "greeting", greeting))
}

// handleTokenStats reports the rolling usage windows plus the breaker
// position, so a stuck provider is visible without log access.
func (s *Service) handleTokenStats(dispatcher.Event) (any, error) {
	s.mu.Lock()
	stats := s.deps.Tracker.Stats()
	breaker := "no providers"
	var nextWait time.Duration
	if s.manager != nil {
		breaker = s.manager.BreakerState().String()
		nextWait = s.manager.WouldWait()
	}
	s.mu.Unlock()

	p, err := jsonPairs(stats)
	if err != nil {
		return fail(err)
	}
	return reply(pairlist.OK("stats", p, "breaker", breaker,
		"next_call_wait_ms", nextWait.Milliseconds()))
}

// reconfigureLLM rebuilds the provider chain from the current settings and
// swaps it into the commander. With ai.enabled off the chain is dropped.
func (s *Service) reconfigureLLM(ctx context.Context) error {
	cfg := CommanderSettings()
	if !cfg.Enabled {
		s.manager = nil
		s.deps.Commander.Reconfigure(cfg)
		s.deps.Commander.SetProvider(nil)
		return nil
	}

	mgr, err := s.buildManager(ctx)
	if err != nil {
		return fmt.Errorf("configuring llm providers: %w", err)
	}
	s.manager = mgr
	s.deps.Commander.Reconfigure(cfg)
	s.deps.Commander.SetProvider(mgr)
	return nil
}

func (s *Service) buildManager(ctx context.Context) (*llm.Manager, error) {
	build := s.deps.BuildManager
	if build == nil {
		build = func(ctx context.Context, keys map[string]string) (*llm.Manager, error) {
			clients, err := llm.BuildClients(ctx, ProviderSettings(), keys, s.deps.Logger)
			if err != nil {
				return nil, err
			}
			return llm.NewManager(clients, ManagerSettings(), s.deps.Logger), nil
		}
	}
	return build(ctx, s.deps.Engine.SessionKeys)
}

// applyGuardrails installs the AO bounds and the resource pool from a
// guardrails record.
func (s *Service) applyGuardrails(g *pairlist.Map) error {
	if b, ok := g.Child("ao_bounds"); ok {
		bounds, err := geo.FromMap(b.ToAny())
		if err != nil {
			return fmt.Errorf("ao_bounds: %w", err)
		}
		s.deps.Engine.Bounds = bounds
	}
	if rp, ok := g.Child("resource_pool"); ok {
		spec := make(map[string]map[string]any, rp.Len())
		for _, side := range rp.Keys() {
			assets, ok := rp.Child(side)
			if !ok {
				return fmt.Errorf("resource_pool side %s is not a record", side)
			}
			entry := make(map[string]any, assets.Len())
			for _, assetType := range assets.Keys() {
				if rec, ok := assets.Child(assetType); ok {
					entry[assetType] = rec.ToAny()
				} else if v, ok := assets.Get(assetType); ok {
					entry[assetType] = v
				}
			}
			spec[side] = entry
		}
		if err := s.deps.Pool.LoadGuardrails(spec); err != nil {
			return err
		}
	}
	return nil
}

// startAO opens a fresh AO with its own API call log file.
func (s *Service) startAO(aoID, worldName, missionName string) error {
	idx := s.aoIndex + 1
	var apiLog *telemetry.APILogger
	if s.deps.LogsDir != "" {
		path := logging.APICallLogPath(s.deps.LogsDir, worldName, missionName, idx, s.now())
		apiLog = telemetry.NewAPILogger(path, aoID, worldName, missionName, s.deps.Logger)
	}
	if err := s.deps.Commander.StartAO(aoID, worldName, missionName, idx, apiLog); err != nil {
		return err
	}
	s.aoIndex = idx
	return nil
}
