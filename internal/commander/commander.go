// Package commander is the decision orchestrator: it turns accepted
// snapshots into LLM consultations, validated orders, and sealed cycle
// records.
package commander

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/batcom/engine/internal/cmdqueue"
	"github.com/batcom/engine/internal/evaluate"
	"github.com/batcom/engine/internal/llm"
	"github.com/batcom/engine/internal/model"
	"github.com/batcom/engine/internal/orders"
	"github.com/batcom/engine/internal/pairlist"
	"github.com/batcom/engine/internal/snapshot"
	"github.com/batcom/engine/internal/state"
	"github.com/batcom/engine/internal/telemetry"
	"github.com/batcom/engine/internal/util"
)

// Provider is the commander's view of the LLM layer.
type Provider interface {
	GenerateOrders(ctx context.Context, req *llm.Request) (*llm.Response, error)
	BreakerState() llm.BreakerState
}

// Config tunes the orchestrator.
type Config struct {
	Enabled bool
	// MinInterval is the mission-time spacing between consultations, in
	// seconds. Zero consults on every snapshot that is significant.
	MinInterval float64

	MaxCommandsPerTick int

	SandboxEnabled  bool
	AllowedCommands []model.CommandType
	BlockedCommands []model.CommandType
	MaxUnitsPerSide int

	SystemPrompt    string
	MaxOutputTokens int
	Thinking        llm.Thinking
	LogThoughts     bool
}

// Commander drives the per-snapshot decision flow.
type Commander struct {
	cfg        Config
	logger     *slog.Logger
	normalizer *snapshot.Normalizer
	engine     *state.Engine
	ao         *state.AOManager
	pool       *state.ResourcePool
	provider   Provider
	parser     *orders.Parser
	queue      *cmdqueue.Queue
	tracker    *telemetry.Tracker
	exporter   *telemetry.Exporter

	apiLog *telemetry.APILogger

	cycle               int
	lastDecisionMission float64
	lastMissionTime     float64
	lastObjectiveHash   string
	lastCompleted       int
	inCombat            map[string]bool
	breakerWasOpen      bool
	firstCycleOfAO      bool
}

// New wires a commander. exporter may be nil when Influx is disabled.
func New(cfg Config, engine *state.Engine, ao *state.AOManager, pool *state.ResourcePool,
	provider Provider, queue *cmdqueue.Queue, tracker *telemetry.Tracker,
	exporter *telemetry.Exporter, logger *slog.Logger) *Commander {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	return &Commander{
		cfg:                 cfg,
		logger:              logger,
		normalizer:          snapshot.NewNormalizer(logger),
		engine:              engine,
		ao:                  ao,
		pool:                pool,
		provider:            provider,
		parser:              orders.NewParser(logger),
		queue:               queue,
		tracker:             tracker,
		exporter:            exporter,
		lastDecisionMission: math.Inf(-1),
		inCombat:            make(map[string]bool),
	}
}

// Reconfigure replaces the tuning config. Used when the admin surface
// pushes new LLM or safety settings mid-session.
func (c *Commander) Reconfigure(cfg Config) {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	c.cfg = cfg
}

// SetProvider swaps the LLM layer, after a provider rebuild.
func (c *Commander) SetProvider(p Provider) {
	c.provider = p
}

// StartAO opens a fresh AO and its API call log.
func (c *Commander) StartAO(id, worldName, missionName string, index int, apiLog *telemetry.APILogger) error {
	if err := c.ao.StartAO(id, worldName, missionName, index); err != nil {
		return err
	}
	if c.apiLog != nil {
		c.apiLog.Close()
	}
	c.apiLog = apiLog
	c.cycle = 0
	c.firstCycleOfAO = true
	return nil
}

// EndAO seals the AO, closes the API log, and returns the analysis.
func (c *Commander) EndAO() (*state.AnalysisData, error) {
	analysis, err := c.ao.EndAO()
	if err != nil {
		return nil, err
	}
	if c.apiLog != nil {
		c.apiLog.Close()
		c.apiLog = nil
	}
	return analysis, nil
}

// Drain hands the host up to max_commands_per_tick validated commands.
func (c *Commander) Drain() []model.Command {
	return c.queue.Drain(c.cfg.MaxCommandsPerTick)
}

// ClearOrders drops the queue and the prompt order history. Used by
// emergency stop.
func (c *Commander) ClearOrders() {
	c.queue.Clear()
	c.engine.OrderHistory = nil
}

// Consultation is a prepared decision cycle. IngestSnapshot builds it under
// the caller's serialization; Execute runs the provider call and is safe to
// invoke without it, so admin traffic and command drains keep flowing while
// the model thinks.
type Consultation struct {
	snap     *model.Snapshot
	evals    []evaluate.ObjectiveEval
	req      *llm.Request
	provider Provider
	start    time.Time

	resp *llm.Response
	err  error
}

// Execute runs the provider call. Touches no commander state.
func (k *Consultation) Execute(ctx context.Context) {
	k.start = time.Now()
	k.resp, k.err = k.provider.GenerateOrders(ctx, k.req)
}

// ProcessSnapshot runs the full per-snapshot flow. A normalization failure
// is returned without touching state; every later stage degrades instead of
// failing the ingestion.
func (c *Commander) ProcessSnapshot(ctx context.Context, raw *pairlist.Map) error {
	k, err := c.IngestSnapshot(raw)
	if err != nil {
		return err
	}
	if k == nil {
		return nil
	}
	k.Execute(ctx)
	c.ApplyConsultation(k)
	return nil
}

// IngestSnapshot applies one snapshot to engine state and, when the decision
// predicate fires, returns the prepared consultation. A nil consultation
// means a quiet tick.
func (c *Commander) IngestSnapshot(raw *pairlist.Map) (*Consultation, error) {
	snap, err := c.normalizer.Ingest(raw)
	if err != nil {
		c.logger.Warn("snapshot rejected", "error", err)
		return nil, fmt.Errorf("bad snapshot: %w", err)
	}

	dt := snap.MissionTime - c.lastMissionTime
	c.lastMissionTime = snap.MissionTime

	c.engine.ApplySnapshot(snap)
	c.ao.RecordCasualties(snap.Casualties, snap)
	if dt > 0 {
		c.ao.RecordProximity(snap, dt)
	}

	objectives := c.engine.Objectives()
	evals := evaluate.Evaluate(snap, objectives)

	if !c.shouldConsult(snap, evals) {
		return nil, nil
	}
	c.noteCycleBaseline(snap, evals)
	return &Consultation{
		snap:     snap,
		evals:    evals,
		req:      c.buildRequest(snap, evals),
		provider: c.provider,
	}, nil
}

// shouldConsult is the decision predicate: the mission-time interval has
// elapsed AND something significant changed.
func (c *Commander) shouldConsult(snap *model.Snapshot, evals []evaluate.ObjectiveEval) bool {
	if !c.cfg.Enabled || !c.engine.Deployed || c.provider == nil {
		return false
	}
	if c.provider.BreakerState() == llm.BreakerOpen {
		c.logger.Debug("consultation skipped, breaker open")
		c.breakerWasOpen = true
		return false
	}
	if snap.MissionTime-c.lastDecisionMission < c.cfg.MinInterval {
		return false
	}

	// A zero interval means consult on every snapshot.
	if c.cfg.MinInterval == 0 {
		return true
	}
	if c.firstCycleOfAO {
		return true
	}

	if objectiveHash(evals) != c.lastObjectiveHash {
		return true
	}
	for _, g := range snap.Groups {
		if g.InCombat && !c.inCombat[g.ID] {
			return true
		}
	}
	if completedCount(snap) > c.lastCompleted {
		return true
	}
	if c.breakerWasOpen && c.provider.BreakerState() != llm.BreakerOpen {
		return true
	}
	return false
}

// noteCycleBaseline records the change baselines for the next predicate run.
// Only called when a cycle fires, so a trigger that lands inside the
// min-interval window persists until a consultation consumes it.
func (c *Commander) noteCycleBaseline(snap *model.Snapshot, evals []evaluate.ObjectiveEval) {
	c.lastObjectiveHash = objectiveHash(evals)
	for _, g := range snap.Groups {
		c.inCombat[g.ID] = g.InCombat
	}
	if n := completedCount(snap); n > c.lastCompleted {
		c.lastCompleted = n
	}
	c.breakerWasOpen = false
}

// ApplyConsultation folds an executed consultation back into engine state:
// parsing, sandboxing, queueing, and the cycle record. Runs under the same
// serialization as IngestSnapshot.
func (c *Commander) ApplyConsultation(k *Consultation) {
	snap, evals, req, resp := k.snap, k.evals, k.req, k.resp
	if k.err != nil {
		c.logger.Error("consultation failed", "error", k.err)
		if c.exporter != nil {
			c.exporter.RecordHealth(k.provider.BreakerState().String(), 0, c.queue.Len())
		}
		return
	}
	c.lastDecisionMission = snap.MissionTime
	c.firstCycleOfAO = false
	c.cycle++

	result := c.parser.Parse(resp.RawOrders)
	for _, warn := range result.Warnings {
		c.logger.Warn("order dropped", "reason", warn)
	}
	for _, perr := range result.Errors {
		c.logger.Error("reply parse failure", "error", perr)
	}

	sandbox := orders.NewSandbox(orders.SandboxConfig{
		Snapshot:         snap,
		Bounds:           c.engine.Bounds,
		Pool:             c.pool,
		Enabled:          c.cfg.SandboxEnabled,
		AllowedCommands:  c.cfg.AllowedCommands,
		BlockedCommands:  c.cfg.BlockedCommands,
		MaxUnitsPerSide:  c.cfg.MaxUnitsPerSide,
		LiveUnits:        c.engine.LiveUnits(),
		ControlledGroups: c.engine.ControlledGroupIDs,
		DefensePhase:     c.engine.DefensePhase,
		PendingGroups:    result.PendingGroups,
		Cycle:            c.cycle,
	}, c.logger)

	var accepted []model.Command
	var rejected []string
	for _, order := range result.Orders {
		cmd, rej := sandbox.Validate(order)
		if rej != nil {
			rejected = append(rejected, fmt.Sprintf("%s %s: %s", order.Type, order.GroupID, rej.Reason))
			c.logger.Warn("order rejected", "type", order.Type, "group", order.GroupID, "reason", rej.Reason)
			continue
		}
		c.queue.Enqueue(cmd)
		accepted = append(accepted, cmd)
	}

	c.engine.AppendOrderHistory(historyLine(c.cycle, snap.MissionTime, accepted, result.Reasoning))

	rec := state.CycleRecord{
		Cycle:       c.cycle,
		MissionTime: snap.MissionTime,
		WallTime:    time.Now().UTC(),
		Commentary:  result.Reasoning,
		Accepted:    accepted,
		Rejected:    rejected,
		Objectives:  objectivesOf(evals),
		Usage:       resp.Usage,
	}
	if err := c.ao.RecordCycle(rec); err != nil {
		c.logger.Warn("cycle record dropped", "cycle", c.cycle, "error", err)
	}

	c.tracker.Record(resp.Usage)
	if c.exporter != nil {
		aoID := ""
		if ao := c.ao.Current(); ao != nil {
			aoID = ao.ID
		}
		c.exporter.RecordUsage(aoID, resp.Usage)
		c.exporter.RecordCycle(aoID, c.cycle, len(accepted), len(rejected), snap.MissionTime)
	}
	if c.apiLog != nil {
		thoughts := ""
		if c.cfg.LogThoughts {
			thoughts = resp.Thoughts
		}
		c.apiLog.Call(c.cycle, snap.MissionTime, resp.Usage, requestJSON(req), resp.RawOrders, thoughts)
	}

	c.logger.Info("decision cycle complete",
		"cycle", c.cycle,
		"accepted", len(accepted),
		"rejected", len(rejected),
		"latency", time.Since(k.start),
		"total_tokens", resp.Usage.TotalTokens)
}

func objectivesOf(evals []evaluate.ObjectiveEval) []model.Objective {
	out := make([]model.Objective, 0, len(evals))
	for _, ev := range evals {
		out = append(out, ev.Objective)
	}
	return out
}

// completedCount reads the host's completed-command counter from the
// mission variables, when reported.
func completedCount(snap *model.Snapshot) int {
	v, ok := snap.MissionVariables["completed_commands"]
	if !ok {
		return 0
	}
	n, _ := util.ToInt(v)
	return n
}
