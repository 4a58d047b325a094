package commander

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/batcom/engine/internal/evaluate"
	"github.com/batcom/engine/internal/llm"
	"github.com/batcom/engine/internal/model"
)

const defaultSystemPrompt = `You are the tactical AI commander of a simulated battlefield force.
Each consultation you receive the current objectives, your recent order history, and a world state report.
Reply with a single JSON document of the shape {"reasoning": string, "orders": [order]}.
Each order has: "type" (one of move_to, defend_area, patrol_route, seek_and_destroy, transport_group, escort_group, fire_support, deploy_asset, spawn_squad), "group_id", "parameters", and optional "priority" (0-10, higher is more urgent) and "objective_id".
Issue only orders your forces can execute. Prefer a few decisive orders over many minor ones.
Objective priorities are listed on the scale stated in the objectives block.`

// buildRequest composes the provider request: stable blocks first so
// provider caches hit, dynamic world state last.
func (c *Commander) buildRequest(snap *model.Snapshot, evals []evaluate.ObjectiveEval) *llm.Request {
	intent := c.engine.Intent
	if c.firstCycleOfAO {
		if prev := c.ao.PreviousAOSummary(); prev != "" {
			intent = strings.TrimSpace(prev + "\n" + intent)
		}
	}
	return &llm.Request{
		SystemPrompt:    c.cfg.SystemPrompt,
		Objectives:      renderObjectives(evals),
		OrderHistory:    renderHistory(c.engine.OrderHistory),
		WorldState:      renderWorld(snap),
		MissionIntent:   intent,
		Thinking:        c.cfg.Thinking,
		MaxOutputTokens: c.cfg.MaxOutputTokens,
	}
}

func renderObjectives(evals []evaluate.ObjectiveEval) string {
	var b strings.Builder
	b.WriteString("OBJECTIVES (priority scale 0-10 unless noted):\n")
	if len(evals) == 0 {
		b.WriteString("none reported\n")
		return b.String()
	}
	for _, ev := range evals {
		o := ev.Objective
		fmt.Fprintf(&b, "- %s %q %s at [%.0f,%.0f] r=%.0fm: %s, priority %.1f (friendly %d, enemy %d)\n",
			o.ID, o.Description, o.TaskType,
			o.Position.X, o.Position.Y, o.Radius,
			ev.Posture, ev.DynamicPriority, ev.FriendlyCount, ev.EnemyCount)
	}
	return b.String()
}

func renderHistory(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return "RECENT ORDERS:\n" + strings.Join(lines, "\n")
}

// renderWorld reports the controllable force, known enemies, players and
// conditions. Positions are rounded to 10 m so jitter between snapshots
// does not churn the prompt.
func renderWorld(snap *model.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "WORLD STATE (mission time %.0fs, daytime %.1fh):\n", snap.MissionTime, snap.Daytime)
	fmt.Fprintf(&b, "weather: overcast %.2f, rain %.2f, fog %.2f, wind %.1fm/s\n",
		snap.Weather.Overcast, snap.Weather.Rain, snap.Weather.Fog, snap.Weather.Wind)

	b.WriteString("your groups:\n")
	for _, g := range snap.ControlledGroups() {
		fmt.Fprintf(&b, "- %s %s x%d at %s", g.ID, g.Class, g.UnitCount, roundPos(g.Position))
		if g.InCombat {
			b.WriteString(" IN COMBAT")
		}
		if g.Behaviour != "" {
			fmt.Fprintf(&b, " behaviour=%s", g.Behaviour)
		}
		b.WriteString("\n")
	}

	b.WriteString("known enemy groups:\n")
	enemies := snap.EnemyGroups()
	if len(enemies) == 0 {
		b.WriteString("none reported\n")
	}
	for _, g := range enemies {
		fmt.Fprintf(&b, "- %s %s x%d at %s\n", g.ID, g.Class, g.UnitCount, roundPos(g.Position))
	}

	if len(snap.Players) > 0 {
		fmt.Fprintf(&b, "players: %d on field\n", len(snap.Players))
	}
	if len(snap.Casualties) > 0 {
		fmt.Fprintf(&b, "casualties this tick: %d\n", len(snap.Casualties))
	}
	return b.String()
}

func roundPos(p model.Position) string {
	return fmt.Sprintf("[%.0f,%.0f]", math.Round(p.X/10)*10, math.Round(p.Y/10)*10)
}

// objectiveHash fingerprints the evaluated objective set for the
// significance check. Positions are rounded to 10 m.
func objectiveHash(evals []evaluate.ObjectiveEval) string {
	h := sha256.New()
	for _, ev := range evals {
		o := ev.Objective
		fmt.Fprintf(h, "%s|%s|%s|%.0f|%.0f|%.1f;",
			o.ID, o.State, ev.Posture,
			math.Round(o.Position.X/10)*10, math.Round(o.Position.Y/10)*10,
			ev.DynamicPriority)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// historyLine summarizes one cycle for the prompt history block.
func historyLine(cycle int, missionTime float64, accepted []model.Command, reasoning string) string {
	types := make([]string, 0, len(accepted))
	for _, cmd := range accepted {
		if cmd.GroupID != "" {
			types = append(types, fmt.Sprintf("%s->%s", cmd.Type, cmd.GroupID))
		} else {
			types = append(types, string(cmd.Type))
		}
	}
	summary := "no orders"
	if len(types) > 0 {
		summary = strings.Join(types, ", ")
	}
	reasoning = strings.TrimSpace(reasoning)
	if len(reasoning) > 120 {
		reasoning = reasoning[:120] + "..."
	}
	if reasoning != "" {
		return fmt.Sprintf("cycle %d (t=%.0fs): %s. %s", cycle, missionTime, summary, reasoning)
	}
	return fmt.Sprintf("cycle %d (t=%.0fs): %s", cycle, missionTime, summary)
}

// requestJSON renders the request for the API call log.
func requestJSON(req *llm.Request) []byte {
	out, err := json.Marshal(map[string]string{
		"system":     req.SystemPrompt,
		"objectives": req.Objectives,
		"history":    req.OrderHistory,
		"world":      req.WorldState,
		"intent":     req.MissionIntent,
	})
	if err != nil {
		return []byte("{}")
	}
	return out
}
