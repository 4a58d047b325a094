package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Thinking carries the reasoning-mode knobs shared by all providers.
type Thinking struct {
	Enabled bool
	// Mode selects the knob dialect: "native_sdk" uses the provider's
	// budget field, "openai_compat" uses reasoning_effort.
	Mode string
	// BudgetTokens is the native budget; ignored when BudgetDynamic is set.
	BudgetTokens int
	// BudgetDynamic lets the provider size its own reasoning budget.
	BudgetDynamic bool
	// Level is the coarse native level where budgets are unsupported.
	Level string
	// ReasoningEffort is the openai_compat dial: minimal/low/medium/high/none.
	ReasoningEffort string
	// IncludeThoughts asks for the model's rationale in the reply.
	IncludeThoughts bool
}

// Request is the provider-independent order consultation. The commander
// renders each block to text; providers only decide how to transmit them.
type Request struct {
	// Cacheable across calls: stable for many cycles.
	SystemPrompt string
	Objectives   string
	OrderHistory string

	// Dynamic: changes every call.
	WorldState    string
	MissionIntent string

	Thinking Thinking

	MaxOutputTokens int
}

// CacheablePart joins the prompt blocks eligible for provider-native
// context caching.
func (r *Request) CacheablePart() string {
	var b strings.Builder
	b.WriteString(r.Objectives)
	if r.OrderHistory != "" {
		b.WriteString("\n\n")
		b.WriteString(r.OrderHistory)
	}
	return b.String()
}

// DynamicPart joins the per-call blocks that are always sent inline.
func (r *Request) DynamicPart() string {
	var b strings.Builder
	b.WriteString(r.WorldState)
	if r.MissionIntent != "" {
		b.WriteString("\n\nCOMMANDER INTENT:\n")
		b.WriteString(r.MissionIntent)
	}
	return b.String()
}

// CacheKey is the content hash that decides cache handle reuse: when it
// changes, the old handle is discarded.
func (r *Request) CacheKey() string {
	h := sha256.New()
	h.Write([]byte(r.SystemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(r.CacheablePart()))
	return hex.EncodeToString(h.Sum(nil))
}

// InlinePrompt renders the whole request as a single prompt, used when
// caching is unavailable or has failed.
func (r *Request) InlinePrompt() string {
	var b strings.Builder
	b.WriteString(r.CacheablePart())
	b.WriteString("\n\n")
	b.WriteString(r.DynamicPart())
	return b.String()
}
