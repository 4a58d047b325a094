package rpc

import (
	"strconv"
	"time"

	"github.com/batcom/engine/internal/commander"
	"github.com/batcom/engine/internal/config"
	"github.com/batcom/engine/internal/llm"
	"github.com/batcom/engine/internal/model"
	"github.com/batcom/engine/internal/util"
)

// CommanderSettings builds the orchestrator config from the loaded settings.
func CommanderSettings() commander.Config {
	return commander.Config{
		Enabled:            config.GetBool("ai.enabled"),
		MinInterval:        config.GetFloat("ai.min_interval"),
		MaxCommandsPerTick: config.GetInt("runtime.max_commands_per_tick"),
		SandboxEnabled:     config.GetBool("safety.sandbox_enabled"),
		AllowedCommands:    commandTypes(config.GetStringSlice("safety.allowed_commands")),
		BlockedCommands:    commandTypes(config.GetStringSlice("safety.blocked_commands")),
		MaxUnitsPerSide:    config.GetInt("safety.max_units_per_side"),
		SystemPrompt:       config.GetString("ai.system_prompt"),
		MaxOutputTokens:    config.GetInt("ai.max_output_tokens"),
		Thinking:           thinkingSettings(),
		LogThoughts:        config.GetBool("ai.log_thoughts_to_file"),
	}
}

// ProviderSettings builds the provider slots. ai.llm_providers, when set,
// carries the full fallback chain; the flat ai.* keys remain the
// single-provider form. Priority ordering happens inside the client factory.
func ProviderSettings() []llm.ProviderConfig {
	if raw, ok := config.Get("ai.llm_providers").([]any); ok {
		slots := make([]llm.ProviderConfig, 0, len(raw))
		for _, entry := range raw {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			slots = append(slots, providerSlot(m))
		}
		if len(slots) > 0 {
			return slots
		}
	}
	return []llm.ProviderConfig{{
		Name:            config.GetString("ai.provider"),
		Model:           config.GetString("ai.model"),
		Endpoint:        config.GetString("ai.endpoint"),
		APIKey:          config.GetString("ai.api_key"),
		Enabled:         config.GetBool("ai.enabled"),
		APIMode:         config.GetString("ai.api_mode"),
		AzureAPIVersion: config.GetString("ai.azure_api_version"),
	}}
}

// providerSlot maps one llm_providers entry. An absent enabled key means
// enabled; an absent priority sorts last.
func providerSlot(m map[string]any) llm.ProviderConfig {
	str := func(key string) string {
		v, _ := m[key].(string)
		return v
	}
	enabled := true
	if v, ok := m["enabled"]; ok {
		enabled, _ = util.ToBool(v)
	}
	priority := 999
	if v, ok := m["priority"]; ok {
		if n, ok := util.ToInt(v); ok {
			priority = n
		}
	}
	return llm.ProviderConfig{
		Name:            str("provider"),
		Model:           str("model"),
		Endpoint:        str("endpoint"),
		APIKey:          str("api_key"),
		Enabled:         enabled,
		Priority:        priority,
		APIMode:         str("api_mode"),
		AzureAPIVersion: str("azure_api_version"),
	}
}

// ManagerSettings builds the call timeout and rate limits for the manager.
func ManagerSettings() llm.ManagerConfig {
	return llm.ManagerConfig{
		Timeout: time.Duration(config.GetInt("ai.timeout")) * time.Second,
		RPM:     config.GetInt("ai.rate_limit_rpm"),
	}
}

// thinkingSettings reads the reasoning knobs. thinking_budget accepts an
// integer, 0, or the literal "dynamic".
func thinkingSettings() llm.Thinking {
	budgetRaw := config.GetString("ai.thinking_budget")
	budget, _ := strconv.Atoi(budgetRaw)
	return llm.Thinking{
		Enabled:         config.GetBool("ai.thinking_enabled"),
		Mode:            config.GetString("ai.thinking_mode"),
		BudgetTokens:    budget,
		BudgetDynamic:   budgetRaw == "dynamic",
		Level:           config.GetString("ai.thinking_level"),
		ReasoningEffort: config.GetString("ai.reasoning_effort"),
		IncludeThoughts: config.GetBool("ai.include_thoughts"),
	}
}

func commandTypes(names []string) []model.CommandType {
	if len(names) == 0 {
		return nil
	}
	out := make([]model.CommandType, 0, len(names))
	for _, n := range names {
		out = append(out, model.CommandType(n))
	}
	return out
}
