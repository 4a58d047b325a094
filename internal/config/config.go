// Package config wires the engine's configuration: defaults, the JSON config
// file, the init-time configuration record from the host, and the
// guardrails.json safety file read once at startup.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/batcom/engine/internal/pairlist"
)

// Load reads configuration from the JSON config file and sets default values.
// configDir is the directory containing batcom.cfg.json; a missing file is
// fine, defaults then apply until the host's init record arrives.
func Load(configDir string) error {
	// Load a .env first so {PROVIDER}_API_KEY variables work in dev setups.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	viper.SetDefault("logging.level", "INFO")
	viper.SetDefault("logging.echo_to_host_console", false)
	viper.SetDefault("logsDir", "./batcomlogs")

	viper.SetDefault("scan.tick", 5)
	viper.SetDefault("scan.ai_groups", 10)
	viper.SetDefault("scan.players", 10)
	viper.SetDefault("scan.objectives", 15)

	viper.SetDefault("runtime.max_messages_per_tick", 50)
	viper.SetDefault("runtime.max_commands_per_tick", 30)
	viper.SetDefault("runtime.max_controlled_groups", 40)

	viper.SetDefault("ai.enabled", true)
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.model", "gemini-2.5-flash")
	viper.SetDefault("ai.endpoint", "")
	viper.SetDefault("ai.timeout", 30)
	viper.SetDefault("ai.min_interval", 30)
	viper.SetDefault("ai.rate_limit_rpm", 10)
	viper.SetDefault("ai.api_key", "")
	viper.SetDefault("ai.api_mode", "chat_completions")
	viper.SetDefault("ai.azure_api_version", "")
	viper.SetDefault("ai.system_prompt", "")
	viper.SetDefault("ai.max_output_tokens", 8192)
	viper.SetDefault("ai.thinking_enabled", false)
	viper.SetDefault("ai.thinking_mode", "native_sdk")
	viper.SetDefault("ai.thinking_budget", 0)
	viper.SetDefault("ai.thinking_level", "low")
	viper.SetDefault("ai.reasoning_effort", "none")
	viper.SetDefault("ai.include_thoughts", false)
	viper.SetDefault("ai.log_thoughts_to_file", false)

	viper.SetDefault("safety.sandbox_enabled", true)
	viper.SetDefault("safety.max_groups_per_objective", 4)
	viper.SetDefault("safety.max_units_per_side", 120)
	viper.SetDefault("safety.allowed_commands", []string{})
	viper.SetDefault("safety.blocked_commands", []string{})
	viper.SetDefault("safety.audit_log", true)

	viper.SetDefault("state.max_retained_aos", 3)
	viper.SetDefault("state.hvt_top_players", 3)
	viper.SetDefault("state.hvt_top_groups", 2)
	viper.SetDefault("state.proximity_radius", 100)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "batcom-metrics")
	viper.SetDefault("influx.bucket", "llm_usage")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "batcom-engine")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetConfigName("batcom.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// ApplyRecord overlays the host's init-time configuration record. Nested pair
// lists become dotted keys, matching the file layout.
func ApplyRecord(record *pairlist.Map) {
	applyRecord("", record)
}

// ApplySection overlays a record under one top-level section, e.g. the
// setLLMConfig admin payload under "ai".
func ApplySection(section string, record *pairlist.Map) {
	applyRecord(section, record)
}

func applyRecord(prefix string, m *pairlist.Map) {
	for _, key := range m.Keys() {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if child, ok := m.Child(key); ok {
			applyRecord(full, child)
			continue
		}
		if v, ok := m.Get(key); ok {
			viper.Set(full, v)
		}
	}
}

// Guardrails is the raw safety file content: AO bounds and the resource pool.
// Both sections are handed to their owners (geo, state) for parsing.
type Guardrails struct {
	AOBounds     map[string]any            `json:"ao_bounds"`
	ResourcePool map[string]map[string]any `json:"resource_pool"`
}

// LoadGuardrails reads guardrails.json from configDir. A missing file yields
// empty guardrails, not an error; the admin surface can supply them later.
func LoadGuardrails(configDir string) (Guardrails, error) {
	var g Guardrails
	raw, err := os.ReadFile(filepath.Join(configDir, "guardrails.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return g, nil
		}
		return g, fmt.Errorf("reading guardrails: %w", err)
	}
	if err := json.Unmarshal(raw, &g); err != nil {
		return g, fmt.Errorf("parsing guardrails: %w", err)
	}
	return g, nil
}

// OTelConfig holds the observability export settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// GetOTelConfig returns the OTel section as a typed struct.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat returns a float64 config value.
func GetFloat(key string) float64 {
	return viper.GetFloat64(key)
}

// GetStringSlice returns a string-slice config value.
func GetStringSlice(key string) []string {
	return viper.GetStringSlice(key)
}

// Get returns the raw config value, nil when unset.
func Get(key string) any {
	return viper.Get(key)
}
