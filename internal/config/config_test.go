package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batcom/engine/internal/pairlist"
)

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	cfg := `{
		"logging": { "level": "DEBUG" },
		"ai": { "provider": "openai", "model": "gpt-4o-mini", "min_interval": 45 }
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "batcom.cfg.json"), []byte(cfg), 0644))

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", viper.GetString("logging.level"))
	assert.Equal(t, "openai", viper.GetString("ai.provider"))
	assert.Equal(t, "gpt-4o-mini", viper.GetString("ai.model"))
	assert.Equal(t, 45, viper.GetInt("ai.min_interval"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "batcom.cfg.json"), []byte(`{}`), 0644))

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "INFO", viper.GetString("logging.level"))
	assert.Equal(t, "./batcomlogs", viper.GetString("logsDir"))
	assert.Equal(t, 30, viper.GetInt("runtime.max_commands_per_tick"))
	assert.Equal(t, true, viper.GetBool("ai.enabled"))
	assert.Equal(t, "gemini", viper.GetString("ai.provider"))
	assert.Equal(t, 30, viper.GetInt("ai.timeout"))
	assert.Equal(t, 30, viper.GetInt("ai.min_interval"))
	assert.Equal(t, 10, viper.GetInt("ai.rate_limit_rpm"))
	assert.Equal(t, "native_sdk", viper.GetString("ai.thinking_mode"))
	assert.Equal(t, true, viper.GetBool("safety.sandbox_enabled"))
	assert.Equal(t, 120, viper.GetInt("safety.max_units_per_side"))
	assert.Equal(t, 3, viper.GetInt("state.max_retained_aos"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "INFO", viper.GetString("logging.level"))
}

func TestApplyRecord(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(t.TempDir()))

	record, err := pairlist.Decode(`[["logging",[["level","WARN"]]],["ai",[["provider","anthropic"],["min_interval",60]]]]`)
	require.NoError(t, err)

	ApplyRecord(record)

	assert.Equal(t, "WARN", viper.GetString("logging.level"))
	assert.Equal(t, "anthropic", viper.GetString("ai.provider"))
	assert.Equal(t, 60, viper.GetInt("ai.min_interval"))
	// untouched keys keep defaults
	assert.Equal(t, "gemini-2.5-flash", viper.GetString("ai.model"))
}

func TestLoadGuardrails(t *testing.T) {
	dir := t.TempDir()
	content := `{
		"ao_bounds": { "type": "circle", "center": [5000, 5000], "radius": 1500 },
		"resource_pool": {
			"EAST": {
				"infantry_squad": { "classnames": ["A", "B"], "max": 2 }
			}
		}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guardrails.json"), []byte(content), 0644))

	g, err := LoadGuardrails(dir)
	require.NoError(t, err)
	assert.Equal(t, "circle", g.AOBounds["type"])
	require.Contains(t, g.ResourcePool, "EAST")
	assert.Contains(t, g.ResourcePool["EAST"], "infantry_squad")
}

func TestLoadGuardrails_Missing(t *testing.T) {
	g, err := LoadGuardrails(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, g.AOBounds)
	assert.Empty(t, g.ResourcePool)
}

func TestLoadGuardrails_Malformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guardrails.json"), []byte(`{not json`), 0644))
	_, err := LoadGuardrails(dir)
	require.Error(t, err)
}

func TestGetOTelConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(t.TempDir()))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "batcom-engine", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
}

func TestGetters(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("k.s", "v")
	viper.Set("k.i", 42)
	viper.Set("k.b", true)
	viper.Set("k.f", 1.5)

	assert.Equal(t, "v", GetString("k.s"))
	assert.Equal(t, 42, GetInt("k.i"))
	assert.Equal(t, true, GetBool("k.b"))
	assert.Equal(t, 1.5, GetFloat("k.f"))
}
