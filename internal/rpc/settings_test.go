package rpc

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderSettingsSingleSlot(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("ai.enabled", true)
	viper.Set("ai.provider", "gemini")
	viper.Set("ai.model", "gemini-2.5-flash")

	slots := ProviderSettings()
	require.Len(t, slots, 1)
	assert.Equal(t, "gemini", slots[0].Name)
	assert.Equal(t, "gemini-2.5-flash", slots[0].Model)
	assert.True(t, slots[0].Enabled)
}

func TestProviderSettingsFallbackChain(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("ai.llm_providers", []any{
		map[string]any{"provider": "gemini", "model": "gemini-2.5-flash", "priority": 1},
		map[string]any{
			"provider": "deepseek", "model": "deepseek-chat", "priority": 2,
			"endpoint": "https://api.deepseek.com", "api_mode": "chat_completions",
		},
		map[string]any{"provider": "local", "model": "llama3", "enabled": false},
	})

	slots := ProviderSettings()
	require.Len(t, slots, 3)

	assert.Equal(t, "gemini", slots[0].Name)
	assert.Equal(t, 1, slots[0].Priority)
	assert.True(t, slots[0].Enabled, "enabled defaults to true")

	assert.Equal(t, "deepseek", slots[1].Name)
	assert.Equal(t, "https://api.deepseek.com", slots[1].Endpoint)
	assert.Equal(t, "chat_completions", slots[1].APIMode)

	assert.False(t, slots[2].Enabled)
	assert.Equal(t, 999, slots[2].Priority, "absent priority sorts last")
}
