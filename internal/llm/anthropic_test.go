package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicGenerateOrders(t *testing.T) {
	var got anthropicRequest
	var gotKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "thinking", "thinking": "the east flank is weak"},
				{"type": "text", "text": `{"reasoning":"reinforce","orders":[]}`},
			},
			"usage": map[string]any{
				"input_tokens":                30,
				"output_tokens":               15,
				"cache_read_input_tokens":     200,
				"cache_creation_input_tokens": 0,
			},
		})
	}))
	defer srv.Close()

	c := NewAnthropicClient(ProviderConfig{
		Name:     ProviderAnthropic,
		Model:    "claude-sonnet-4-5",
		Endpoint: srv.URL,
	}, "ak-test", testLogger())

	req := testRequest()
	req.Thinking = Thinking{Enabled: true, Mode: "native_sdk", BudgetTokens: 2048, IncludeThoughts: true}
	resp, err := c.GenerateOrders(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "ak-test", gotKey)
	assert.Equal(t, anthropicVersion, gotVersion)

	// The stable mission blocks carry the cache marker, the system prompt
	// block itself stays unmarked so identity is preserved across missions.
	require.Len(t, got.System, 2)
	assert.Nil(t, got.System[0].CacheControl)
	require.NotNil(t, got.System[1].CacheControl)
	assert.Equal(t, "ephemeral", got.System[1].CacheControl.Type)
	require.NotNil(t, got.Thinking)
	assert.Equal(t, 2048, got.Thinking.BudgetTokens)

	assert.JSONEq(t, `{"reasoning":"reinforce","orders":[]}`, string(resp.RawOrders))
	assert.Equal(t, "the east flank is weak", resp.Thoughts)
	assert.Equal(t, 200, resp.Usage.CachedTokens)
	assert.Equal(t, 45, resp.Usage.TotalTokens)
}

func TestAnthropicNoTextBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "thinking", "thinking": "hmm"}},
		})
	}))
	defer srv.Close()

	c := NewAnthropicClient(ProviderConfig{Name: ProviderAnthropic, Model: "claude-sonnet-4-5", Endpoint: srv.URL}, "k", testLogger())
	_, err := c.GenerateOrders(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestAnthropicAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"type":"authentication_error"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewAnthropicClient(ProviderConfig{Name: ProviderAnthropic, Model: "claude-sonnet-4-5", Endpoint: srv.URL}, "bad", testLogger())
	_, err := c.GenerateOrders(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrAuthFailure)
}
