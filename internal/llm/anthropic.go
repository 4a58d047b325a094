package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient talks to the Anthropic messages API. Context caching is
// declarative: the stable system blocks carry a cache_control marker and the
// service handles reuse, so there is no handle to manage client-side.
type AnthropicClient struct {
	cfg    ProviderConfig
	apiKey string
	http   *http.Client
	logger *slog.Logger
}

// NewAnthropicClient builds a client for one Anthropic slot.
func NewAnthropicClient(cfg ProviderConfig, apiKey string, logger *slog.Logger) *AnthropicClient {
	return &AnthropicClient{
		cfg:    cfg,
		apiKey: apiKey,
		http:   &http.Client{Timeout: defaultHTTPTimeout},
		logger: logger,
	}
}

func (c *AnthropicClient) Name() string    { return c.cfg.Name }
func (c *AnthropicClient) ModelID() string { return c.cfg.Model }

func (c *AnthropicClient) Capabilities() Capabilities {
	return Capabilities{Caching: true, Thinking: true}
}

// ClearCache is a no-op; ephemeral cache entries expire server-side.
func (c *AnthropicClient) ClearCache(ctx context.Context) {}

func (c *AnthropicClient) endpoint() string {
	base := strings.TrimRight(c.cfg.Endpoint, "/")
	if base == "" {
		base = "https://api.anthropic.com"
	}
	return base + "/v1/messages"
}

func (c *AnthropicClient) headers() map[string]string {
	return map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}
}

type anthropicCacheControl struct {
	Type string `json:"type"`
}

type anthropicBlock struct {
	Type         string                 `json:"type"`
	Text         string                 `json:"text,omitempty"`
	Thinking     string                 `json:"thinking,omitempty"`
	CacheControl *anthropicCacheControl `json:"cache_control,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    []anthropicBlock   `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Thinking  *anthropicThinking `json:"thinking,omitempty"`
}

type anthropicResponse struct {
	Content []anthropicBlock `json:"content"`
	Usage   struct {
		InputTokens              int `json:"input_tokens"`
		OutputTokens             int `json:"output_tokens"`
		CacheReadInputTokens     int `json:"cache_read_input_tokens"`
		CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	} `json:"usage"`
}

// GenerateOrders performs one consultation. The system prompt and the stable
// mission blocks are marked ephemeral so repeat calls hit the prompt cache.
func (c *AnthropicClient) GenerateOrders(ctx context.Context, req *Request) (*Response, error) {
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	body := anthropicRequest{
		Model:     c.cfg.Model,
		MaxTokens: maxTokens,
		System: []anthropicBlock{
			{Type: "text", Text: req.SystemPrompt},
			{Type: "text", Text: req.CacheablePart(), CacheControl: &anthropicCacheControl{Type: "ephemeral"}},
		},
		Messages: []anthropicMessage{
			{Role: "user", Content: []anthropicBlock{{Type: "text", Text: req.DynamicPart()}}},
		},
	}
	if req.Thinking.Enabled && req.Thinking.BudgetTokens > 0 {
		body.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: req.Thinking.BudgetTokens}
	}

	var out anthropicResponse
	if err := httpJSON(ctx, c.http, http.MethodPost, c.endpoint(), c.headers(), body, &out); err != nil {
		return nil, err
	}

	resp := &Response{}
	var text, thoughts strings.Builder
	for _, block := range out.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "thinking":
			if thoughts.Len() > 0 {
				thoughts.WriteString("\n")
			}
			thoughts.WriteString(block.Thinking)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("%w: no text blocks", ErrMalformedResponse)
	}
	resp.RawOrders = []byte(text.String())
	resp.Thoughts = thoughts.String()
	resp.Usage.InputTokens = out.Usage.InputTokens
	resp.Usage.OutputTokens = out.Usage.OutputTokens
	resp.Usage.CachedTokens = out.Usage.CacheReadInputTokens
	resp.Usage.Provider = c.cfg.Name
	resp.Usage.Model = c.cfg.Model
	resp.Usage.Normalize()
	return resp, nil
}

// TestConnection issues a one-line probe call.
func (c *AnthropicClient) TestConnection(ctx context.Context) (string, error) {
	body := anthropicRequest{
		Model:     c.cfg.Model,
		MaxTokens: 64,
		Messages: []anthropicMessage{
			{Role: "user", Content: []anthropicBlock{{Type: "text", Text: "Reply with a single short sentence confirming you are reachable."}}},
		},
	}
	var out anthropicResponse
	if err := httpJSON(ctx, c.http, http.MethodPost, c.endpoint(), c.headers(), body, &out); err != nil {
		return "", err
	}
	for _, block := range out.Content {
		if block.Type == "text" && block.Text != "" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", fmt.Errorf("%w: no text blocks", ErrMalformedResponse)
}
