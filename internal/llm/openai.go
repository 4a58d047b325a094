package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// APIMode values for OpenAI-compatible providers.
const (
	APIModeChatCompletions = "chat_completions"
	APIModeResponses       = "responses"
)

// OpenAIClient talks to OpenAI and OpenAI-compatible endpoints: the OpenAI
// API itself, DeepSeek, Azure OpenAI deployments and local servers. Prompt
// caching on these providers is implicit server-side prefix caching, so the
// client reports Caching:false and always sends the full prompt; keeping the
// cacheable blocks first in the message maximizes prefix hits.
type OpenAIClient struct {
	cfg    ProviderConfig
	apiKey string
	http   *http.Client
	logger *slog.Logger
}

// NewOpenAIClient builds a client for one OpenAI-compatible slot.
func NewOpenAIClient(cfg ProviderConfig, apiKey string, logger *slog.Logger) *OpenAIClient {
	if cfg.APIMode == "" {
		cfg.APIMode = APIModeChatCompletions
	}
	return &OpenAIClient{
		cfg:    cfg,
		apiKey: apiKey,
		http:   &http.Client{Timeout: defaultHTTPTimeout},
		logger: logger,
	}
}

func (c *OpenAIClient) Name() string    { return c.cfg.Name }
func (c *OpenAIClient) ModelID() string { return c.cfg.Model }

func (c *OpenAIClient) Capabilities() Capabilities {
	return Capabilities{Caching: false, Thinking: true}
}

// ClearCache is a no-op; prefix caching holds no client-side handles.
func (c *OpenAIClient) ClearCache(ctx context.Context) {}

func (c *OpenAIClient) isAzure() bool { return c.cfg.AzureAPIVersion != "" }

// endpoint resolves the request URL for the configured mode. Azure routes
// through the deployment path with an explicit api-version.
func (c *OpenAIClient) endpoint(path string) string {
	base := strings.TrimRight(c.cfg.Endpoint, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	if c.isAzure() {
		return fmt.Sprintf("%s/openai/deployments/%s%s?api-version=%s",
			base, c.cfg.Model, path, c.cfg.AzureAPIVersion)
	}
	return base + path
}

func (c *OpenAIClient) headers() map[string]string {
	if c.isAzure() {
		return map[string]string{"api-key": c.apiKey}
	}
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model           string        `json:"model"`
	Messages        []chatMessage `json:"messages"`
	MaxTokens       int           `json:"max_completion_tokens,omitempty"`
	ReasoningEffort string        `json:"reasoning_effort,omitempty"`
	ResponseFormat  *respFormat   `json:"response_format,omitempty"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens        int `json:"prompt_tokens"`
		CompletionTokens    int `json:"completion_tokens"`
		TotalTokens         int `json:"total_tokens"`
		PromptTokensDetails struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
	} `json:"usage"`
}

type responsesRequest struct {
	Model           string         `json:"model"`
	Instructions    string         `json:"instructions,omitempty"`
	Input           string         `json:"input"`
	MaxOutputTokens int            `json:"max_output_tokens,omitempty"`
	Reasoning       *respReasoning `json:"reasoning,omitempty"`
	Text            *responsesText `json:"text,omitempty"`
}

type respReasoning struct {
	Effort string `json:"effort"`
}

type responsesText struct {
	Format respFormat `json:"format"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Summary []struct {
			Text string `json:"text"`
		} `json:"summary"`
	} `json:"output"`
	Usage struct {
		InputTokens        int `json:"input_tokens"`
		OutputTokens       int `json:"output_tokens"`
		TotalTokens        int `json:"total_tokens"`
		InputTokensDetails struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"input_tokens_details"`
	} `json:"usage"`
}

// GenerateOrders performs one consultation in the configured API mode.
func (c *OpenAIClient) GenerateOrders(ctx context.Context, req *Request) (*Response, error) {
	if c.cfg.APIMode == APIModeResponses && !c.isAzure() {
		return c.generateResponses(ctx, req)
	}
	return c.generateChat(ctx, req)
}

func (c *OpenAIClient) generateChat(ctx context.Context, req *Request) (*Response, error) {
	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.InlinePrompt()},
		},
		MaxTokens:      req.MaxOutputTokens,
		ResponseFormat: &respFormat{Type: "json_object"},
	}
	if req.Thinking.Enabled && req.Thinking.ReasoningEffort != "" && req.Thinking.ReasoningEffort != "none" {
		body.ReasoningEffort = req.Thinking.ReasoningEffort
	}

	var out chatResponse
	if err := httpJSON(ctx, c.http, http.MethodPost, c.endpoint("/chat/completions"), c.headers(), body, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("%w: empty choices", ErrMalformedResponse)
	}

	resp := &Response{
		RawOrders: []byte(out.Choices[0].Message.Content),
		Thoughts:  out.Choices[0].Message.ReasoningContent,
	}
	resp.Usage.InputTokens = out.Usage.PromptTokens
	resp.Usage.OutputTokens = out.Usage.CompletionTokens
	resp.Usage.CachedTokens = out.Usage.PromptTokensDetails.CachedTokens
	resp.Usage.TotalTokens = out.Usage.TotalTokens
	resp.Usage.Provider = c.cfg.Name
	resp.Usage.Model = c.cfg.Model
	resp.Usage.Normalize()
	return resp, nil
}

func (c *OpenAIClient) generateResponses(ctx context.Context, req *Request) (*Response, error) {
	body := responsesRequest{
		Model:           c.cfg.Model,
		Instructions:    req.SystemPrompt,
		Input:           req.InlinePrompt(),
		MaxOutputTokens: req.MaxOutputTokens,
		Text:            &responsesText{Format: respFormat{Type: "json_object"}},
	}
	if req.Thinking.Enabled && req.Thinking.ReasoningEffort != "" && req.Thinking.ReasoningEffort != "none" {
		body.Reasoning = &respReasoning{Effort: req.Thinking.ReasoningEffort}
	}

	var out responsesResponse
	if err := httpJSON(ctx, c.http, http.MethodPost, c.endpoint("/responses"), c.headers(), body, &out); err != nil {
		return nil, err
	}

	resp := &Response{}
	var text, thoughts strings.Builder
	for _, item := range out.Output {
		switch item.Type {
		case "message":
			for _, part := range item.Content {
				if part.Type == "output_text" {
					text.WriteString(part.Text)
				}
			}
		case "reasoning":
			for _, s := range item.Summary {
				if thoughts.Len() > 0 {
					thoughts.WriteString("\n")
				}
				thoughts.WriteString(s.Text)
			}
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("%w: no output text", ErrMalformedResponse)
	}
	resp.RawOrders = []byte(text.String())
	resp.Thoughts = thoughts.String()
	resp.Usage.InputTokens = out.Usage.InputTokens
	resp.Usage.OutputTokens = out.Usage.OutputTokens
	resp.Usage.CachedTokens = out.Usage.InputTokensDetails.CachedTokens
	resp.Usage.TotalTokens = out.Usage.TotalTokens
	resp.Usage.Provider = c.cfg.Name
	resp.Usage.Model = c.cfg.Model
	resp.Usage.Normalize()
	return resp, nil
}

// TestConnection issues a one-line probe through the chat endpoint.
func (c *OpenAIClient) TestConnection(ctx context.Context) (string, error) {
	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "user", Content: "Reply with a single short sentence confirming you are reachable."},
		},
		MaxTokens: 64,
	}
	var out chatResponse
	if err := httpJSON(ctx, c.http, http.MethodPost, c.endpoint("/chat/completions"), c.headers(), body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrMalformedResponse)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
