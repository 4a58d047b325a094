package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	genai "google.golang.org/genai"
)

// geminiCacheTTL bounds how long a cached context handle lives server-side.
const geminiCacheTTL = 60 * time.Minute

// GeminiClient drives the official genai SDK. It keeps at most one cached
// context alive: the system prompt plus the stable mission blocks. The handle
// is recreated when the cacheable content hash changes or the TTL lapses;
// any cache trouble degrades to inline prompting without failing the call.
type GeminiClient struct {
	cfg    ProviderConfig
	cli    *genai.Client
	logger *slog.Logger

	mu          sync.Mutex
	cacheName   string
	cacheKey    string
	cacheExpiry time.Time
}

// NewGeminiClient builds the SDK client for one Gemini slot.
func NewGeminiClient(ctx context.Context, cfg ProviderConfig, apiKey string, logger *slog.Logger) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return &GeminiClient{cfg: cfg, cli: cli, logger: logger}, nil
}

func (g *GeminiClient) Name() string    { return g.cfg.Name }
func (g *GeminiClient) ModelID() string { return g.cfg.Model }

func (g *GeminiClient) Capabilities() Capabilities {
	return Capabilities{Caching: true, Thinking: true}
}

// ensureCache returns a live cache handle for the request, creating or
// replacing one as needed. An empty return means prompt inline.
func (g *GeminiClient) ensureCache(ctx context.Context, req *Request) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := req.CacheKey()
	if g.cacheName != "" && g.cacheKey == key && time.Now().Before(g.cacheExpiry) {
		return g.cacheName
	}

	if g.cacheName != "" {
		if _, err := g.cli.Caches.Delete(ctx, g.cacheName, nil); err != nil {
			g.logger.Warn("stale context cache delete failed", "cache", g.cacheName, "error", err)
		}
		g.cacheName = ""
		g.cacheKey = ""
	}

	cc, err := g.cli.Caches.Create(ctx, g.cfg.Model, &genai.CreateCachedContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}},
		Contents:          []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: req.CacheablePart()}}}},
		TTL:               geminiCacheTTL,
	})
	if err != nil {
		g.logger.Warn("context cache create failed, prompting inline", "error", err)
		return ""
	}
	g.cacheName = cc.Name
	g.cacheKey = key
	g.cacheExpiry = time.Now().Add(geminiCacheTTL - time.Minute)
	g.logger.Info("context cache created", "cache", cc.Name)
	return cc.Name
}

func (g *GeminiClient) thinkingConfig(t Thinking) *genai.ThinkingConfig {
	if !t.Enabled {
		return nil
	}
	tc := &genai.ThinkingConfig{IncludeThoughts: t.IncludeThoughts}
	if !t.BudgetDynamic && t.BudgetTokens > 0 {
		budget := int32(t.BudgetTokens)
		tc.ThinkingBudget = &budget
	}
	return tc
}

// GenerateOrders performs one consultation, preferring the cached context.
func (g *GeminiClient) GenerateOrders(ctx context.Context, req *Request) (*Response, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ThinkingConfig:   g.thinkingConfig(req.Thinking),
	}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxOutputTokens)
	}

	prompt := req.DynamicPart()
	if name := g.ensureCache(ctx, req); name != "" {
		cfg.CachedContent = name
	} else {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
		prompt = req.InlinePrompt()
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.cfg.Model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}},
		cfg,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: empty candidates", ErrMalformedResponse)
	}

	out := &Response{}
	var text, thoughts strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text == "" {
			continue
		}
		if part.Thought {
			if thoughts.Len() > 0 {
				thoughts.WriteString("\n")
			}
			thoughts.WriteString(part.Text)
			continue
		}
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("%w: no answer text", ErrMalformedResponse)
	}
	out.RawOrders = []byte(text.String())
	out.Thoughts = thoughts.String()

	if um := resp.UsageMetadata; um != nil {
		out.Usage.InputTokens = int(um.PromptTokenCount)
		out.Usage.OutputTokens = int(um.CandidatesTokenCount)
		out.Usage.CachedTokens = int(um.CachedContentTokenCount)
		out.Usage.TotalTokens = int(um.TotalTokenCount)
	}
	out.Usage.Provider = g.cfg.Name
	out.Usage.Model = g.cfg.Model
	out.Usage.Normalize()
	return out, nil
}

// TestConnection issues a one-line probe call.
func (g *GeminiClient) TestConnection(ctx context.Context) (string, error) {
	resp, err := g.cli.Models.GenerateContent(ctx, g.cfg.Model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: "Reply with a single short sentence confirming you are reachable."}}}},
		&genai.GenerateContentConfig{MaxOutputTokens: 64},
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty candidates", ErrMalformedResponse)
	}
	return strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text), nil
}

// ClearCache drops the server-side context cache if one is alive.
func (g *GeminiClient) ClearCache(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cacheName == "" {
		return
	}
	if _, err := g.cli.Caches.Delete(ctx, g.cacheName, nil); err != nil {
		g.logger.Warn("context cache delete failed", "cache", g.cacheName, "error", err)
	}
	g.cacheName = ""
	g.cacheKey = ""
}
