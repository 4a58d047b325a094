package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/batcom/engine/internal/model"
)

// Capabilities describes what a provider variant supports. Dispatch happens
// through this set, not through type switches.
type Capabilities struct {
	Caching  bool
	Thinking bool
}

// Response is the provider-independent result of one consultation.
type Response struct {
	// Commentary is the model's free-text rationale for the host.
	Commentary string
	// RawOrders is the JSON order document handed to the parser.
	RawOrders []byte
	// Thoughts carries reasoning traces when IncludeThoughts is on. They go
	// to the per-AO log file, never back to the host.
	Thoughts string

	Usage model.TokenUsage
}

// Client is one provider variant.
type Client interface {
	// Name returns the provider tag (gemini, openai, anthropic, ...).
	Name() string
	// ModelID returns the configured model identifier.
	ModelID() string
	Capabilities() Capabilities

	// GenerateOrders performs one consultation.
	GenerateOrders(ctx context.Context, req *Request) (*Response, error)

	// TestConnection issues a cheap probe call and returns the greeting.
	TestConnection(ctx context.Context) (string, error)

	// ClearCache drops any provider-side cache handles. Never fails; cache
	// trouble must not break the engine.
	ClearCache(ctx context.Context)
}

// ProviderConfig configures one provider slot in the manager.
type ProviderConfig struct {
	Name     string
	Model    string
	Endpoint string
	APIKey   string
	Enabled  bool
	// Priority orders fallback; lower value probes first.
	Priority int
	// APIMode selects responses vs chat_completions for openai-compatible
	// providers.
	APIMode string
	// AzureAPIVersion is appended as api-version for Azure deployments.
	AzureAPIVersion string
}

// ResolveAPIKey applies the key resolution order: in-session admin value,
// configuration file, then the {PROVIDER}_API_KEY environment variable.
// Fails closed when every source is empty.
func ResolveAPIKey(provider, sessionKey, configKey string) (string, error) {
	if sessionKey != "" {
		return sessionKey, nil
	}
	if configKey != "" {
		return configKey, nil
	}
	envVar := strings.ToUpper(provider) + "_API_KEY"
	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: provider %s (set %s)", ErrNoAPIKey, provider, envVar)
}
