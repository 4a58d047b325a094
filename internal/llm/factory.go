package llm

import (
	"context"
	"fmt"
	"log/slog"
)

// Provider name tags accepted in configuration.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderDeepSeek  = "deepseek"
	ProviderAzure     = "azure"
	ProviderLocal     = "local"
)

// BuildClients constructs one client per enabled provider slot, in fallback
// order. sessionKeys are admin-supplied keys that outrank config and env.
// Local endpoints may run keyless; every other provider fails closed when no
// key resolves.
func BuildClients(ctx context.Context, cfgs []ProviderConfig, sessionKeys map[string]string, logger *slog.Logger) ([]Client, error) {
	SortClients(cfgs)

	var clients []Client
	for _, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		key, err := ResolveAPIKey(cfg.Name, sessionKeys[cfg.Name], cfg.APIKey)
		if err != nil {
			if cfg.Name != ProviderLocal {
				return nil, err
			}
			key = ""
		}

		switch cfg.Name {
		case ProviderGemini:
			c, err := NewGeminiClient(ctx, cfg, key, logger)
			if err != nil {
				return nil, err
			}
			clients = append(clients, c)
		case ProviderAnthropic:
			clients = append(clients, NewAnthropicClient(cfg, key, logger))
		case ProviderAzure:
			if cfg.AzureAPIVersion == "" {
				cfg.AzureAPIVersion = "2024-06-01"
			}
			clients = append(clients, NewOpenAIClient(cfg, key, logger))
		case ProviderOpenAI, ProviderLocal:
			clients = append(clients, NewOpenAIClient(cfg, key, logger))
		case ProviderDeepSeek:
			if cfg.Endpoint == "" {
				cfg.Endpoint = "https://api.deepseek.com"
			}
			clients = append(clients, NewOpenAIClient(cfg, key, logger))
		default:
			return nil, fmt.Errorf("unknown provider %q", cfg.Name)
		}
	}
	return clients, nil
}
