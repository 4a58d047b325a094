// Package llm provides the multi-provider LLM abstraction: a uniform
// generate-orders contract over Gemini, OpenAI, Anthropic, DeepSeek, Azure
// and local OpenAI-compatible endpoints, with context caching, rate
// limiting, circuit breaking and thinking-mode support.
package llm

import "errors"

var (
	// ErrBreakerOpen is returned without touching the network while the
	// circuit breaker is open.
	ErrBreakerOpen = errors.New("circuit breaker open")

	// ErrRateLimited marks a provider 429. Transient; retried once.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrAuthFailure marks a 401/403. Permanent; never retried.
	ErrAuthFailure = errors.New("provider authentication failed")

	// ErrProviderUnavailable marks 5xx and transport failures.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrMalformedResponse marks a reply the engine could not interpret.
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrNoAPIKey is returned at configuration time when no key source
	// yields a key for an enabled provider.
	ErrNoAPIKey = errors.New("no API key configured")
)

// Transient reports whether the error is worth one retry.
func Transient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrProviderUnavailable)
}
