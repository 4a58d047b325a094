package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

const (
	defaultCallTimeout = 30 * time.Second
	maxRetryBackoff    = 8 * time.Second
)

// ManagerConfig tunes the provider manager.
type ManagerConfig struct {
	// Timeout bounds each provider call. Zero uses the default 30s.
	Timeout time.Duration
	// MinInterval spaces consecutive calls; RPM is the sliding-window cap.
	MinInterval time.Duration
	RPM         int
	// BreakerThreshold is the consecutive-failure count that opens the
	// breaker. Zero uses the default.
	BreakerThreshold int
}

// Manager fronts the configured provider clients. It applies rate limiting
// and the circuit breaker, walks enabled providers in priority order, and
// retries transient failures once with jittered backoff.
type Manager struct {
	clients []Client
	breaker *Breaker
	limiter *RateLimiter
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	inflight context.CancelFunc

	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager wires the manager over the given clients. Clients are tried in
// the order given; build them pre-sorted with SortClients.
func NewManager(clients []Client, cfg ManagerConfig, logger *slog.Logger) *Manager {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Manager{
		clients: clients,
		breaker: NewBreaker(cfg.BreakerThreshold),
		limiter: NewRateLimiter(cfg.MinInterval, cfg.RPM),
		timeout: timeout,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// SortClients orders provider slots by ascending priority for fallback.
func SortClients(cfgs []ProviderConfig) {
	sort.SliceStable(cfgs, func(i, j int) bool { return cfgs[i].Priority < cfgs[j].Priority })
}

// Breaker exposes the circuit breaker for state inspection.
func (m *Manager) Breaker() *Breaker { return m.breaker }

// BreakerState returns the breaker position.
func (m *Manager) BreakerState() BreakerState { return m.breaker.State() }

// Primary returns the first-priority client, or nil when none are configured.
func (m *Manager) Primary() Client {
	if len(m.clients) == 0 {
		return nil
	}
	return m.clients[0]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// trackCtx derives the per-call context and records its cancel func so an
// emergency stop can abort the in-flight request.
func (m *Manager) trackCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	m.mu.Lock()
	m.inflight = cancel
	m.mu.Unlock()
	return callCtx, func() {
		m.mu.Lock()
		if m.inflight != nil {
			m.inflight = nil
		}
		m.mu.Unlock()
		cancel()
	}
}

// callOnce runs one provider call under the manager timeout.
func (m *Manager) callOnce(ctx context.Context, c Client, req *Request) (*Response, error) {
	callCtx, done := m.trackCtx(ctx)
	defer done()

	start := time.Now()
	resp, err := c.GenerateOrders(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: timeout after %s", ErrProviderUnavailable, m.timeout)
		}
		return nil, err
	}
	resp.Usage.Latency = time.Since(start)
	resp.Usage.Normalize()
	return resp, nil
}

func retryBackoff(attempt int) time.Duration {
	base := time.Duration(1<<attempt) * time.Second
	if base > maxRetryBackoff {
		base = maxRetryBackoff
	}
	jitter := time.Duration(rand.Int64N(int64(base / 2)))
	d := base + jitter
	if d > maxRetryBackoff {
		d = maxRetryBackoff
	}
	return d
}

// GenerateOrders runs one consultation through the provider chain. The
// breaker gates the whole consultation: a failure of every provider counts
// one strike, a success anywhere closes it.
func (m *Manager) GenerateOrders(ctx context.Context, req *Request) (*Response, error) {
	if len(m.clients) == 0 {
		return nil, fmt.Errorf("%w: no providers configured", ErrProviderUnavailable)
	}
	if err := m.breaker.Allow(); err != nil {
		return nil, err
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	var lastErr error
	for _, c := range m.clients {
		resp, err := m.callOnce(ctx, c, req)
		if err != nil && Transient(err) && ctx.Err() == nil {
			delay := retryBackoff(1)
			m.logger.Warn("provider call failed, retrying",
				"provider", c.Name(), "backoff", delay, "error", err)
			if serr := m.sleep(ctx, delay); serr == nil {
				resp, err = m.callOnce(ctx, c, req)
			}
		}
		if err == nil {
			m.breaker.Success()
			return resp, nil
		}
		lastErr = err
		m.logger.Error("provider call failed", "provider", c.Name(), "error", err)
		if ctx.Err() != nil {
			break
		}
	}

	state := m.breaker.Failure()
	if state == BreakerOpen {
		m.logger.Error("circuit breaker opened",
			"consecutive_failures", m.breaker.ConsecutiveFailures())
	}
	return nil, lastErr
}

// TestConnection probes the first provider that answers and returns its name
// with the greeting. It bypasses the breaker so operators can verify a fix
// before redeploying.
func (m *Manager) TestConnection(ctx context.Context) (string, string, error) {
	if len(m.clients) == 0 {
		return "", "", fmt.Errorf("%w: no providers configured", ErrProviderUnavailable)
	}
	var lastErr error
	for _, c := range m.clients {
		callCtx, cancel := context.WithTimeout(ctx, m.timeout)
		greeting, err := c.TestConnection(callCtx)
		cancel()
		if err == nil {
			return c.Name(), greeting, nil
		}
		lastErr = err
	}
	return "", "", lastErr
}

// EmergencyStop aborts any in-flight call, opens the breaker and drops every
// provider-side cache handle.
func (m *Manager) EmergencyStop(ctx context.Context) {
	m.mu.Lock()
	cancel := m.inflight
	m.inflight = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.breaker.Trip()
	for _, c := range m.clients {
		c.ClearCache(ctx)
	}
	m.logger.Warn("emergency stop: breaker tripped, caches cleared")
}

// WouldWait reports the rate-limit delay the next consultation would incur,
// without reserving a slot.
func (m *Manager) WouldWait() time.Duration {
	return m.limiter.WouldWait()
}

// Redeploy moves an open breaker to half-open so the next consultation
// probes the provider chain.
func (m *Manager) Redeploy() {
	m.breaker.Probe()
	m.logger.Info("redeploy requested", "breaker", m.breaker.State().String())
}

// ClearCaches drops cache handles on every provider without touching the
// breaker. Used when the cacheable context is known to have changed shape.
func (m *Manager) ClearCaches(ctx context.Context) {
	for _, c := range m.clients {
		c.ClearCache(ctx)
	}
}
