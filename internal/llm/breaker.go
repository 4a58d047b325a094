package llm

import "sync"

// BreakerState is the circuit breaker position.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "open"
	}
}

// DefaultBreakerThreshold opens the breaker after this many consecutive
// failures.
const DefaultBreakerThreshold = 3

// Breaker suppresses outbound provider calls after repeated failures. Once
// open it stays open until an explicit redeploy moves it to half-open; a
// successful probe closes it.
type Breaker struct {
	mu          sync.Mutex
	state       BreakerState
	consecutive int
	threshold   int
}

// NewBreaker creates a closed breaker. threshold <= 0 uses the default.
func NewBreaker(threshold int) *Breaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	return &Breaker{threshold: threshold}
}

// Allow returns ErrBreakerOpen while the breaker is open. A half-open
// breaker admits the call as a probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen {
		return ErrBreakerOpen
	}
	return nil
}

// Success records a successful call and closes the breaker.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.consecutive = 0
}

// Failure records a failed call. A half-open probe failure reopens
// immediately; otherwise the breaker opens at the threshold. Returns the
// resulting state.
func (b *Breaker) Failure() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		return b.state
	}
	b.consecutive++
	if b.consecutive >= b.threshold {
		b.state = BreakerOpen
	}
	return b.state
}

// Trip opens the breaker immediately. Used by emergency stop.
func (b *Breaker) Trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerOpen
	if b.consecutive < b.threshold {
		b.consecutive = b.threshold
	}
}

// Probe moves an open breaker to half-open so the next call may test the
// provider. No-op when the breaker is not open.
func (b *Breaker) Probe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen {
		b.state = BreakerHalfOpen
	}
}

// State returns the current position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the failure streak length.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutive
}
