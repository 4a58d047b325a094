package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces the two client-side throttles on provider traffic: a
// minimum spacing between consecutive calls and a sliding-window
// requests-per-minute ceiling. Waits are context-cancellable.
type RateLimiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	rpm         int
	lastCall    time.Time
	window      []time.Time

	now func() time.Time
}

// NewRateLimiter creates a limiter. minInterval <= 0 disables spacing,
// rpm <= 0 disables the per-minute ceiling.
func NewRateLimiter(minInterval time.Duration, rpm int) *RateLimiter {
	return &RateLimiter{
		minInterval: minInterval,
		rpm:         rpm,
		now:         time.Now,
	}
}

// Wait blocks until a call slot is available or the context is done. On
// success the call is recorded against both throttles.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		d := r.delay()
		if d <= 0 {
			return nil
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// delay computes the remaining wait; when zero it records the call.
func (r *RateLimiter) delay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var wait time.Duration

	if r.minInterval > 0 && !r.lastCall.IsZero() {
		if until := r.lastCall.Add(r.minInterval).Sub(now); until > wait {
			wait = until
		}
	}

	if r.rpm > 0 {
		cutoff := now.Add(-time.Minute)
		kept := r.window[:0]
		for _, t := range r.window {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		r.window = kept
		if len(r.window) >= r.rpm {
			if until := r.window[0].Add(time.Minute).Sub(now); until > wait {
				wait = until
			}
		}
	}

	if wait > 0 {
		return wait
	}

	r.lastCall = now
	if r.rpm > 0 {
		r.window = append(r.window, now)
	}
	return 0
}

// WouldWait reports the delay the next call would incur, without reserving
// a slot.
func (r *RateLimiter) WouldWait() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var wait time.Duration
	if r.minInterval > 0 && !r.lastCall.IsZero() {
		if until := r.lastCall.Add(r.minInterval).Sub(now); until > wait {
			wait = until
		}
	}
	if r.rpm > 0 {
		cutoff := now.Add(-time.Minute)
		live := 0
		oldest := time.Time{}
		for _, t := range r.window {
			if t.After(cutoff) {
				if oldest.IsZero() {
					oldest = t
				}
				live++
			}
		}
		if live >= r.rpm {
			if until := oldest.Add(time.Minute).Sub(now); until > wait {
				wait = until
			}
		}
	}
	return wait
}
