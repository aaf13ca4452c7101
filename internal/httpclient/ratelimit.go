package httpclient

import (
	"context"
	"sync"
	"time"
)

// MinDelayLimiter enforces a minimum delay between consecutive calls to a
// rate-limited upstream. Shared across concurrent case executions, so the
// last-call timestamp is mutex-protected.
type MinDelayLimiter struct {
	minDelay time.Duration
	mu       sync.Mutex
	lastCall time.Time
}

// NewMinDelayLimiter creates a limiter with the given minimum delay.
// A zero or negative delay disables waiting.
func NewMinDelayLimiter(minDelay time.Duration) *MinDelayLimiter {
	return &MinDelayLimiter{minDelay: minDelay}
}

// Wait blocks until the minimum delay since the previous call has elapsed,
// or the context is cancelled.
func (l *MinDelayLimiter) Wait(ctx context.Context) error {
	if l == nil || l.minDelay <= 0 {
		return nil
	}

	l.mu.Lock()
	now := time.Now()
	var wait time.Duration
	if !l.lastCall.IsZero() {
		if elapsed := now.Sub(l.lastCall); elapsed < l.minDelay {
			wait = l.minDelay - elapsed
		}
	}
	// Reserve the slot before sleeping so concurrent callers queue up
	l.lastCall = now.Add(wait)
	l.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
