// Package ratelimit bounds outbound requests to the market-data provider.
// One Limiter is constructed per process and shared by every concurrent
// fetch; it is always injected, never a package singleton.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter is a sliding-window counter: at most maxInWindow acquisitions per
// window. The effective ceiling is a configured fraction of the provider's
// stated limit, leaving headroom for clock skew between us and the provider.
type Limiter struct {
	mu       sync.Mutex
	window   time.Duration
	max      int
	acquired []time.Time // acquisition times still inside the window

	now func() time.Time // test hook
}

// New builds a limiter allowing providerLimit*safetyFraction requests per
// window.
func New(providerLimit int, window time.Duration, safetyFraction float64) (*Limiter, error) {
	if providerLimit < 1 {
		return nil, fmt.Errorf("ratelimit: provider limit must be >= 1")
	}
	if window <= 0 {
		return nil, fmt.Errorf("ratelimit: window must be positive")
	}
	if safetyFraction <= 0 || safetyFraction > 1 {
		return nil, fmt.Errorf("ratelimit: safety fraction must be in (0, 1]")
	}
	max := int(float64(providerLimit) * safetyFraction)
	if max < 1 {
		max = 1
	}
	return &Limiter{window: window, max: max, now: time.Now}, nil
}

// Acquire blocks until a slot is free inside the window or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		wait, ok := l.tryAcquire()
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire takes a slot if one is free, otherwise returns how long until
// the oldest acquisition leaves the window.
func (l *Limiter) tryAcquire() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	kept := l.acquired[:0]
	for _, t := range l.acquired {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.acquired = kept

	if len(l.acquired) < l.max {
		l.acquired = append(l.acquired, now)
		return 0, true
	}
	return l.acquired[0].Sub(cutoff), false
}

// InFlight returns how many acquisitions are currently inside the window.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.window)
	n := 0
	for _, t := range l.acquired {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
