// Package retry wraps fallible remote operations in bounded exponential
// backoff. Only retryable errors (timeouts, transient connection failures,
// rate-limit rejections) consume attempts; structural errors fail fast.
package retry

import (
	"context"
	"time"

	"BarPull/internal/errs"
	xlogger "BarPull/pkg/logger"
)

type Policy struct {
	MaxAttempts int           // default 3
	BaseDelay   time.Duration // default 2s; doubles per attempt: 2s/4s/8s
	Multiplier  float64
	Logger      *xlogger.Logger
}

func DefaultPolicy(logger *xlogger.Logger) Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second, Multiplier: 2, Logger: logger}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 2 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

// Do runs op up to MaxAttempts times. onRetry, when non-nil, is called
// before each re-attempt with the attempt number about to run; the fetch
// orchestrator uses it to journal FAILED -> PENDING transitions.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	p = p.normalized()
	delay := p.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !errs.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		if p.Logger != nil {
			p.Logger.Warn("retryable fetch error, backing off",
				xlogger.Int("attempt", attempt),
				xlogger.Duration("delay", delay),
				xlogger.Error(lastErr),
			)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
		if onRetry != nil {
			onRetry(attempt+1, lastErr)
		}
	}
	return lastErr
}
