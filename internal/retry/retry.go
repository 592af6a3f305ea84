// Package retry provides a reusable retry policy with exponential, capped
// backoff. Every outbound network call in the migrator runs under one of
// these policies.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/pressline/pressline/internal/shared"
)

// Policy configures attempt counts and delay growth.
type Policy struct {
	MaxAttempts  int           // total attempts, must be >= 1
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // cap applied to every computed delay
	Multiplier   float64       // growth factor per retry
}

// DefaultPolicy matches the shipped configuration: 3 attempts, 1s initial
// delay doubling up to 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
}

// OnRetry is invoked after each failed attempt except the last, before the
// backoff sleep. attempt is 1-based; delay is the planned sleep.
type OnRetry func(err error, attempt int, delay time.Duration)

// Delay returns the backoff before attempt n+1 (n is the 1-based attempt that
// just failed): min(InitialDelay * Multiplier^(n-1), MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	if limit := float64(p.MaxDelay); d > limit {
		d = limit
	}
	return time.Duration(d)
}

// Do runs op up to p.MaxAttempts times.
//
// The last error is returned unmodified so callers can inspect its type.
// Each call owns its own attempt counter, so Do is safe to invoke from any
// number of goroutines. Context cancellation during a backoff sleep aborts
// with the context's error.
func Do(ctx context.Context, p Policy, op func() error, onRetry OnRetry) error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("%w: retry policy requires at least one attempt", shared.ErrInvalidConfig)
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.Delay(attempt)
		if onRetry != nil {
			onRetry(lastErr, attempt, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

// DoValue is the value-returning variant of [Do].
func DoValue[T any](ctx context.Context, p Policy, op func() (T, error), onRetry OnRetry) (T, error) {
	var result T
	err := Do(ctx, p, func() error {
		var opErr error
		result, opErr = op()
		return opErr
	}, onRetry)
	return result, err
}
