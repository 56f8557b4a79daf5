// Package retry wraps provider calls in a bounded exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Policy describes how often and how patiently a call is retried.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; it doubles on every further attempt.
	BaseDelay time.Duration
	// MaxDelay caps a single wait before jitter is applied.
	MaxDelay time.Duration
	// Jitter is the +/- fraction applied to every wait (0.25 = ±25%).
	Jitter float64
	// Retryable decides whether an error is worth another attempt.
	Retryable func(error) bool

	// Sleep waits for d or until ctx is done. Replaced by a fake clock in tests.
	Sleep func(ctx context.Context, d time.Duration) error
	// Float returns a number in [0, 1) used for jitter.
	Float func() float64
}

// Default returns a 3-attempt policy with 500ms base delay and ±25% jitter that retries only
// errors matched by retryable.
func Default(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Jitter:      0.25,
		Retryable:   retryable,
	}
}

// Backoff returns the wait before attempt n (1-based); attempt 1 never waits.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt <= 1 || p.BaseDelay <= 0 {
		return 0
	}
	// Cap the shift to avoid overflow
	shift := min(attempt-2, 30)
	backoff := p.BaseDelay * time.Duration(1<<uint(shift))
	if p.MaxDelay > 0 && (backoff > p.MaxDelay || backoff <= 0) {
		backoff = p.MaxDelay
	}
	if p.Jitter > 0 {
		r := p.float()*2 - 1 // [-1, 1)
		backoff += time.Duration(float64(backoff) * p.Jitter * r)
	}
	return backoff
}

// Do calls fn until it succeeds, returns a non-retryable error, or attempts run out.
// The last error is returned unchanged so callers can still match it with errors.Is.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if wait := p.Backoff(attempt); wait > 0 {
			if err := p.sleep(ctx, wait); err != nil {
				return errors.Join(lastErr, err)
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// DoValue is Do for calls that return a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p Policy) float() float64 {
	if p.Float != nil {
		return p.Float()
	}
	return rand.Float64()
}
