// Package retry runs an operation again after a delay when it fails.
package retry

import (
	"context"
	"time"
)

type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffLinear      BackoffType = "linear"
	BackoffExponential BackoffType = "exponential"
)

// Policy describes how often and how patiently an operation is retried.
// MaxAttempts counts the first try; values below 1 mean a single attempt.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	MaxDelay    time.Duration
	Backoff     BackoffType
	// Retryable reports whether err is worth another attempt. Nil retries everything.
	Retryable func(err error) bool
}

// ImagePolicy is used for the per-slide image requests: one retry after 1.5s.
func ImagePolicy(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: 2,
		Delay:       1500 * time.Millisecond,
		Backoff:     BackoffFixed,
		Retryable:   retryable,
	}
}

// NoRetry makes a single attempt.
func NoRetry() Policy {
	return Policy{MaxAttempts: 1}
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// DelayFor returns the wait before retry number n (1-based).
func (p Policy) DelayFor(n int) time.Duration {
	if n <= 0 {
		return 0
	}

	var delay time.Duration
	switch p.Backoff {
	case BackoffLinear:
		delay = p.Delay * time.Duration(n)
	case BackoffExponential:
		delay = p.Delay << (n - 1)
	default:
		delay = p.Delay
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

func (p Policy) shouldRetry(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// Do calls fn until it succeeds, returns a non-retryable error or runs out of
// attempts. attempt starts at 1. The last error is returned as is.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error

	max := p.attempts()
	for attempt := 1; attempt <= max; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == max || !p.shouldRetry(err) {
			break
		}

		if delay := p.DelayFor(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return zero, lastErr
}
