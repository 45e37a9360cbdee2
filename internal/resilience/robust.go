package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RobustCall composes a retry policy with a circuit breaker and an
// optional fallback: it retries fn up to policy.MaxAttempts times, each
// attempt gated by breaker, and if every attempt fails it invokes
// fallback (if non-nil) instead of propagating the error.
func RobustCall[T any](ctx context.Context, breaker *Breaker, policy Policy, monitor *ErrorMonitor, source string, fn func(context.Context) (T, error), fallback func() T) (T, error) {
	var zero T
	var lastErr error

	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			d := Delay(policy, attempt-1)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(d):
			}
		}

		var result T
		err := breaker.Call(ctx, func(ctx context.Context) error {
			r, err := fn(ctx)
			result = r
			return err
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if monitor != nil {
			monitor.Record(source, err)
		}
		if errors.Is(err, ErrBreakerOpen) {
			// An open breaker will stay open for the whole retry window;
			// the caller (registry/router) moves to the next provider.
			break
		}
		if !policy.IsRetriable(err) {
			break
		}
	}

	if fallback != nil {
		return fallback(), nil
	}
	return zero, fmt.Errorf("%s: all attempts failed: %w", source, lastErr)
}
