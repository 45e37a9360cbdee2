// Package resilience implements retry policies composed with per-function
// circuit breakers: configurable backoff strategies, kind-gated
// retriability, and a bounded error monitor for observability.
package resilience

import (
	"math/rand"
	"time"
)

// Strategy selects the backoff shape between attempts.
type Strategy string

const (
	StrategyFixed       Strategy = "fixed"
	StrategyLinear      Strategy = "linear"
	StrategyExponential Strategy = "exponential"
	StrategyFibonacci   Strategy = "fibonacci"
)

// Policy configures a retry sequence.
type Policy struct {
	MaxAttempts       int
	Strategy          Strategy
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	Jitter            bool
	BackoffMultiplier float64
	// RetriableKinds is the set of ErrorKinds this policy retries. A
	// zero value retries any error regardless of kind, matching the
	// behavior of a policy built without an explicit taxonomy.
	RetriableKinds []ErrorKind
}

// IsRetriable reports whether err's kind is one this policy retries. A
// Policy with no declared RetriableKinds retries unconditionally.
func (p Policy) IsRetriable(err error) bool {
	if len(p.RetriableKinds) == 0 {
		return true
	}
	k := Kind(err)
	for _, rk := range p.RetriableKinds {
		if rk == k {
			return true
		}
	}
	return false
}

// Delay computes the backoff before attempt (1-indexed: the delay before
// the 2nd attempt is Delay(policy, 1)).
func Delay(policy Policy, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	var d time.Duration
	switch policy.Strategy {
	case StrategyFixed:
		d = policy.BaseDelay
	case StrategyLinear:
		d = policy.BaseDelay * time.Duration(attempt)
	case StrategyFibonacci:
		// The multiplier sequence starts one past the identical leading
		// pair: attempt 1 -> 1, 2 -> 2, 3 -> 3, 4 -> 5, 5 -> 8.
		d = policy.BaseDelay * time.Duration(fibonacci(attempt+1))
	case StrategyExponential:
		fallthrough
	default:
		mult := policy.BackoffMultiplier
		if mult <= 0 {
			mult = 2.0
		}
		d = policy.BaseDelay
		for i := 1; i < attempt; i++ {
			d = time.Duration(float64(d) * mult)
		}
	}

	if policy.MaxDelay > 0 && d > policy.MaxDelay {
		d = policy.MaxDelay
	}

	if policy.Jitter {
		jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
		d = d/2 + jitter
	}

	return d
}

// fibonacci returns the nth Fibonacci number (1-indexed: 1, 1, 2, 3, 5, ...).
func fibonacci(n int) int64 {
	if n <= 1 {
		return 1
	}
	var a, b int64 = 1, 1
	for i := 2; i < n; i++ {
		a, b = b, a+b
	}
	return b
}
