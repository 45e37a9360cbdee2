package resilience

import "time"

// defaultRetriableKinds: rate limits, transient network faults, and
// timeouts, plus InvalidResponse retried a bounded number of times
// (bounded here by the policy's own MaxAttempts).
var defaultRetriableKinds = []ErrorKind{KindTransient, KindTimeout, KindRateLimit, KindInvalidResponse}

// Retry presets, coarse profiles callers pick by workload.
var (
	RetryFast = Policy{
		MaxAttempts: 2, Strategy: StrategyExponential,
		BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second,
		Jitter: true, BackoffMultiplier: 2.0,
		RetriableKinds: defaultRetriableKinds,
	}
	RetryStandard = Policy{
		MaxAttempts: 3, Strategy: StrategyExponential,
		BaseDelay: time.Second, MaxDelay: 30 * time.Second,
		Jitter: true, BackoffMultiplier: 2.0,
		RetriableKinds: defaultRetriableKinds,
	}
	RetryPatient = Policy{
		MaxAttempts: 5, Strategy: StrategyExponential,
		BaseDelay: 2 * time.Second, MaxDelay: 60 * time.Second,
		Jitter: true, BackoffMultiplier: 2.0,
		RetriableKinds: defaultRetriableKinds,
	}
	// RetryNetworkHeavy retries network, timeout, and validation
	// errors, deliberately excluding RateLimit: a rate-limited
	// upstream needs the registry's longer backoff path, not a fast
	// network-oriented retry loop hammering it again in 45s.
	RetryNetworkHeavy = Policy{
		MaxAttempts: 4, Strategy: StrategyExponential,
		BaseDelay: time.Second, MaxDelay: 45 * time.Second,
		Jitter: true, BackoffMultiplier: 2.0,
		RetriableKinds: []ErrorKind{KindTransient, KindTimeout, KindInvalidResponse},
	}
)

// Breaker presets, from trip-happy to tolerant.
var (
	BreakerSensitive = BreakerConfig{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second, MinRequests: 5}
	BreakerStandard  = BreakerConfig{FailureThreshold: 5, RecoveryTimeout: 60 * time.Second, MinRequests: 10}
	BreakerTolerant  = BreakerConfig{FailureThreshold: 10, RecoveryTimeout: 120 * time.Second, MinRequests: 20}
)
