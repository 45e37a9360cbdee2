package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// ErrBreakerOpen is returned by Call when the breaker is open and the
// recovery timeout has not yet elapsed.
var ErrBreakerOpen = errors.New("circuit breaker open")

// BreakerConfig configures a Breaker's trip/recovery thresholds.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	MinRequests      int
}

// Breaker is a per-function circuit breaker: Closed (normal), Open
// (fast-failing), HalfOpen (probing a single call to test recovery).
type Breaker struct {
	mu sync.Mutex

	cfg BreakerConfig

	state       State
	failures    int
	requests    int
	lastFailure time.Time
	probing     bool
}

// NewBreaker creates a breaker starting Closed.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg, state: StateClosed}
}

// State returns the breaker's current state, resolving a pending
// Open -> HalfOpen transition if the recovery timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

func (b *Breaker) maybeHalfOpenLocked() {
	if b.state == StateOpen && time.Since(b.lastFailure) >= b.cfg.RecoveryTimeout {
		b.state = StateHalfOpen
	}
}

// Call executes fn guarded by the breaker. If the breaker is Open and the
// recovery timeout has not elapsed, fn is not invoked and ErrBreakerOpen
// is returned.
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	b.mu.Lock()
	b.maybeHalfOpenLocked()
	if b.state == StateOpen || (b.state == StateHalfOpen && b.probing) {
		b.mu.Unlock()
		return ErrBreakerOpen
	}
	b.probing = b.state == StateHalfOpen
	b.mu.Unlock()

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	b.requests++
	if err != nil {
		b.onFailureLocked()
		return err
	}
	b.onSuccessLocked()
	return nil
}

func (b *Breaker) onSuccessLocked() {
	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.failures = 0
		b.requests = 0
		return
	}
	b.failures = 0
}

func (b *Breaker) onFailureLocked() {
	b.failures++
	b.lastFailure = time.Now()

	if b.state == StateHalfOpen {
		b.state = StateOpen
		return
	}

	if b.requests >= b.cfg.MinRequests && b.failures >= b.cfg.FailureThreshold {
		b.state = StateOpen
	}
}
