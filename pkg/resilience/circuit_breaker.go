package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitOpenError reports circuit-open status with a concrete retry delay.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	retryAfter := max(e.RetryAfter, 0)
	if e.Name == "" {
		return fmt.Sprintf("%v: retry in %s", ErrCircuitOpen, retryAfter)
	}
	return fmt.Sprintf("%v for %s: retry in %s", ErrCircuitOpen, e.Name, retryAfter)
}

func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// CircuitBreakerState is one of closed, open, or half_open.
type CircuitBreakerState string

const (
	CircuitClosed   CircuitBreakerState = "closed"
	CircuitOpen     CircuitBreakerState = "open"
	CircuitHalfOpen CircuitBreakerState = "half_open"
)

type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
}

// CircuitBreaker fails calls fast after consecutive failures, probing again
// once OpenTimeout has elapsed. It guards calls to remote collaborators
// (the external scanning daemon) so a dead dependency does not stall every
// upload for a full dial timeout.
type CircuitBreaker struct {
	mu  sync.Mutex
	cfg CircuitBreakerConfig

	state     CircuitBreakerState
	failures  int
	successes int
	openUntil time.Time
	probing   bool
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}

	return &CircuitBreaker{cfg: cfg, state: CircuitClosed}
}

// State returns the current state, applying any pending open->half_open
// transition first.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refreshLocked(time.Now())
	return cb.state
}

// Execute runs fn under the breaker. While open it returns *CircuitOpenError
// without invoking fn; in half_open a single probe call is admitted at a time.
// Context cancellation is not counted against the dependency.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)

	switch {
	case errors.Is(err, context.Canceled):
		cb.settle(func() {})
	case err != nil:
		cb.settle(cb.recordFailureLocked)
	default:
		cb.settle(cb.recordSuccessLocked)
	}
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.refreshLocked(now)

	switch cb.state {
	case CircuitOpen:
		return &CircuitOpenError{Name: cb.cfg.Name, RetryAfter: cb.openUntil.Sub(now)}
	case CircuitHalfOpen:
		if cb.probing {
			return &CircuitOpenError{Name: cb.cfg.Name, RetryAfter: cb.openUntil.Sub(now)}
		}
		cb.probing = true
		return nil
	default:
		return nil
	}
}

// settle runs the outcome handler with the probe slot released.
func (cb *CircuitBreaker) settle(outcome func()) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
	outcome()
}

func (cb *CircuitBreaker) recordSuccessLocked() {
	if cb.state == CircuitHalfOpen {
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.state = CircuitClosed
			cb.failures, cb.successes = 0, 0
		}
		return
	}
	cb.failures = 0
}

func (cb *CircuitBreaker) recordFailureLocked() {
	if cb.state == CircuitHalfOpen {
		cb.trip()
		return
	}
	cb.failures++
	if cb.failures >= cb.cfg.FailureThreshold {
		cb.trip()
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = CircuitOpen
	cb.openUntil = time.Now().Add(cb.cfg.OpenTimeout)
	cb.failures, cb.successes = 0, 0
}

func (cb *CircuitBreaker) refreshLocked(now time.Time) {
	if cb.state == CircuitOpen && !now.Before(cb.openUntil) {
		cb.state = CircuitHalfOpen
		cb.failures, cb.successes = 0, 0
		cb.probing = false
	}
}
