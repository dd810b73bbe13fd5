package upstream

import (
	"errors"
	"sync"
	"time"
)

// State is one of a circuit breaker's three states.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// ErrCircuitOpen is returned by Allow when the breaker is open and the
// reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("upstream: circuit breaker is open")

// CircuitBreaker gates calls to a single upstream backend so a
// consistently-failing backend is skipped during fallback-chain
// traversal without waiting out its per-request timeout on every call.
type CircuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration

	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	successStreak int
}

// CircuitBreakerConfig configures the failure threshold and reset
// timeout. Zero values fall back to 3 failures / 60s, matching the
// teacher's defaults.
type CircuitBreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// NewCircuitBreaker builds a closed circuit breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	return &CircuitBreaker{
		failureThreshold: cfg.FailureThreshold,
		resetTimeout:     cfg.ResetTimeout,
		state:            StateClosed,
	}
}

// State reports the breaker's current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow reports whether a call may proceed, transitioning open->half-open
// once resetTimeout has elapsed since the last failure.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return nil
	case StateOpen:
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = StateHalfOpen
			cb.successStreak = 0
			return nil
		}
		return ErrCircuitOpen
	}
	return nil
}

// RecordResult updates the breaker's state after a call completes. Two
// consecutive successes from half-open close the breaker; reaching the
// failure threshold opens it.
func (cb *CircuitBreaker) RecordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()
		cb.successStreak = 0
		if cb.failures >= cb.failureThreshold {
			cb.state = StateOpen
		}
		return
	}

	cb.successStreak++
	if cb.state == StateHalfOpen && cb.successStreak >= 2 {
		cb.state = StateClosed
		cb.failures = 0
	}
}

// Reset forces the breaker back to closed, used by POST /reload.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successStreak = 0
}
