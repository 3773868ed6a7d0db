package health

import (
	"sync"
	"time"
)

// CircuitState names the breaker's three states, parameterized on the
// consecutive-failure-count model spec §4.5 specifies
// (AGENT_MAX_FAILURES / CIRCUIT_BREAKER_RESET_TIME).
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker trips after maxFailures consecutive unhealthy checks for
// one agent, pausing restart attempts for resetTime before allowing a
// single probe back into half-open.
type CircuitBreaker struct {
	mu          sync.Mutex
	maxFailures int
	resetTime   time.Duration

	state          CircuitState
	consecutiveBad int
	openedAt       time.Time
}

// NewCircuitBreaker builds a breaker per the Health Monitor's configured
// AGENT_MAX_FAILURES / CIRCUIT_BREAKER_RESET_TIME.
func NewCircuitBreaker(maxFailures int, resetTime time.Duration) *CircuitBreaker {
	return &CircuitBreaker{maxFailures: maxFailures, resetTime: resetTime, state: CircuitClosed}
}

// RecordCheck feeds one health-check outcome into the breaker and returns
// the resulting state. A healthy check in half-open closes the circuit and
// resets the consecutive-failure counter; the agent's restart count is not
// touched. A healthy check in closed state resets the consecutive-failure
// counter; an unhealthy check in half-open reopens it
// immediately.
func (cb *CircuitBreaker) RecordCheck(healthy bool, now time.Time) CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && now.Sub(cb.openedAt) >= cb.resetTime {
		cb.state = CircuitHalfOpen
	}

	if healthy {
		switch cb.state {
		case CircuitHalfOpen:
			cb.state = CircuitClosed
			cb.consecutiveBad = 0
		case CircuitClosed:
			cb.consecutiveBad = 0
		}
		return cb.state
	}

	switch cb.state {
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.openedAt = now
		cb.consecutiveBad = cb.maxFailures
	case CircuitClosed:
		cb.consecutiveBad++
		if cb.consecutiveBad >= cb.maxFailures {
			cb.state = CircuitOpen
			cb.openedAt = now
		}
	}
	return cb.state
}

// State returns the current state without feeding in a new observation.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// RestartsAllowed reports whether the breaker permits a restart attempt
// right now (closed or half-open, never while fully open).
func (cb *CircuitBreaker) RestartsAllowed(now time.Time) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && now.Sub(cb.openedAt) >= cb.resetTime {
		cb.state = CircuitHalfOpen
	}
	return cb.state != CircuitOpen
}
