package health

import (
	"testing"
	"time"
)

func TestCircuitBreakerStaysClosedUnderMaxFailures(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(3, time.Minute)

	cb.RecordCheck(false, now)
	got := cb.RecordCheck(false, now)
	if got != CircuitClosed {
		t.Fatalf("state = %v, want closed after 2 of 3 allowed failures", got)
	}
}

func TestCircuitBreakerTripsAfterMaxFailures(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(3, time.Minute)

	cb.RecordCheck(false, now)
	cb.RecordCheck(false, now)
	got := cb.RecordCheck(false, now)
	if got != CircuitOpen {
		t.Fatalf("state = %v, want open on the 3rd consecutive failure", got)
	}
	if cb.RestartsAllowed(now) {
		t.Fatal("restarts should not be allowed while open")
	}
}

func TestCircuitBreakerHealthyCheckResetsConsecutiveCount(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(3, time.Minute)

	cb.RecordCheck(false, now)
	cb.RecordCheck(false, now)
	cb.RecordCheck(true, now)
	got := cb.RecordCheck(false, now)
	if got != CircuitClosed {
		t.Fatalf("state = %v, want closed (failure streak reset by healthy check)", got)
	}
}

func TestCircuitBreakerHalfOpenAfterResetTime(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(1, time.Minute)

	cb.RecordCheck(false, now)
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	later := now.Add(2 * time.Minute)
	if !cb.RestartsAllowed(later) {
		t.Fatal("restarts should be allowed once in half-open")
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("state = %v, want half_open after reset time elapses", cb.State())
	}
}

func TestCircuitBreakerHealthyCheckInHalfOpenCloses(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(1, time.Minute)

	cb.RecordCheck(false, now)
	later := now.Add(2 * time.Minute)
	got := cb.RecordCheck(true, later)
	if got != CircuitClosed {
		t.Fatalf("state = %v, want closed after healthy probe in half_open", got)
	}

	// failure streak should be reset, so a single new failure must not re-open it
	got = cb.RecordCheck(false, later)
	if got != CircuitClosed {
		t.Fatalf("state = %v, want closed after a single failure post-reset", got)
	}
}

func TestCircuitBreakerUnhealthyCheckInHalfOpenReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(1, time.Minute)

	cb.RecordCheck(false, now)
	later := now.Add(2 * time.Minute)
	got := cb.RecordCheck(false, later)
	if got != CircuitOpen {
		t.Fatalf("state = %v, want open after unhealthy probe in half_open", got)
	}
	if cb.RestartsAllowed(later) {
		t.Fatal("restarts should not be allowed immediately after reopening")
	}
	if !cb.RestartsAllowed(later.Add(2 * time.Minute)) {
		t.Fatal("restarts should be allowed again after the reset time elapses from reopening")
	}
}
