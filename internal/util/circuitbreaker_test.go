package util

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("llm", 2, 30*time.Second, zap.NewNop())
	cb.now = func() time.Time { return now }

	cb.RecordFailure(0)
	if !cb.CanExecute() {
		t.Fatalf("expected breaker to stay closed after one failure")
	}

	cb.RecordFailure(0)
	if cb.CanExecute() {
		t.Fatalf("expected breaker to open after reaching threshold")
	}

	now = now.Add(31 * time.Second)
	if got := cb.State(); got != CircuitStateHalfOpen {
		t.Fatalf("state after timeout = %s, want HALF_OPEN", got)
	}

	cb.RecordFailure(0)
	if got := cb.State(); got != CircuitStateOpen {
		t.Fatalf("half-open failure should reopen, got %s", got)
	}

	now = now.Add(31 * time.Second)
	cb.RecordSuccess()
	if got := cb.State(); got != CircuitStateClosed {
		t.Fatalf("state after success = %s, want CLOSED", got)
	}
	if status := cb.Status(); status.FailureCount != 0 {
		t.Fatalf("failure count after success = %d, want 0", status.FailureCount)
	}
}
