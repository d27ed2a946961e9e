package webhook

import (
	"testing"
	"time"
)

func TestCircuitBreaker(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(3, time.Minute)
	cb.now = func() time.Time { return now }
	const ep = "https://hooks.example.com"

	if !cb.Allow(ep) || cb.State(ep) != "closed" {
		t.Fatal("unknown endpoint should be allowed and closed")
	}

	cb.RecordFailure(ep)
	cb.RecordFailure(ep)
	if !cb.Allow(ep) {
		t.Error("below threshold should still allow")
	}

	cb.RecordFailure(ep)
	if cb.State(ep) != "open" || cb.Allow(ep) {
		t.Fatalf("state = %s, want open and rejecting", cb.State(ep))
	}

	now = now.Add(2 * time.Minute)
	if !cb.Allow(ep) {
		t.Fatal("after cool-down one trial should pass")
	}
	if cb.State(ep) != "half_open" {
		t.Errorf("state = %s, want half_open", cb.State(ep))
	}
	if cb.Allow(ep) {
		t.Error("a second concurrent trial should be rejected")
	}

	cb.RecordFailure(ep)
	if cb.State(ep) != "open" {
		t.Errorf("failed trial should reopen, got %s", cb.State(ep))
	}

	now = now.Add(2 * time.Minute)
	cb.Allow(ep)
	cb.RecordSuccess(ep)
	if cb.State(ep) != "closed" || !cb.Allow(ep) {
		t.Errorf("successful trial should close, got %s", cb.State(ep))
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(0, 0)
	if cb.failureThreshold != 5 || cb.coolDown != 5*time.Minute {
		t.Errorf("defaults = %d/%s", cb.failureThreshold, cb.coolDown)
	}
}
