package rules

import (
	"testing"

	"github.com/orbitalcx/convoy/internal/store"
)

func TestShouldHandoffDisabledReturnsFalse(t *testing.T) {
	got, err := ShouldHandoff(store.HandoffTriggers{Enabled: false, Keywords: []string{"refund"}}, "I want a refund")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Fatalf("expected no handoff when triggers disabled")
	}
}

func TestShouldHandoffKeywordMatch(t *testing.T) {
	got, err := ShouldHandoff(store.HandoffTriggers{Enabled: true, Keywords: []string{"speak to a human", "manager"}}, "Let me speak to a human please")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Fatalf("expected keyword match to trigger handoff")
	}
}

func TestShouldHandoffExprFallback(t *testing.T) {
	got, err := ShouldHandoff(store.HandoffTriggers{Enabled: true, Expr: "message.length > 5"}, "this is long enough")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Fatalf("expected expr to evaluate true for a long message")
	}
}

func TestEscalatorEvaluatesAndCaches(t *testing.T) {
	esc, err := NewEscalator()
	if err != nil {
		t.Fatalf("NewEscalator failed: %v", err)
	}
	in := EscalationInput{MessageCount: 12, Priority: "high", MinutesOpen: 45}

	got, err := esc.ShouldEscalate(`priority == "high" && minutes_open > 30`, in)
	if err != nil {
		t.Fatalf("ShouldEscalate returned error: %v", err)
	}
	if !got {
		t.Fatalf("expected escalation to be true")
	}

	// Second call with the same expression exercises the compiled-program cache.
	got2, err := esc.ShouldEscalate(`priority == "high" && minutes_open > 30`, in)
	if err != nil || !got2 {
		t.Fatalf("expected cached evaluation to match, got %v err=%v", got2, err)
	}
}

func TestEscalatorEmptyExprNeverEscalates(t *testing.T) {
	esc, err := NewEscalator()
	if err != nil {
		t.Fatalf("NewEscalator failed: %v", err)
	}
	got, err := esc.ShouldEscalate("", EscalationInput{})
	if err != nil || got {
		t.Fatalf("expected empty expression to never escalate, got %v err=%v", got, err)
	}
}
