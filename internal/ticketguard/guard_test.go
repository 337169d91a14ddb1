package ticketguard

import (
	"context"
	"errors"
	"testing"
)

type fakeClassifier struct {
	response string
	err      error
}

func (f *fakeClassifier) Classify(ctx context.Context, prompt string) (string, error) {
	return f.response, f.err
}

func TestFastGuardGreeting(t *testing.T) {
	g := New(DefaultRules(), &fakeClassifier{})
	d, err := g.Evaluate(context.Background(), "Hi!", "Ada", 1)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if !d.ShouldCreateTicket || d.Reason != "Initial Greeting (Fast Guard)" {
		t.Fatalf("expected fast guard greeting decision, got %+v", d)
	}
}

func TestFastGuardDoesNotApplyAfterFiveMessages(t *testing.T) {
	g := New(DefaultRules(), &fakeClassifier{response: `{"should_create_ticket": true, "reason": "billing issue", "suggested_priority": "high", "suggested_category": "billing", "auto_reply_hint": "ok"}`})
	d, err := g.Evaluate(context.Background(), "hi", "Ada", 6)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if d.Reason == "Initial Greeting (Fast Guard)" {
		t.Fatalf("expected fast guard to be bypassed after message_count > 5")
	}
}

func TestSmartGuardParsesStrictJSON(t *testing.T) {
	g := New(DefaultRules(), &fakeClassifier{response: `{"should_create_ticket": true, "reason": "payment failed", "suggested_priority": "urgent", "suggested_category": "billing", "auto_reply_hint": "We're on it"}`})
	d, err := g.Evaluate(context.Background(), "my payment failed three times", "Ada", 3)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if !d.ShouldCreateTicket || d.SuggestedPriority != "urgent" || d.SuggestedCategory != "billing" {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestSmartGuardDefaultsPriorityOnParseFailure(t *testing.T) {
	g := New(DefaultRules(), &fakeClassifier{response: "not json at all"})
	d, err := g.Evaluate(context.Background(), "my payment failed", "Ada", 3)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if d.SuggestedPriority != "low" {
		t.Fatalf("expected default priority 'low' on parse failure, got %q", d.SuggestedPriority)
	}
}

func TestSmartGuardPropagatesClassifierError(t *testing.T) {
	g := New(DefaultRules(), &fakeClassifier{err: errors.New("upstream timeout")})
	if _, err := g.Evaluate(context.Background(), "my payment failed", "Ada", 3); err == nil {
		t.Fatalf("expected error to propagate from classifier failure")
	}
}

func TestValidPriority(t *testing.T) {
	for _, p := range []string{"low", "medium", "high", "urgent"} {
		if !validPriority(p) {
			t.Errorf("expected %q to be valid", p)
		}
	}
	if validPriority("critical") {
		t.Errorf("expected 'critical' to be invalid")
	}
}
