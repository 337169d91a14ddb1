// Package ticketguard implements the ticket guard: a two-layer rule
// that decides whether an inbound message should spawn a support ticket.
package ticketguard

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	json5 "github.com/titanous/json5"
)

// Decision is evaluate()'s discriminated result.
type Decision struct {
	ShouldCreateTicket bool
	Reason             string
	SuggestedPriority  string
	SuggestedCategory  string
	AutoReplyHint      string
}

// Classifier is the minimal seam into the small classifier LLM used by the
// smart guard — satisfied by internal/llmproxy.Client without an import
// cycle back into this package.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

// Rules is the tenant-configurable vocabulary the guard is parameterized
// on.
type Rules struct {
	Greetings        []string
	ShortSpam        []string
	NegativeIntents  []string
	PositiveIntents  []string
	PriorityKeywords map[string][]string // priority -> keyword list
}

// DefaultRules is the safe fallback vocabulary for tenants with no
// override configured.
func DefaultRules() Rules {
	return Rules{
		Greetings:       []string{"hi", "hello", "hey", "test"},
		ShortSpam:       []string{"ok", "k", "ya", "no"},
		NegativeIntents: []string{"hi", "hello", "test"},
		PositiveIntents: []string{"help", "error", "problem"},
		PriorityKeywords: map[string][]string{
			"urgent": {"urgent", "asap", "emergency"},
			"high":   {"billing", "payment", "refund"},
		},
	}
}

var alnumOnlyRE = regexp.MustCompile(`[^a-z0-9]`)

func normalize(text string) string {
	return alnumOnlyRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), "")
}

// Guard evaluates inbound text through the fast guard first, falling back
// to the smart (LLM) guard.
type Guard struct {
	rules      Rules
	classifier Classifier
}

func New(rules Rules, classifier Classifier) *Guard {
	return &Guard{rules: rules, classifier: classifier}
}

// Evaluate decides whether text warrants a ticket, with priority and
// category hints.
func (g *Guard) Evaluate(ctx context.Context, text, customerName string, messageCount int) (*Decision, error) {
	if d, ok := g.fastGuard(text, messageCount); ok {
		return d, nil
	}
	return g.smartGuard(ctx, text, customerName)
}

// fastGuard short-circuits obvious greetings/spam without an LLM call.
func (g *Guard) fastGuard(text string, messageCount int) (*Decision, bool) {
	if messageCount > 5 {
		return nil, false
	}
	norm := normalize(text)
	if containsString(g.rules.Greetings, norm) {
		return fastGuardDecision(), true
	}
	if len(norm) < 4 && containsString(g.rules.ShortSpam, norm) {
		return fastGuardDecision(), true
	}
	return nil, false
}

func fastGuardDecision() *Decision {
	return &Decision{
		ShouldCreateTicket: true,
		Reason:             "Initial Greeting (Fast Guard)",
		SuggestedPriority:  "low",
		SuggestedCategory:  "other",
		AutoReplyHint:      "Thanks for reaching out! How can we help you today?",
	}
}

// smartGuard asks the classifier LLM for a strict-JSON decision, defaulting
// to priority "low" on parse failure.
func (g *Guard) smartGuard(ctx context.Context, text, customerName string) (*Decision, error) {
	prompt := g.classifierPrompt(text, customerName)
	raw, err := g.classifier.Classify(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("ticketguard: classifier call failed: %w", err)
	}

	var parsed struct {
		ShouldCreateTicket bool   `json:"should_create_ticket"`
		Reason             string `json:"reason"`
		SuggestedPriority  string `json:"suggested_priority"`
		SuggestedCategory  string `json:"suggested_category"`
		AutoReplyHint      string `json:"auto_reply_hint"`
	}

	cleaned := stripMarkdownFence(raw)
	// json5 tolerates the classifier's occasional trailing commas / unquoted
	// keys before we give up and fall back to the safe default.
	if err := json5.Unmarshal([]byte(cleaned), &parsed); err != nil {
		if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
			return &Decision{ShouldCreateTicket: false, Reason: "classifier_parse_failure", SuggestedPriority: "low", SuggestedCategory: "other"}, nil
		}
	}

	if !validPriority(parsed.SuggestedPriority) {
		parsed.SuggestedPriority = "low"
	}
	if parsed.SuggestedCategory == "" {
		parsed.SuggestedCategory = "other"
	}

	return &Decision{
		ShouldCreateTicket: parsed.ShouldCreateTicket,
		Reason:             parsed.Reason,
		SuggestedPriority:  parsed.SuggestedPriority,
		SuggestedCategory:  parsed.SuggestedCategory,
		AutoReplyHint:      parsed.AutoReplyHint,
	}, nil
}

func (g *Guard) classifierPrompt(text, customerName string) string {
	negJSON, _ := json.Marshal(g.rules.NegativeIntents)
	posJSON, _ := json.Marshal(g.rules.PositiveIntents)
	prioJSON, _ := json.Marshal(g.rules.PriorityKeywords)

	return fmt.Sprintf(`You are the Ticket Guard AI. Your ONLY job is to classify if a message needs a support ticket.

CONFIGURATION:
- Ignore (No Ticket): %s
- Create Ticket: %s
- Priority Keywords: %s

Customer: %s
Message: %q

Return ONLY a raw JSON object (no markdown formatting):
{"should_create_ticket": boolean, "reason": "short explanation", "suggested_priority": "low"|"medium"|"high"|"urgent", "suggested_category": "string", "auto_reply_hint": "string"}`,
		negJSON, posJSON, prioJSON, customerName, text)
}

func validPriority(p string) bool {
	switch p {
	case "low", "medium", "high", "urgent":
		return true
	}
	return false
}

func stripMarkdownFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
