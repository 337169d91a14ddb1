package llmproxy

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestMultimodalContentIncludesImages(t *testing.T) {
	m := Message{Content: "what's wrong here", Images: []ImageURL{{URL: "https://x/1.png"}, {URL: "https://x/2.png"}}}
	parts := m.MultimodalContent()
	if len(parts) != 3 {
		t.Fatalf("expected 1 text part + 2 image parts, got %d", len(parts))
	}
	if parts[0]["type"] != "text" {
		t.Fatalf("expected first part to be text, got %+v", parts[0])
	}
}

func TestCollapseToolCallsWithoutSigFoldsToolResults(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "tc1", Function: FunctionCall{Name: "lookup"}}}},
		{Role: "tool", ToolCallID: "tc1", Content: "result A"},
	}
	out := collapseToolCallsWithoutSig(msgs)

	for _, m := range out {
		if len(m.ToolCalls) > 0 {
			t.Fatalf("expected tool_calls to be stripped when thought_signature is missing, got %+v", m)
		}
		if m.Role == "tool" {
			t.Fatalf("expected orphaned tool messages to be collapsed, got %+v", m)
		}
	}
}

func TestCollapseToolCallsWithoutSigPreservesSignedCalls(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "tc1", Function: FunctionCall{Name: "lookup", ThoughtSignature: "sig"}}}},
		{Role: "tool", ToolCallID: "tc1", Content: "result A"},
	}
	out := collapseToolCallsWithoutSig(msgs)
	if len(out) != 3 {
		t.Fatalf("expected signed tool_calls to pass through unchanged, got %d messages", len(out))
	}
}

type stubTool struct{ name string }

func (s stubTool) Name() string            { return s.name }
func (s stubTool) Description() string     { return "stub" }
func (s stubTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (s stubTool) Execute(ctx context.Context, tenantID, agentID uuid.UUID, args map[string]any) ToolResult {
	return ToolResult{Status: "ok", Output: "done"}
}

func TestExecutorUnknownToolReturnsErrorResult(t *testing.T) {
	e := NewExecutor()
	result := e.Execute(context.Background(), uuid.New(), uuid.New(), "ghost__tool", nil)
	if result.Status != "error" {
		t.Fatalf("expected error status for unknown tool, got %+v", result)
	}
}

func TestExecutorDispatchesRegisteredTool(t *testing.T) {
	e := NewExecutor()
	e.Register(stubTool{name: "knowledge__search"})
	result := e.Execute(context.Background(), uuid.New(), uuid.New(), "knowledge__search", nil)
	if result.Status != "ok" || result.Output != "done" {
		t.Fatalf("expected stub tool result, got %+v", result)
	}
}
