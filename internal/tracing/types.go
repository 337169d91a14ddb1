// Package tracing wraps every lock acquisition, LLM call, tool call, and
// dispatch attempt in an OpenTelemetry span and rolls each pipeline run up
// into a Postgres trace/span pair, so a failed run leaves a queryable audit
// trail even when no collector is listening.
package tracing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SpanType names the operations an audit trail is kept for.
type SpanType string

const (
	SpanLock     SpanType = "lock"
	SpanLLMCall  SpanType = "llm_call"
	SpanToolCall SpanType = "tool_call"
	SpanDispatch SpanType = "dispatch"
)

// Trace is one pipeline run (or guard evaluation), rolled up from its
// child spans.
type Trace struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	ChatID            uuid.UUID
	Name              string
	Channel           string
	StartTime         time.Time
	EndTime           *time.Time
	DurationMS        int
	SpanCount         int
	LLMCallCount      int
	ToolCallCount     int
	TotalInputTokens  int
	TotalOutputTokens int
	Status            string // "ok" | "error"
	Error             string
	CreatedAt         time.Time
}

// Span is one traced operation within a Trace.
type Span struct {
	ID           uuid.UUID
	TraceID      uuid.UUID
	ParentSpanID *uuid.UUID
	SpanType     SpanType
	Name         string
	StartTime    time.Time
	EndTime      *time.Time
	DurationMS   int
	Status       string
	Error        string
	Model        string
	Provider     string
	InputTokens  int
	OutputTokens int
	ToolName     string
	ToolCallID   string
	CreatedAt    time.Time
}

// Repo persists traces and spans. Implemented by internal/store/pg against
// the traces/spans tables.
type Repo interface {
	CreateTrace(ctx context.Context, t *Trace) error
	UpdateTrace(ctx context.Context, traceID uuid.UUID, updates map[string]any) error
	CreateSpan(ctx context.Context, s *Span) error
}
