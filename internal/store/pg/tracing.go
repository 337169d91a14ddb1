package pg

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/orbitalcx/convoy/internal/tracing"
)

// TracingStore implements tracing.Repo against the traces/spans tables,
// trimmed to the fields the Tracer actually populates (tenant/chat scoping,
// no parent-trace hierarchy), with plain sqlx exec calls matching the rest
// of this package's repositories.
type TracingStore struct {
	db *sqlx.DB
}

func NewTracingStore(db *sqlx.DB) *TracingStore { return &TracingStore{db: db} }

func (s *TracingStore) CreateTrace(ctx context.Context, t *tracing.Trace) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO traces (id, tenant_id, chat_id, name, channel, start_time, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		t.ID, t.TenantID, t.ChatID, t.Name, nilStr(t.Channel), t.StartTime, t.Status)
	return err
}

func (s *TracingStore) UpdateTrace(ctx context.Context, traceID uuid.UUID, updates map[string]any) error {
	return execMapUpdate(ctx, s.db, "traces", traceID, updates)
}

func (s *TracingStore) CreateSpan(ctx context.Context, sp *tracing.Span) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO spans (id, trace_id, parent_span_id, span_type, name, start_time, end_time, duration_ms,
		 status, error, model, provider, input_tokens, output_tokens, tool_name, tool_call_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now())`,
		sp.ID, sp.TraceID, sp.ParentSpanID, string(sp.SpanType), nilStr(sp.Name), sp.StartTime, nilTime(sp.EndTime),
		nilInt(sp.DurationMS), nilStr(sp.Status), nilStr(sp.Error), nilStr(sp.Model), nilStr(sp.Provider),
		nilInt(sp.InputTokens), nilInt(sp.OutputTokens), nilStr(sp.ToolName), nilStr(sp.ToolCallID))
	return err
}
