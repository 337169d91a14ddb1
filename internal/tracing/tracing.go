package tracing

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/orbitalcx/convoy/internal/store"
)

// noopTracer backs StartLiveSpan when no Tracer is wired.
var noopTracer = nooptrace.NewTracerProvider().Tracer(tracerName)

// Tracer starts OTel spans and mirrors their rollups into Postgres via Repo,
// keeping a queryable audit trail alongside live trace export.
type Tracer struct {
	provider *Provider
	repo     Repo
}

func New(provider *Provider, repo Repo) *Tracer {
	return &Tracer{provider: provider, repo: repo}
}

// ActiveTrace tracks one pipeline run (or guard evaluation) across its
// child spans.
type ActiveTrace struct {
	t         *Tracer
	otelSpan  trace.Span
	rec       Trace
	spanCount int
}

// StartPipelineTrace opens a root span named name for the given chat's
// operation (e.g. "ai_pipeline", "ticket_guard") and returns a context
// carrying it plus the handle used to record child spans and close it out.
func (t *Tracer) StartPipelineTrace(ctx context.Context, tenantID, chatID uuid.UUID, name, channel string) (context.Context, *ActiveTrace) {
	if t == nil {
		return ctx, &ActiveTrace{}
	}
	spanCtx, span := t.provider.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("convoy.tenant_id", tenantID.String()),
		attribute.String("convoy.chat_id", chatID.String()),
	))

	at := &ActiveTrace{
		t:        t,
		otelSpan: span,
		rec: Trace{
			ID:        store.GenNewID(),
			TenantID:  tenantID,
			ChatID:    chatID,
			Name:      name,
			Channel:   channel,
			StartTime: time.Now(),
			Status:    "ok",
		},
	}

	if t.repo != nil {
		if err := t.repo.CreateTrace(spanCtx, &at.rec); err != nil {
			slog.Warn("tracing: create trace failed", "trace_id", at.rec.ID, "error", err)
		}
	}

	return spanCtx, at
}

// ActiveSpan tracks one traced operation within a trace.
type ActiveSpan struct {
	at       *ActiveTrace
	otelSpan trace.Span
	rec      Span
}

// StartSpan opens a child span of kind spanType/name.
func (at *ActiveTrace) StartSpan(ctx context.Context, spanType SpanType, name string) (context.Context, *ActiveSpan) {
	if at == nil || at.t == nil {
		return ctx, &ActiveSpan{}
	}
	spanCtx, span := at.t.provider.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("convoy.span_type", string(spanType)),
	))
	at.spanCount++
	return spanCtx, &ActiveSpan{
		at:       at,
		otelSpan: span,
		rec: Span{
			ID:        store.GenNewID(),
			TraceID:   at.rec.ID,
			SpanType:  spanType,
			Name:      name,
			StartTime: time.Now(),
			Status:    "ok",
		},
	}
}

// WithToolName annotates a tool_call span with its invoked tool name.
func (s *ActiveSpan) WithToolName(toolName string) *ActiveSpan {
	if s == nil || s.at == nil {
		return s
	}
	s.rec.ToolName = toolName
	s.otelSpan.SetAttributes(attribute.String("convoy.tool.name", toolName))
	return s
}

// WithModel annotates an llm_call span with the model/provider it targeted.
func (s *ActiveSpan) WithModel(provider, model string) *ActiveSpan {
	if s == nil || s.at == nil {
		return s
	}
	s.rec.Provider, s.rec.Model = provider, model
	s.otelSpan.SetAttributes(attribute.String("convoy.llm.provider", provider), attribute.String("convoy.llm.model", model))
	return s
}

// End closes the span, recording token counts (llm_call spans only; zero for
// every other span type) and the terminal status.
func (s *ActiveSpan) End(ctx context.Context, inputTokens, outputTokens int, err error) {
	if s == nil || s.at == nil {
		return
	}
	now := time.Now()
	s.rec.EndTime = &now
	s.rec.DurationMS = int(now.Sub(s.rec.StartTime).Milliseconds())
	s.rec.InputTokens, s.rec.OutputTokens = inputTokens, outputTokens

	if err != nil {
		s.rec.Status = "error"
		s.rec.Error = err.Error()
		s.otelSpan.RecordError(err)
		s.otelSpan.SetStatus(codes.Error, err.Error())
	}
	s.otelSpan.End()

	s.at.rec.LLMCallCount += boolToInt(s.rec.SpanType == SpanLLMCall)
	s.at.rec.ToolCallCount += boolToInt(s.rec.SpanType == SpanToolCall)
	s.at.rec.TotalInputTokens += inputTokens
	s.at.rec.TotalOutputTokens += outputTokens

	if s.at.t.repo != nil {
		if cerr := s.at.t.repo.CreateSpan(ctx, &s.rec); cerr != nil {
			slog.Warn("tracing: create span failed", "span_id", s.rec.ID, "error", cerr)
		}
	}
}

// End closes the trace and persists its rollup (span/LLM/tool counts, token
// totals, terminal status) in one UPDATE.
func (at *ActiveTrace) End(ctx context.Context, err error) {
	if at == nil || at.t == nil {
		return
	}
	now := time.Now()
	at.rec.EndTime = &now
	at.rec.DurationMS = int(now.Sub(at.rec.StartTime).Milliseconds())
	at.rec.SpanCount = at.spanCount

	if err != nil {
		at.rec.Status = "error"
		at.rec.Error = err.Error()
		at.otelSpan.RecordError(err)
		at.otelSpan.SetStatus(codes.Error, err.Error())
	}
	at.otelSpan.End()

	if at.t.repo != nil {
		updates := map[string]any{
			"end_time":            *at.rec.EndTime,
			"duration_ms":         at.rec.DurationMS,
			"span_count":          at.rec.SpanCount,
			"llm_call_count":      at.rec.LLMCallCount,
			"tool_call_count":     at.rec.ToolCallCount,
			"total_input_tokens":  at.rec.TotalInputTokens,
			"total_output_tokens": at.rec.TotalOutputTokens,
			"status":              at.rec.Status,
			"error":               at.rec.Error,
		}
		if uerr := at.t.repo.UpdateTrace(ctx, at.rec.ID, updates); uerr != nil {
			slog.Warn("tracing: update trace failed", "trace_id", at.rec.ID, "error", uerr)
		}
	}
}

// StartLiveSpan opens a bare OTel span with no Postgres rollup, for
// operations — like a lock acquisition — that happen before a pipeline
// Trace can be opened (the tenant isn't resolved yet). Nil-safe: a nil
// Tracer (no tracing wired) returns the span as a no-op.
func (t *Tracer) StartLiveSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if t == nil {
		return noopTracer.Start(ctx, name)
	}
	return t.provider.tracer.Start(ctx, name)
}

// EndLiveSpan closes a span opened by StartLiveSpan, recording err if any.
func EndLiveSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
