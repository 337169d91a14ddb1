package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// tracerName is the instrumentation scope name for convoy's spans.
const tracerName = "convoy"

// OtelConfig mirrors internal/config's tracing block.
type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Provider wraps the OTel tracer provider with cleanup. When disabled, every
// span produced through it is a genuine no-op, so instrumented call sites
// never need their own enabled/disabled branch.
type Provider struct {
	tp       *sdktrace.TracerProvider
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// InitProvider sets up the OpenTelemetry provider per cfg, exporting over
// otlp-http. A disabled config yields a noop tracer, never a nil provider.
func InitProvider(ctx context.Context, cfg OtelConfig) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: nooptrace.NewTracerProvider().Tracer(tracerName), shutdown: noopShutdown}, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "convoy"
	}

	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", serviceName)))
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("tracing: build exporter: %w", err)
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}
	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp, tracer: tp.Tracer(tracerName), shutdown: tp.Shutdown}, nil
}

func noopShutdown(context.Context) error { return nil }

// Shutdown flushes and releases the provider's exporter connection.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}
