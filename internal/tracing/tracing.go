// Package tracing wires up OpenTelemetry span export for the request
// pipeline: the stdout exporter by default, an OTLP/HTTP exporter when an
// endpoint is configured, sampled per tracing.sample_rate.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope every span in the request
// pipeline is created under.
const TracerName = "mcp-guard"

// Config configures span export.
type Config struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRate   float64
	ServiceName  string
}

// Shutdown flushes pending spans and releases exporter resources.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Setup installs a global TracerProvider per cfg. When cfg.Enabled is
// false, it installs nothing and returns a no-op shutdown so callers can
// unconditionally defer the result.
func Setup(ctx context.Context, cfg Config) (Shutdown, error) {
	if !cfg.Enabled {
		return noop, nil
	}

	exporter, err := newExporter(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return noop, fmt.Errorf("tracing: build exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return noop, fmt.Errorf("tracing: build resource: %w", err)
	}

	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 1.0
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
	if endpoint != "" {
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	}
	return stdouttrace.New(stdouttrace.WithoutTimestamps())
}

// Tracer returns the request pipeline's tracer. Safe to call whether or
// not Setup installed a real provider — with tracing disabled this
// returns the no-op global tracer.
func Tracer() oteltrace.Tracer {
	return otel.Tracer(TracerName)
}

// Propagator returns the globally installed text-map propagator, used by
// the tracing middleware to extract an inbound traceparent/tracestate.
func Propagator() propagation.TextMapPropagator {
	return otel.GetTextMapPropagator()
}
