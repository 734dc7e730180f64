package tracing

import (
	"context"
	"testing"
)

func TestSetupDisabledReturnsNoopShutdown(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown returned error: %v", err)
	}
}

func TestSetupEnabledUsesStdoutExporterWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{
		Enabled:     true,
		SampleRate:  1.0,
		ServiceName: "mcp-guard-test",
	})
	if err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown returned error: %v", err)
		}
	}()

	ctx, span := Tracer().Start(context.Background(), "test-span")
	defer span.End()
	if !span.SpanContext().IsValid() {
		t.Fatal("expected a valid span context once a real TracerProvider is installed")
	}
	_ = ctx
}

func TestPropagatorIsNeverNil(t *testing.T) {
	if Propagator() == nil {
		t.Fatal("expected a non-nil propagator even before Setup runs")
	}
}
