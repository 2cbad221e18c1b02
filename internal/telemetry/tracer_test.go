package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitTracer_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := InitTracer(Options{ServiceName: "test"}, slog.Default())
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Error("disabled tracing should leave the global provider alone")
	}
}

func TestInitTracer_ExportsSpans(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	var buf bytes.Buffer
	shutdown, err := InitTracer(Options{ServiceName: "test", Enabled: true, Writer: &buf}, slog.Default())
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}

	_, span := Tracer().Start(context.Background(), "emulator.chat")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
	if !strings.Contains(buf.String(), "emulator.chat") {
		t.Errorf("expected span in exporter output, got %q", buf.String())
	}
}
