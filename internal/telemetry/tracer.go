// Package telemetry wires OpenTelemetry tracing for the gateway.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used by the emulation engine.
const TracerName = "github.com/epam/ai-dial-adapter-bedrock-sub000"

// Options configures InitTracer.
type Options struct {
	ServiceName string
	Enabled     bool

	// Writer receives exported spans. Defaults to stdout.
	Writer io.Writer
}

// InitTracer initializes OpenTelemetry tracing and returns its shutdown
// function. When tracing is disabled the global no-op provider stays in place.
func InitTracer(opts Options, logger *slog.Logger) (func(context.Context) error, error) {
	if !opts.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(opts.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	logger.Info("OpenTelemetry initialized", slog.String("service", opts.ServiceName))

	return tp.Shutdown, nil
}

// Tracer returns the gateway tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
