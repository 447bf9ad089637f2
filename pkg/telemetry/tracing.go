package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ErrUnknownExporter is returned for trace exporter names other than "stdout" and "none".
var ErrUnknownExporter = errors.New("unknown trace exporter")

// TracerName is the instrumentation scope of every span the engine opens.
const TracerName = "cafepos"

// TraceConfig selects the span exporter.
type TraceConfig struct {
	Exporter       string `yaml:"exporter"`
	ServiceName    string `yaml:"-"`
	ServiceVersion string `yaml:"-"`
}

// Tracer returns the engine tracer from the global provider. Without InitTracing the
// global provider is a no-op.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// InitTracing installs a global tracer provider and returns its shutdown function.
func InitTracing(_ context.Context, cfg TraceConfig) (func(context.Context) error, error) {
	switch cfg.Exporter {
	case "", "none":
		return func(context.Context) error { return nil }, nil
	case "stdout":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Exporter)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}
	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
