// Package otelsim wires OpenTelemetry tracing for the simulation runtime:
// one span per VirtualClock.Advance call and one child span per dispatched
// event. Grounded on the teacher's internal/observability/tracing.go
// (TracingConfig, InitTracing, ShutdownWithTimeout), narrowed to the
// stdout exporter only — spec.md's "no network transport" non-goal leaves
// no component for the teacher's otlp/grpc exporter branch to serve.
package otelsim

import (
	"context"
	"fmt"
	"os"

	"github.com/signalsfoundry/vtsim/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config governs how simulation tracing is initialised.
type Config struct {
	Enabled     bool
	ServiceName string
	PrettyPrint bool
}

// ConfigFromEnv pulls tracing configuration from VTSIM_TRACING_* environment
// variables, defaulting to disabled (matching the engine's trace-off
// default, spec.md §4.5's `new({trace: bool})`).
func ConfigFromEnv() Config {
	return Config{
		Enabled:     os.Getenv("VTSIM_TRACING_ENABLED") == "true",
		ServiceName: envOrDefault("VTSIM_TRACING_SERVICE_NAME", "vtsim"),
		PrettyPrint: os.Getenv("VTSIM_TRACING_PRETTY") != "false",
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Init wires a tracer provider and stdout exporter based on cfg, returning
// the tracer to bind to vclock.WithTracer and a shutdown function to flush
// spans at simulation teardown.
func Init(ctx context.Context, cfg Config, log logging.Logger) (trace.Tracer, func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}

	if !cfg.Enabled {
		tp := trace.NewNoopTracerProvider()
		otel.SetTracerProvider(tp)
		return tp.Tracer("vtsim"), func(context.Context) error { return nil }, nil
	}

	opts := []stdouttrace.Option{stdouttrace.WithWriter(os.Stdout), stdouttrace.WithoutTimestamps()}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exp, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("otelsim: create stdout exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "vtsim"),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("otelsim: create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	log.Info(ctx, "simulation tracing enabled",
		logging.String("service_name", cfg.ServiceName),
		logging.String("exporter", "stdout"),
	)

	return tp.Tracer("vtsim"), tp.Shutdown, nil
}
