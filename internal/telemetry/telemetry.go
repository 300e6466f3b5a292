// Package telemetry sets up the OpenTelemetry tracer used to span the
// pipeline's setup/execute/success/failure stages, grounded on the teacher's
// InitTracer pattern: conditional on OTEL_EXPORTER_OTLP_ENDPOINT, falling
// back to a noop tracer otherwise so the CLI never blocks on telemetry.
package telemetry

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// tracer is the package-level tracer used by every instrumented stage.
// Defaults to noop so library consumers can call pipeline.New without Init.
var tracer trace.Tracer = noop.NewTracerProvider().Tracer("sisifo")

// Tracer returns the current tracer.
func Tracer() trace.Tracer { return tracer }

// Init sets up the OpenTelemetry TracerProvider from
// OTEL_EXPORTER_OTLP_ENDPOINT. Absent that variable, or on exporter setup
// failure, the noop tracer is kept. Returns a shutdown func that flushes and
// closes the exporter; always safe to call even when telemetry was never
// actually enabled.
func Init(serviceName, version string) func(context.Context) error {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return func(context.Context) error { return nil }
	}

	exp, err := otlptracehttp.New(context.Background())
	if err != nil {
		return func(context.Context) error { return nil }
	}

	res, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(serviceName)

	return func(ctx context.Context) error {
		return tp.Shutdown(ctx)
	}
}

// StartStage starts a span named "pipeline.<stage>" tagged with task_id, for
// the pipeline's setup/execute/success/failure stages.
func StartStage(ctx context.Context, stage, taskID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pipeline."+stage, trace.WithAttributes(
		attribute.String("task_id", taskID),
	))
}
