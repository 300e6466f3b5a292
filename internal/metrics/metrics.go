// Package metrics defines the OpenTelemetry metric instruments emitted by
// the queue runner and pipeline: queue depth, claim latency, pipeline stage
// duration, and agent-phase duration. Metrics are pushed via
// otlpmetrichttp — this process never exposes a listening /metrics
// endpoint, matching the Non-goal of no network-accessible control API.
package metrics

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func stageAttr(stage string) attribute.KeyValue { return attribute.String("stage", stage) }
func phaseAttr(phase string) attribute.KeyValue { return attribute.String("phase", phase) }

// Instruments bundles every instrument this codebase records against.
type Instruments struct {
	QueueDepth           metric.Int64Gauge
	ClaimLatency         metric.Float64Histogram
	PipelineStageSeconds metric.Float64Histogram
	AgentPhaseSeconds    metric.Float64Histogram
}

var current = noopInstruments()

// Current returns the process-wide instrument bundle, noop until Init runs.
func Current() *Instruments { return current }

func noopInstruments() *Instruments {
	meter := otel.GetMeterProvider().Meter("sisifo")
	return mustBuild(meter)
}

func mustBuild(meter metric.Meter) *Instruments {
	depth, _ := meter.Int64Gauge("sisifo.queue.depth",
		metric.WithDescription("number of todo records currently queued"))
	claim, _ := meter.Float64Histogram("sisifo.queue.claim_latency_seconds",
		metric.WithDescription("time between a record becoming todo-visible and being claimed"),
		metric.WithUnit("s"))
	stage, _ := meter.Float64Histogram("sisifo.pipeline.stage_duration_seconds",
		metric.WithDescription("duration of one pipeline stage (setup/execute/success/failure)"),
		metric.WithUnit("s"))
	agentPhase, _ := meter.Float64Histogram("sisifo.agent.phase_duration_seconds",
		metric.WithDescription("duration of one agent phase (plan/build)"),
		metric.WithUnit("s"))
	return &Instruments{
		QueueDepth:           depth,
		ClaimLatency:         claim,
		PipelineStageSeconds: stage,
		AgentPhaseSeconds:    agentPhase,
	}
}

// Init sets up the OpenTelemetry MeterProvider from
// OTEL_EXPORTER_OTLP_ENDPOINT and rebuilds Current()'s instruments against
// it. Absent that variable, or on exporter setup failure, instruments stay
// bound to the global (noop) provider. Returns a shutdown func that flushes
// and closes the exporter.
func Init(serviceName string) func(context.Context) error {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return func(context.Context) error { return nil }
	}

	exp, err := otlpmetrichttp.New(context.Background())
	if err != nil {
		return func(context.Context) error { return nil }
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(mp)
	current = mustBuild(mp.Meter(serviceName))

	return func(ctx context.Context) error {
		return mp.Shutdown(ctx)
	}
}

// RecordStageDuration records one pipeline stage's elapsed duration.
func (i *Instruments) RecordStageDuration(ctx context.Context, stage string, d time.Duration) {
	i.PipelineStageSeconds.Record(ctx, d.Seconds(), metric.WithAttributes(stageAttr(stage)))
}

// RecordAgentPhaseDuration records one agent phase's elapsed duration.
func (i *Instruments) RecordAgentPhaseDuration(ctx context.Context, phase string, d time.Duration) {
	i.AgentPhaseSeconds.Record(ctx, d.Seconds(), metric.WithAttributes(phaseAttr(phase)))
}

// RecordClaimLatency records the delay between a record first becoming
// claimable and the moment it was actually claimed.
func (i *Instruments) RecordClaimLatency(ctx context.Context, d time.Duration) {
	i.ClaimLatency.Record(ctx, d.Seconds())
}

// RecordQueueDepth records a point-in-time sample of how many records are
// currently in todo.
func (i *Instruments) RecordQueueDepth(ctx context.Context, depth int) {
	i.QueueDepth.Record(ctx, int64(depth))
}
