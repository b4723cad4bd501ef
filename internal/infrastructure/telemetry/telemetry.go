// Package telemetry wires OpenTelemetry metrics for the command centre.
//
// Metrics are off by default and cost nothing when off: a no-op meter
// provider is installed. When enabled, instruments are exported to stdout
// on a periodic reader.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const instrumentationScope = "github.com/alem-hub/command-centre"

// Options configures Setup.
type Options struct {
	ServiceName string
	Version     string
	Enabled     bool
	Interval    time.Duration
}

// Setup installs the global meter provider and returns its shutdown func.
func Setup(ctx context.Context, opts Options) (func(context.Context) error, error) {
	if !opts.Enabled {
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(opts.ServiceName),
			semconv.ServiceVersionKey.String(opts.Version),
		),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	exp, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

// Meter returns the command centre meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(instrumentationScope)
}

// ══════════════════════════════════════════════════════════════════════════════
// INSTRUMENTS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics holds the command centre instruments. A nil *Metrics records nothing.
type Metrics struct {
	gateEvaluations  metric.Int64Counter
	stateTransitions metric.Int64Counter
	pauseTriggers    metric.Int64Counter
	jobDuration      metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	gates, err := meter.Int64Counter("commandcentre.gate.evaluations",
		metric.WithDescription("Gate evaluations recorded, by gate and result"))
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("commandcentre.state.transitions",
		metric.WithDescription("Committed lifecycle transitions, by from and to state"))
	if err != nil {
		return nil, err
	}
	pauses, err := meter.Int64Counter("commandcentre.pause.triggers",
		metric.WithDescription("Automatic pauses, by trigger"))
	if err != nil {
		return nil, err
	}
	jobs, err := meter.Float64Histogram("commandcentre.job.duration",
		metric.WithDescription("Scheduled job duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		gateEvaluations:  gates,
		stateTransitions: transitions,
		pauseTriggers:    pauses,
		jobDuration:      jobs,
	}, nil
}

// NopMetrics returns instruments backed by a no-op provider.
func NopMetrics() *Metrics {
	m, _ := NewMetrics(metricnoop.NewMeterProvider().Meter(instrumentationScope))
	return m
}

// GateEvaluated counts one recorded evaluation.
func (m *Metrics) GateEvaluated(ctx context.Context, gateType, result string) {
	if m == nil {
		return
	}
	m.gateEvaluations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gate", gateType),
		attribute.String("result", result),
	))
}

// StateTransitioned counts one committed transition.
func (m *Metrics) StateTransitioned(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.stateTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// PauseTriggered counts one automatic pause.
func (m *Metrics) PauseTriggered(ctx context.Context, trigger string) {
	if m == nil {
		return
	}
	m.pauseTriggers.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}

// JobFinished records how long a job ran and whether it failed.
func (m *Metrics) JobFinished(ctx context.Context, job string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.jobDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("job", job),
		attribute.Bool("error", err != nil),
	))
}
