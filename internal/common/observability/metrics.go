package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records task-run metrics through the OpenTelemetry meter API,
// exported on the Prometheus default registry.
type Observability struct {
	meterProvider *metric.MeterProvider
	runCounter    otelmetric.Int64Counter
	runDuration   otelmetric.Float64Histogram
}

func New(serviceName string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	o, err := newWithMeter(provider.Meter(serviceName))
	if err != nil {
		return nil, err
	}
	o.meterProvider = provider
	return o, nil
}

// NewNoop returns an Observability that records nothing.
func NewNoop() *Observability {
	o, _ := newWithMeter(noop.NewMeterProvider().Meter("noop"))
	return o
}

func newWithMeter(meter otelmetric.Meter) (*Observability, error) {
	runCounter, err := meter.Int64Counter(
		"task_runs.processed",
		otelmetric.WithDescription("Number of task run executions by final outcome"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"task_runs.duration",
		otelmetric.WithDescription("Task run execution duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Observability{runCounter: runCounter, runDuration: runDuration}, nil
}

func (o *Observability) RecordRun(ctx context.Context, taskKey, outcome string, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("task_key", taskKey),
		attribute.String("outcome", outcome),
	)
	o.runCounter.Add(ctx, 1, attrs)
	o.runDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.meterProvider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return o.meterProvider.Shutdown(ctx)
}
