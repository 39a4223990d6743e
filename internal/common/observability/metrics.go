package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability owns the OTel meter provider. Instruments are exported through
// the default Prometheus registry, so they show up on /metrics next to the
// promauto collectors.
type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	dispatchCount otelmetric.Int64Counter
	jobDuration   otelmetric.Float64Histogram
}

func New(serviceName string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return &Observability{}, err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	dispatchCount, err := meter.Int64Counter(
		"notifications.dispatched",
		otelmetric.WithDescription("Dispatcher channel outcomes"),
	)
	if err != nil {
		return nil, err
	}

	jobDuration, err := meter.Float64Histogram(
		"scheduler.job.duration",
		otelmetric.WithDescription("Periodic job duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		dispatchCount: dispatchCount,
		jobDuration:   jobDuration,
	}, nil
}

// RecordDispatch counts one channel outcome of a dispatch.
func (o *Observability) RecordDispatch(ctx context.Context, channel string, success bool) {
	if o == nil || o.dispatchCount == nil {
		return
	}
	o.dispatchCount.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("channel", channel),
		attribute.Bool("success", success),
	))
}

// RecordJobDuration records how long one periodic job run took.
func (o *Observability) RecordJobDuration(ctx context.Context, job string, duration time.Duration, status string) {
	if o == nil || o.jobDuration == nil {
		return
	}
	o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("job", job),
		attribute.String("status", status),
	))
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.meterProvider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return o.meterProvider.Shutdown(ctx)
}
