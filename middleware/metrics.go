package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/assaka/daino-sub010/job"
)

const meterName = "github.com/assaka/daino-sub010/middleware"

// Metrics records attempt metrics on the global MeterProvider.
//
//   - dispatch.job.attempt.duration (histogram, seconds)
//   - dispatch.job.attempts (counter)
//
// Both carry job_type, priority, backend and outcome, plus store_id when
// the job is tenant scoped.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter is Metrics with an explicit meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Instrument errors yield noop instruments.
	duration, _ := meter.Float64Histogram(
		"dispatch.job.attempt.duration",
		metric.WithDescription("Wall-clock time of one handler attempt"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Counter(
		"dispatch.job.attempts",
		metric.WithDescription("Handler attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		kv := []attribute.KeyValue{
			attribute.String("job_type", j.Type),
			attribute.String("priority", string(j.Priority)),
			attribute.String("backend", string(BackendFrom(ctx))),
			attribute.String("outcome", Outcome(err)),
		}
		if j.StoreID != "" {
			kv = append(kv, attribute.String("store_id", j.StoreID))
		}
		attrs := metric.WithAttributes(kv...)

		duration.Record(ctx, elapsed, attrs)
		attempts.Add(ctx, 1, attrs)
		return err
	}
}
