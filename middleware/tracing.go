package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/assaka/daino-sub010/job"
)

const tracerName = "github.com/assaka/daino-sub010/middleware"

// Tracing wraps each attempt in a span named "dispatch.job <type>" from
// the global TracerProvider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer is Tracing with an explicit tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		attrs := []attribute.KeyValue{
			attribute.String("dispatch.job.id", j.ID.String()),
			attribute.String("dispatch.job.type", j.Type),
			attribute.String("dispatch.job.priority", string(j.Priority)),
			attribute.Int("dispatch.job.attempt", j.Attempt()),
			attribute.Int("dispatch.job.max_retries", j.MaxRetries),
			attribute.String("dispatch.backend", string(BackendFrom(ctx))),
		}
		if j.StoreID != "" {
			attrs = append(attrs, attribute.String("dispatch.store_id", j.StoreID))
		}
		if !j.CronID.IsNil() {
			attrs = append(attrs, attribute.String("dispatch.cron.id", j.CronID.String()))
		}

		ctx, span := tracer.Start(ctx, "dispatch.job "+j.Type,
			trace.WithAttributes(attrs...),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		err := next(ctx)
		span.SetAttributes(attribute.String("dispatch.job.outcome", Outcome(err)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}
