package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/assaka/daino-sub010/execution"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
	mw "github.com/assaka/daino-sub010/middleware"
)

func newTestJob() *job.Job {
	return &job.Job{
		ID:         id.NewJobID(),
		Type:       "email:notify",
		Priority:   job.PriorityHigh,
		RetryCount: 2,
		MaxRetries: 3,
		StoreID:    "store-123",
	}
}

func traced(t *testing.T, ctx context.Context, j *job.Job, h mw.Handler) (sdktrace.ReadOnlySpan, error) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	err := mw.TracingWithTracer(tp.Tracer("test"))(ctx, j, h)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	return spans[0], err
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[string]attribute.Value {
	out := make(map[string]attribute.Value)
	for _, kv := range s.Attributes() {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

func TestTracing_SpanDescribesAttempt(t *testing.T) {
	j := newTestJob()
	ctx := mw.WithBackend(context.Background(), execution.BackendBroker)

	span, err := traced(t, ctx, j, func(context.Context) error { return nil })
	if err != nil {
		t.Fatal(err)
	}

	if span.Name() != "dispatch.job email:notify" {
		t.Errorf("name = %q", span.Name())
	}
	if span.SpanKind() != trace.SpanKindConsumer {
		t.Errorf("kind = %v, want consumer", span.SpanKind())
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", span.Status().Code)
	}

	attrs := spanAttrs(span)
	strs := map[string]string{
		"dispatch.job.id":       j.ID.String(),
		"dispatch.job.type":     "email:notify",
		"dispatch.job.priority": "high",
		"dispatch.store_id":     "store-123",
		"dispatch.backend":      "broker",
		"dispatch.job.outcome":  "succeeded",
	}
	for k, want := range strs {
		if got := attrs[k].AsString(); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if got := attrs["dispatch.job.attempt"].AsInt64(); got != 3 {
		t.Errorf("attempt = %d, want 3", got)
	}
	if got := attrs["dispatch.job.max_retries"].AsInt64(); got != 3 {
		t.Errorf("max_retries = %d, want 3", got)
	}
	if _, ok := attrs["dispatch.cron.id"]; ok {
		t.Error("cron id attribute set for a job without a cron")
	}
}

func TestTracing_CronJobCarriesCronID(t *testing.T) {
	j := newTestJob()
	j.CronID = id.NewCronID()

	span, _ := traced(t, context.Background(), j, func(context.Context) error { return nil })
	if got := spanAttrs(span)["dispatch.cron.id"].AsString(); got != j.CronID.String() {
		t.Errorf("dispatch.cron.id = %q, want %q", got, j.CronID)
	}
}

func TestTracing_FailureMarksSpan(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome string
	}{
		{"transient", errors.New("smtp 451"), mw.OutcomeFailed},
		{"permanent", job.Permanent(errors.New("mailbox does not exist")), mw.OutcomePermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			span, err := traced(t, context.Background(), newTestJob(), func(context.Context) error { return tt.err })
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if span.Status().Code != codes.Error || span.Status().Description != tt.err.Error() {
				t.Errorf("status = %+v", span.Status())
			}
			if got := spanAttrs(span)["dispatch.job.outcome"].AsString(); got != tt.outcome {
				t.Errorf("outcome = %q, want %q", got, tt.outcome)
			}

			recorded := false
			for _, ev := range span.Events() {
				recorded = recorded || ev.Name == "exception"
			}
			if !recorded {
				t.Error("expected an exception event")
			}
		})
	}
}

func TestTracing_HandlerSeesSpan(t *testing.T) {
	var inner trace.SpanContext
	span, _ := traced(t, context.Background(), newTestJob(), func(ctx context.Context) error {
		inner = trace.SpanFromContext(ctx).SpanContext()
		return nil
	})
	if !inner.IsValid() || inner.SpanID() != span.SpanContext().SpanID() {
		t.Error("handler context does not carry the attempt span")
	}
}

func TestTracing_DefaultNoopSafe(t *testing.T) {
	called := false
	err := mw.Tracing()(context.Background(), newTestJob(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("err = %v, called = %v", err, called)
	}
}
