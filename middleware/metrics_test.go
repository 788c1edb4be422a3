package middleware_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/assaka/daino-sub010/execution"
	"github.com/assaka/daino-sub010/job"
	mw "github.com/assaka/daino-sub010/middleware"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func stringAttrs(set attribute.Set) map[string]string {
	out := make(map[string]string)
	for _, kv := range set.ToSlice() {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func newMeteredChain() (*sdkmetric.ManualReader, mw.Middleware) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, mw.MetricsWithMeter(mp.Meter("test"))
}

func TestMetrics_AttemptsByOutcome(t *testing.T) {
	reader, m := newMeteredChain()
	j := newTestJob()
	ctx := mw.WithBackend(context.Background(), execution.BackendPoller)

	results := []error{
		nil,
		nil,
		errors.New("smtp 451"),
		job.Permanent(errors.New("mailbox does not exist")),
		fmt.Errorf("send: %w", context.DeadlineExceeded),
	}
	for _, res := range results {
		_ = m(ctx, j, func(context.Context) error { return res })
	}

	metric := findMetric(collect(t, reader), "dispatch.job.attempts")
	if metric == nil {
		t.Fatal("dispatch.job.attempts not recorded")
	}
	sum, ok := metric.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("data = %T, want Sum[int64]", metric.Data)
	}

	got := map[string]int64{}
	for _, dp := range sum.DataPoints {
		attrs := stringAttrs(dp.Attributes)
		if attrs["backend"] != "poller" {
			t.Errorf("backend = %q, want poller", attrs["backend"])
		}
		got[attrs["outcome"]] += dp.Value
	}
	want := map[string]int64{
		mw.OutcomeSucceeded: 2,
		mw.OutcomeFailed:    1,
		mw.OutcomePermanent: 1,
		mw.OutcomeTimeout:   1,
	}
	for outcome, n := range want {
		if got[outcome] != n {
			t.Errorf("attempts[%s] = %d, want %d", outcome, got[outcome], n)
		}
	}
}

func TestMetrics_DurationAttributes(t *testing.T) {
	reader, m := newMeteredChain()
	j := newTestJob()

	_ = m(mw.WithBackend(context.Background(), execution.BackendBroker), j, func(context.Context) error { return nil })

	metric := findMetric(collect(t, reader), "dispatch.job.attempt.duration")
	if metric == nil {
		t.Fatal("dispatch.job.attempt.duration not recorded")
	}
	hist, ok := metric.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("data = %+v", metric.Data)
	}
	if hist.DataPoints[0].Count != 1 {
		t.Errorf("count = %d, want 1", hist.DataPoints[0].Count)
	}

	attrs := stringAttrs(hist.DataPoints[0].Attributes)
	want := map[string]string{
		"job_type": "email:notify",
		"priority": "high",
		"store_id": "store-123",
		"backend":  "broker",
		"outcome":  "succeeded",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attribute %s = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestMetrics_UnscopedJobOmitsStoreID(t *testing.T) {
	reader, m := newMeteredChain()
	j := newTestJob()
	j.StoreID = ""

	_ = m(context.Background(), j, func(context.Context) error { return nil })

	metric := findMetric(collect(t, reader), "dispatch.job.attempts")
	sum := metric.Data.(metricdata.Sum[int64])
	if _, ok := stringAttrs(sum.DataPoints[0].Attributes)["store_id"]; ok {
		t.Error("store_id attribute should be absent for unscoped jobs")
	}
}

func TestMetrics_DefaultNoopSafe(t *testing.T) {
	called := false
	err := mw.Metrics()(context.Background(), newTestJob(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("err = %v, called = %v", err, called)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, mw.OutcomeSucceeded},
		{errors.New("boom"), mw.OutcomeFailed},
		{fmt.Errorf("row 3: %w", job.Permanent(errors.New("bad sku"))), mw.OutcomePermanent},
		{context.DeadlineExceeded, mw.OutcomeTimeout},
	}
	for _, tt := range tests {
		if got := mw.Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
