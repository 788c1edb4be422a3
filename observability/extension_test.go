package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/cron"
	"github.com/assaka/daino-sub010/ext"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
	"github.com/assaka/daino-sub010/observability"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

func newTestJob() *job.Job {
	return &job.Job{ID: id.NewJobID(), Type: "email:notify"}
}

// counterValue sums every data point of the named counter.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is %T, want Sum[int64]", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("Name() = %q", e.Name())
	}
}

func TestMetricsExtension_Counters(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		metric string
		fire   func(e *observability.MetricsExtension) error
	}{
		{"submitted", "dispatch.job.submitted", func(e *observability.MetricsExtension) error {
			return e.OnJobSubmitted(ctx, newTestJob())
		}},
		{"completed", "dispatch.job.completed", func(e *observability.MetricsExtension) error {
			return e.OnJobCompleted(ctx, newTestJob(), 100*time.Millisecond)
		}},
		{"failed", "dispatch.job.failed", func(e *observability.MetricsExtension) error {
			return e.OnJobFailed(ctx, newTestJob(), errors.New("boom"))
		}},
		{"retried", "dispatch.job.retried", func(e *observability.MetricsExtension) error {
			return e.OnJobRetrying(ctx, newTestJob(), 1, time.Now())
		}},
		{"cancelled", "dispatch.job.cancelled", func(e *observability.MetricsExtension) error {
			return e.OnJobCancelled(ctx, newTestJob())
		}},
		{"recovered", "dispatch.job.recovered", func(e *observability.MetricsExtension) error {
			return e.OnJobRecovered(ctx, newTestJob())
		}},
		{"cron fired", "dispatch.cron.fired", func(e *observability.MetricsExtension) error {
			return e.OnCronFired(ctx, &cron.Entry{Name: "nightly"}, id.NewJobID())
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, reader := newTestExtension()
			if err := tt.fire(e); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := tt.fire(e); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := counterValue(t, reader, tt.metric); got != 2 {
				t.Errorf("%s = %d, want 2", tt.metric, got)
			}
		})
	}
}

func TestMetricsExtension_LatencyHistogram(t *testing.T) {
	e, reader := newTestExtension()

	created := time.Now().UTC().Add(-3 * time.Second)
	done := created.Add(2 * time.Second)
	j := newTestJob()
	j.Entity = dispatch.Entity{CreatedAt: created}
	j.CompletedAt = &done

	if err := e.OnJobCompleted(context.Background(), j, time.Second); err != nil {
		t.Fatal(err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "dispatch.job.latency" {
				continue
			}
			hist := m.Data.(metricdata.Histogram[float64])
			if len(hist.DataPoints) != 1 || hist.DataPoints[0].Sum != 2 {
				t.Errorf("latency data = %+v", hist.DataPoints)
			}
			return
		}
	}
	t.Fatal("dispatch.job.latency not recorded")
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e, reader := newTestExtension()
	r := ext.NewRegistry(slog.Default())
	r.Register(e)

	ctx := context.Background()
	for range 3 {
		r.EmitJobSubmitted(ctx, newTestJob())
	}
	r.EmitJobFailed(ctx, newTestJob(), errors.New("x"))

	if got := counterValue(t, reader, "dispatch.job.submitted"); got != 3 {
		t.Errorf("submitted = %d, want 3", got)
	}
	if got := counterValue(t, reader, "dispatch.job.failed"); got != 1 {
		t.Errorf("failed = %d, want 1", got)
	}
}
