package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/assaka/daino-sub010/cron"
	"github.com/assaka/daino-sub010/ext"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
)

var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobSubmitted = (*MetricsExtension)(nil)
	_ ext.JobCompleted = (*MetricsExtension)(nil)
	_ ext.JobFailed    = (*MetricsExtension)(nil)
	_ ext.JobRetrying  = (*MetricsExtension)(nil)
	_ ext.JobCancelled = (*MetricsExtension)(nil)
	_ ext.JobRecovered = (*MetricsExtension)(nil)
	_ ext.CronFired    = (*MetricsExtension)(nil)
)

const meterName = "github.com/assaka/daino-sub010/observability"

// MetricsExtension records system-wide lifecycle counters through an
// OpenTelemetry meter. Register it as an extension to track submission
// rates, outcomes, retries, recoveries and cron fires. Counters carry a
// job_type attribute.
type MetricsExtension struct {
	JobSubmitted metric.Int64Counter
	JobCompleted metric.Int64Counter
	JobFailed    metric.Int64Counter
	JobRetried   metric.Int64Counter
	JobCancelled metric.Int64Counter
	JobRecovered metric.Int64Counter
	CronFired    metric.Int64Counter

	// JobLatency is submit-to-finish time in seconds for completed jobs.
	JobLatency metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension on meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	latency, _ := meter.Float64Histogram("dispatch.job.latency",
		metric.WithDescription("Time from submission to completion"),
		metric.WithUnit("s"),
	)
	return &MetricsExtension{
		JobSubmitted: counter("dispatch.job.submitted", "Jobs persisted"),
		JobCompleted: counter("dispatch.job.completed", "Jobs completed successfully"),
		JobFailed:    counter("dispatch.job.failed", "Jobs failed terminally"),
		JobRetried:   counter("dispatch.job.retried", "Failed attempts rescheduled"),
		JobCancelled: counter("dispatch.job.cancelled", "Pending jobs cancelled"),
		JobRecovered: counter("dispatch.job.recovered", "Abandoned claims recovered"),
		CronFired:    counter("dispatch.cron.fired", "Cron materializations"),
		JobLatency:   latency,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func typeAttr(j *job.Job) metric.AddOption {
	return metric.WithAttributes(attribute.String("job_type", j.Type))
}

// OnJobSubmitted implements ext.JobSubmitted.
func (m *MetricsExtension) OnJobSubmitted(ctx context.Context, j *job.Job) error {
	m.JobSubmitted.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.JobCompleted.Add(ctx, 1, typeAttr(j))
	if l := j.Latency(); l > 0 {
		m.JobLatency.Record(ctx, l.Seconds(), metric.WithAttributes(attribute.String("job_type", j.Type)))
	}
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.JobFailed.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.JobRetried.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobCancelled implements ext.JobCancelled.
func (m *MetricsExtension) OnJobCancelled(ctx context.Context, j *job.Job) error {
	m.JobCancelled.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobRecovered implements ext.JobRecovered.
func (m *MetricsExtension) OnJobRecovered(ctx context.Context, j *job.Job) error {
	m.JobRecovered.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnCronFired implements ext.CronFired.
func (m *MetricsExtension) OnCronFired(ctx context.Context, e *cron.Entry, _ id.JobID) error {
	m.CronFired.Add(ctx, 1, metric.WithAttributes(attribute.String("cron_name", e.Name)))
	return nil
}
