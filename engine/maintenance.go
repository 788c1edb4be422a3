package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/job"
)

const (
	// CleanupJobType is the handler registered by RegisterMaintenance.
	CleanupJobType = "dispatch:cleanup"
	// CleanupCronName is the cron definition RegisterMaintenance creates.
	CleanupCronName = "dispatch-cleanup"
)

// CleanupPayload configures one cleanup run. A zero Retention falls back
// to Config.Retention.
type CleanupPayload struct {
	Retention string `json:"retention,omitempty"`
}

// CleanupResult reports what one cleanup run removed.
type CleanupResult struct {
	Before           time.Time `json:"before"`
	JobsPurged       int64     `json:"jobs_purged"`
	ExecutionsPurged int64     `json:"executions_purged"`
}

// RegisterMaintenance registers the cleanup handler and, unless it already
// exists, a low-priority cron definition running it on schedule. Cleanup
// deletes terminal jobs and execution records older than retention.
func (eng *Engine) RegisterMaintenance(ctx context.Context, schedule string, retention time.Duration) error {
	Register(eng, job.NewDefinition(CleanupJobType, eng.cleanup,
		job.WithPriority(job.PriorityLow),
		job.WithMaxRetries(1),
	))

	payload := []byte("{}")
	if retention > 0 {
		payload = fmt.Appendf(nil, `{"retention":%q}`, retention.String())
	}
	_, err := eng.CreateCron(ctx, CronSpec{
		Name:          CleanupCronName,
		Expression:    schedule,
		JobType:       CleanupJobType,
		Configuration: payload,
		Priority:      job.PriorityLow,
		MaxRetries:    1,
	})
	if errors.Is(err, dispatch.ErrDuplicateCron) {
		return nil
	}
	return err
}

func (eng *Engine) cleanup(ctx context.Context, in CleanupPayload) (CleanupResult, error) {
	retention := eng.config.Retention
	if in.Retention != "" {
		d, err := time.ParseDuration(in.Retention)
		if err != nil {
			return CleanupResult{}, job.Permanent(fmt.Errorf("parse retention: %w", err))
		}
		retention = d
	}
	if retention <= 0 {
		return CleanupResult{}, job.Permanent(errors.New("cleanup retention must be positive"))
	}

	out := CleanupResult{Before: time.Now().UTC().Add(-retention)}

	var err error
	if out.JobsPurged, err = eng.jobStore.PurgeJobs(ctx, out.Before); err != nil {
		return out, fmt.Errorf("purge jobs: %w", err)
	}
	if out.ExecutionsPurged, err = eng.recorder.Purge(ctx, out.Before); err != nil {
		return out, fmt.Errorf("purge executions: %w", err)
	}

	eng.logger.Info("cleanup finished",
		slog.Time("before", out.Before),
		slog.Int64("jobs_purged", out.JobsPurged),
		slog.Int64("executions_purged", out.ExecutionsPurged),
	)
	return out, nil
}
