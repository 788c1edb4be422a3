package ext

import (
	"context"
	"time"

	"github.com/assaka/daino-sub010/cron"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
)

// Extension is implemented by everything passed to Registry.Register.
type Extension interface {
	Name() string
}

// Job hooks. Each receives the job as persisted at the time of the event.
type (
	// JobSubmitted fires once the job row exists.
	JobSubmitted interface {
		OnJobSubmitted(ctx context.Context, j *job.Job) error
	}

	// JobStarted fires when an executor wins the claim and begins an attempt.
	JobStarted interface {
		OnJobStarted(ctx context.Context, j *job.Job) error
	}

	// JobCompleted fires after the result has been stored.
	JobCompleted interface {
		OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
	}

	// JobFailed fires when retries are exhausted or the handler returned a
	// permanent error.
	JobFailed interface {
		OnJobFailed(ctx context.Context, j *job.Job, err error) error
	}

	// JobRetrying fires when a failed attempt goes back to pending.
	// attempt is the job's retry count including this failure.
	JobRetrying interface {
		OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error
	}

	// JobCancelled fires after a pending job is cancelled.
	JobCancelled interface {
		OnJobCancelled(ctx context.Context, j *job.Job) error
	}

	// JobRecovered fires when the sweeper releases an abandoned claim.
	JobRecovered interface {
		OnJobRecovered(ctx context.Context, j *job.Job) error
	}
)

// CronFired fires after a cron definition submitted its job.
type CronFired interface {
	OnCronFired(ctx context.Context, e *cron.Entry, jobID id.JobID) error
}

// Shutdown fires once while the engine stops.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
