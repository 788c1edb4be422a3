package job

import (
	"context"
	"time"

	"github.com/assaka/daino-sub010/id"
)

// ClaimOpts controls a batch claim.
type ClaimOpts struct {
	// Limit is the maximum number of jobs to claim.
	Limit int
	// WorkerID is recorded as the claiming process.
	WorkerID id.WorkerID
	// Types restricts the claim to these job types. Empty means any type.
	Types []string
}

// ListOpts filters and paginates job listings. Zero values match all.
type ListOpts struct {
	Status  Status
	Type    string
	StoreID string
	CronID  id.CronID
	Limit   int
	Offset  int
}

// CountOpts filters job counts.
type CountOpts struct {
	Status  Status
	Type    string
	StoreID string
}

// Store is the persistence contract for jobs.
//
// Every claim stamps the row with a fresh claim_id, and every write made by
// an executor is guarded by it: the write applies only while the row is
// claimed or running under that claim_id. Otherwise the store returns
// dispatch.ErrClaimLost and changes nothing. A claim revoked by the
// sweeper therefore stays revoked even when the same worker claims the job
// again.
type Store interface {
	// InsertJob persists a new pending job.
	InsertJob(ctx context.Context, j *Job) error

	// ClaimJobs atomically claims up to opts.Limit pending jobs whose RunAt
	// has passed, ordered by priority rank, then created_at, then id. The
	// claimed rows are flipped to claimed with started_at, worker_id and a
	// new claim_id set and returned in that order. Concurrent callers never
	// receive the same job.
	ClaimJobs(ctx context.Context, opts ClaimOpts) ([]*Job, error)

	// ClaimJob claims a single job by ID if it is still pending and its
	// RunAt has passed. It returns dispatch.ErrClaimLost otherwise.
	ClaimJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) (*Job, error)

	// MarkRunning moves a claimed job to running.
	MarkRunning(ctx context.Context, jobID id.JobID, claim id.ClaimID) error

	// FinishJob writes back the outcome of an attempt: status, result,
	// error_message, retry_count, run_at, worker_id, claim_id, started_at
	// and completed_at are taken from j. claim is the claim that guards
	// the write.
	FinishJob(ctx context.Context, j *Job, claim id.ClaimID) error

	// ReleaseJobs returns claimed jobs to pending without consuming retry
	// budget. Each job is released only if its row is still claimed under
	// the job's ClaimID; jobs already running are left alone.
	ReleaseJobs(ctx context.Context, jobs []*Job, runAt time.Time) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// CancelJob atomically moves a pending job to cancelled. For any other
	// status it returns the current job and dispatch.ErrJobNotPending.
	CancelJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// RetryJob resets a failed job to pending with a fresh retry budget.
	// Other statuses yield dispatch.ErrInvalidState.
	RetryJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// ListJobs returns jobs matching opts, newest first.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching opts.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// ListStaleJobs returns claimed or running jobs whose started_at is
	// before cutoff.
	ListStaleJobs(ctx context.Context, cutoff time.Time) ([]*Job, error)

	// PurgeJobs deletes terminal jobs last updated before cutoff and
	// returns how many were removed.
	PurgeJobs(ctx context.Context, cutoff time.Time) (int64, error)
}
