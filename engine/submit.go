package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/broker"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
	"github.com/assaka/daino-sub010/scope"
)

// Register registers a typed job definition with the engine.
func Register[T, R any](eng *Engine, def *job.Definition[T, R]) {
	job.RegisterDefinition(eng.registry, def)
}

// RegisterFunc registers a raw handler for jobType. opts are the defaults
// applied to jobs of this type submitted from this process.
func (eng *Engine) RegisterFunc(jobType string, h job.HandlerFunc, opts ...job.Option) {
	eng.registry.Register(jobType, h, opts...)
}

// Enqueue marshals payload to JSON and submits it.
func Enqueue[T any](ctx context.Context, eng *Engine, jobType string, payload T, opts ...job.Option) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job %q: %w", jobType, err)
	}
	return eng.Submit(ctx, jobType, data, opts...)
}

// SubmitDefinition submits payload under def's type. The definition does
// not have to be registered with eng.
func SubmitDefinition[T, R any](ctx context.Context, eng *Engine, def *job.Definition[T, R], payload T, opts ...job.Option) (*job.Job, error) {
	data, err := def.Encode(payload)
	if err != nil {
		return nil, err
	}
	return eng.Submit(ctx, def.Name, data, opts...)
}

// Submit persists a pending job and returns it. The job is always stored
// before anything else happens; when a broker is configured a reference is
// then published on a best-effort basis. A publish failure is logged and
// the poller picks the job up instead.
//
// Options registered with the job type are applied first, then opts. When
// no store ID is given the one on ctx (scope.WithStoreID) is used. Job
// types without a handler in this process are accepted.
func (eng *Engine) Submit(ctx context.Context, jobType string, payload []byte, opts ...job.Option) (*job.Job, error) {
	if jobType == "" {
		return nil, dispatch.ErrEmptyJobType
	}

	o := eng.registry.Options(jobType)
	for _, opt := range opts {
		opt(&o)
	}
	priority, err := job.ParsePriority(string(o.Priority))
	if err != nil {
		return nil, err
	}
	if o.StoreID == "" {
		o.StoreID = scope.Capture(ctx)
	}
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	now := time.Now().UTC()
	j := &job.Job{
		Entity:     dispatch.NewEntity(),
		ID:         id.NewJobID(),
		Type:       jobType,
		Payload:    payload,
		Status:     job.StatusPending,
		Priority:   priority,
		StoreID:    o.StoreID,
		CronID:     o.CronID,
		MaxRetries: o.MaxRetries,
		RunAt:      now,
		Timeout:    o.Timeout,
	}
	if !o.RunAt.IsZero() {
		j.RunAt = o.RunAt.UTC()
	}

	if err := eng.jobStore.InsertJob(ctx, j); err != nil {
		return nil, fmt.Errorf("dispatch: submit %s: %w", jobType, err)
	}
	eng.extensions.EmitJobSubmitted(ctx, j)

	// A delayed job is left to the poller; a notification now would only be
	// acknowledged and dropped.
	if !j.RunAt.After(now) {
		eng.publish(ctx, j)
	}

	eng.logger.Debug("job submitted",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.String("priority", string(j.Priority)),
		slog.String("store_id", j.StoreID),
	)
	return j, nil
}

func (eng *Engine) publish(ctx context.Context, j *job.Job) {
	if eng.broker == nil {
		return
	}
	if err := eng.broker.Publish(ctx, broker.Ref{JobID: j.ID, Type: j.Type}); err != nil {
		eng.logger.Warn("broker publish failed, job left to the poller",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("error", err.Error()),
		)
	}
}

// GetJob returns the full job record.
func (eng *Engine) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return eng.jobStore.GetJob(ctx, jobID)
}

// GetStatus returns the status, result, error message and retry count of
// a job.
func (eng *Engine) GetStatus(ctx context.Context, jobID id.JobID) (*job.StatusReport, error) {
	j, err := eng.jobStore.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return j.Report(), nil
}

// Cancel stops a job that has not started. A claimed or running job is
// left alone and reported as already running; handlers are never
// interrupted.
func (eng *Engine) Cancel(ctx context.Context, jobID id.JobID) (job.CancelResult, error) {
	j, err := eng.jobStore.CancelJob(ctx, jobID)
	switch {
	case err == nil:
		eng.extensions.EmitJobCancelled(ctx, j)
		eng.logger.Info("job cancelled",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
		)
		return job.CancelCancelled, nil
	case errors.Is(err, dispatch.ErrJobNotPending):
		if j.Status.IsTerminal() {
			return job.CancelAlreadyFinished, nil
		}
		return job.CancelAlreadyRunning, nil
	default:
		return "", err
	}
}

// Retry resets a failed job to pending with a fresh retry budget. Jobs in
// any other status yield dispatch.ErrInvalidState.
func (eng *Engine) Retry(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := eng.jobStore.RetryJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	eng.publish(ctx, j)
	eng.logger.Info("job retried manually",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
	)
	return j, nil
}

// ListJobs returns jobs matching opts, newest first.
func (eng *Engine) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return eng.jobStore.ListJobs(ctx, opts)
}

// CountJobs returns the number of jobs matching opts.
func (eng *Engine) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	return eng.jobStore.CountJobs(ctx, opts)
}

// JobCounts returns the number of jobs in each status, optionally scoped
// to one store.
func (eng *Engine) JobCounts(ctx context.Context, storeID string) (map[job.Status]int64, error) {
	statuses := []job.Status{
		job.StatusPending, job.StatusClaimed, job.StatusRunning,
		job.StatusCompleted, job.StatusFailed, job.StatusCancelled,
	}
	out := make(map[job.Status]int64, len(statuses))
	for _, s := range statuses {
		n, err := eng.jobStore.CountJobs(ctx, job.CountOpts{Status: s, StoreID: storeID})
		if err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, nil
}
