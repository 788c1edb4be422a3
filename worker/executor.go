package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/backoff"
	"github.com/assaka/daino-sub010/execution"
	"github.com/assaka/daino-sub010/ext"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
	"github.com/assaka/daino-sub010/middleware"
)

// QueueManager throttles execution per job type and store. queue.Manager
// satisfies it.
type QueueManager interface {
	Acquire(jobType, storeID string) bool
	Release(jobType, storeID string)
}

// CronResults receives the outcome of cron-originated jobs. cron.Store
// satisfies it.
type CronResults interface {
	RecordCronResult(ctx context.Context, cronID id.CronID, succeeded bool, errMsg string) error
}

// Recorder appends execution history. *execution.Recorder satisfies it.
type Recorder interface {
	Record(ctx context.Context, rec *execution.Record)
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMiddleware sets the middleware chain wrapped around every handler.
// The first middleware is the outermost.
func WithMiddleware(mws ...middleware.Middleware) ExecutorOption {
	return func(e *Executor) { e.mw = middleware.Chain(mws...) }
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(b backoff.Strategy) ExecutorOption {
	return func(e *Executor) { e.backoff = b }
}

// WithExtensions sets the hook registry.
func WithExtensions(x *ext.Registry) ExecutorOption {
	return func(e *Executor) { e.extensions = x }
}

// WithRecorder sets where execution history is appended.
func WithRecorder(r Recorder) ExecutorOption {
	return func(e *Executor) { e.recorder = r }
}

// WithCronResults enables success and failure bookkeeping on the cron
// definition that produced a job.
func WithCronResults(c CronResults) ExecutorOption {
	return func(e *Executor) { e.crons = c }
}

// WithQueueManager enables throttling. A job that cannot acquire a slot is
// released to pending and becomes claimable again after delay.
func WithQueueManager(q QueueManager, delay time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.queues = q
		e.throttleDelay = delay
	}
}

// Executor runs one claimed job and persists its outcome.
type Executor struct {
	registry   *job.Registry
	store      job.Store
	logger     *slog.Logger
	extensions *ext.Registry
	recorder   Recorder
	crons      CronResults
	backoff    backoff.Strategy
	mw         middleware.Middleware

	queues        QueueManager
	throttleDelay time.Duration
}

// NewExecutor creates an Executor for handlers in registry.
func NewExecutor(registry *job.Registry, store job.Store, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		registry:      registry,
		store:         store,
		logger:        logger,
		backoff:       backoff.DefaultStrategy(),
		mw:            middleware.Chain(),
		throttleDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.extensions == nil {
		e.extensions = ext.NewRegistry(logger)
	}
	return e
}

// Execute runs j, which must be held under j.ClaimID, and writes back
// the outcome. Handler failures are recorded on the job, not returned; the
// returned error means the outcome could not be persisted, and wraps
// dispatch.ErrClaimLost when the claim was revoked while the handler ran.
func (e *Executor) Execute(ctx context.Context, j *job.Job, backend execution.Backend) error {
	holder := j.ClaimID

	if e.queues != nil {
		if !e.queues.Acquire(j.Type, j.StoreID) {
			return e.throttle(ctx, j)
		}
		defer e.queues.Release(j.Type, j.StoreID)
	}

	if err := e.store.MarkRunning(ctx, j.ID, holder); err != nil {
		return fmt.Errorf("mark running %s: %w", j.ID, err)
	}
	j.Status = job.StatusRunning
	e.extensions.EmitJobStarted(ctx, j)

	attempt := j.Attempt()
	start := time.Now()
	result, err := e.run(middleware.WithBackend(ctx, backend), j)
	elapsed := time.Since(start)

	// The outcome is persisted even if ctx was cancelled during shutdown.
	wctx := context.WithoutCancel(ctx)
	if err != nil {
		return e.handleFailure(wctx, j, holder, err, attempt, elapsed, backend)
	}
	return e.handleSuccess(wctx, j, holder, result, attempt, elapsed, backend)
}

func (e *Executor) run(ctx context.Context, j *job.Job) ([]byte, error) {
	handler, ok := e.registry.Get(j.Type)
	if !ok {
		return nil, job.Permanent(fmt.Errorf("no handler registered for job type %q", j.Type))
	}

	var result []byte
	err := e.mw(ctx, j, func(ctx context.Context) error {
		out, herr := handler(ctx, j)
		result = out
		return herr
	})
	if err != nil {
		return nil, err
	}
	if len(result) > 0 && !json.Valid(result) {
		// Non-JSON output is kept as a JSON string.
		result, _ = json.Marshal(string(result))
	}
	return result, nil
}

func (e *Executor) handleSuccess(
	ctx context.Context, j *job.Job, holder id.ClaimID,
	result []byte, attempt int, elapsed time.Duration, backend execution.Backend,
) error {
	now := time.Now().UTC()
	j.Status = job.StatusCompleted
	j.Result = result
	j.CompletedAt = &now

	if err := e.finish(ctx, j, holder); err != nil {
		return err
	}

	e.record(ctx, j, execution.StatusSucceeded, "", attempt, elapsed, backend)
	e.extensions.EmitJobCompleted(ctx, j, elapsed)
	e.cronResult(ctx, j, true, "")
	return nil
}

func (e *Executor) handleFailure(
	ctx context.Context, j *job.Job, holder id.ClaimID,
	handlerErr error, attempt int, elapsed time.Duration, backend execution.Backend,
) error {
	now := time.Now().UTC()
	j.ErrorMessage = handlerErr.Error()

	if job.IsPermanent(handlerErr) || j.RetryCount >= j.MaxRetries {
		j.Status = job.StatusFailed
		j.CompletedAt = &now
		if err := e.finish(ctx, j, holder); err != nil {
			return err
		}

		e.record(ctx, j, execution.StatusFailed, j.ErrorMessage, attempt, elapsed, backend)
		e.extensions.EmitJobFailed(ctx, j, handlerErr)
		e.cronResult(ctx, j, false, j.ErrorMessage)

		e.logger.Warn("job failed",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.Int("attempt", attempt),
			slog.Bool("permanent", job.IsPermanent(handlerErr)),
			slog.String("error", j.ErrorMessage),
		)
		return nil
	}

	j.RetryCount++
	delay := e.backoff.Delay(j.RetryCount)
	j.RunAt = now.Add(delay)
	j.Status = job.StatusPending
	j.WorkerID = id.Nil
	j.ClaimID = id.Nil
	j.StartedAt = nil
	if err := e.finish(ctx, j, holder); err != nil {
		return err
	}

	e.record(ctx, j, execution.StatusRetrying, j.ErrorMessage, attempt, elapsed, backend)
	e.extensions.EmitJobRetrying(ctx, j, j.RetryCount, j.RunAt)

	e.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.Int("retry_count", j.RetryCount),
		slog.Int("max_retries", j.MaxRetries),
		slog.Duration("delay", delay),
	)
	return nil
}

// finish writes j back under the holder claim.
func (e *Executor) finish(ctx context.Context, j *job.Job, holder id.ClaimID) error {
	err := e.store.FinishJob(ctx, j, holder)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dispatch.ErrClaimLost):
		e.logger.Warn("claim lost before write-back, outcome discarded",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("claim_id", holder.String()),
			slog.String("status", string(j.Status)),
		)
	default:
		e.logger.Error("job write-back failed",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("error", err.Error()),
		)
	}
	return fmt.Errorf("finish %s: %w", j.ID, err)
}

func (e *Executor) throttle(ctx context.Context, j *job.Job) error {
	runAt := time.Now().UTC().Add(e.throttleDelay)
	if err := e.store.ReleaseJobs(ctx, []*job.Job{j}, runAt); err != nil {
		return fmt.Errorf("release throttled %s: %w", j.ID, err)
	}
	e.logger.Debug("job throttled, released",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.String("store_id", j.StoreID),
		slog.Time("run_at", runAt),
	)
	return nil
}

func (e *Executor) record(
	ctx context.Context, j *job.Job, status execution.Status,
	errMsg string, attempt int, elapsed time.Duration, backend execution.Backend,
) {
	if e.recorder == nil {
		return
	}
	e.recorder.Record(ctx, &execution.Record{
		JobID:        j.ID,
		CronID:       j.CronID,
		JobType:      j.Type,
		StoreID:      j.StoreID,
		Status:       status,
		DurationMs:   elapsed.Milliseconds(),
		ErrorMessage: errMsg,
		Attempt:      attempt,
		Backend:      backend,
	})
}

func (e *Executor) cronResult(ctx context.Context, j *job.Job, ok bool, errMsg string) {
	if e.crons == nil || j.CronID.IsNil() {
		return
	}
	if err := e.crons.RecordCronResult(ctx, j.CronID, ok, errMsg); err != nil {
		e.logger.Warn("record cron result failed",
			slog.String("cron_id", j.CronID.String()),
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}
