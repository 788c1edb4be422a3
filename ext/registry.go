package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/assaka/daino-sub010/cron"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
)

// hooked pairs a hook implementation with the extension name captured at
// registration time.
type hooked[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and dispatches lifecycle events to
// them. Extensions are sorted into per-hook slices at registration so an
// emit only visits extensions that implement it.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobSubmitted []hooked[JobSubmitted]
	jobStarted   []hooked[JobStarted]
	jobCompleted []hooked[JobCompleted]
	jobFailed    []hooked[JobFailed]
	jobRetrying  []hooked[JobRetrying]
	jobCancelled []hooked[JobCancelled]
	jobRecovered []hooked[JobRecovered]
	cronFired    []hooked[CronFired]
	shutdown     []hooked[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// addHook appends e to list if it implements H.
func addHook[H any](list []hooked[H], name string, e Extension) []hooked[H] {
	if h, ok := e.(H); ok {
		return append(list, hooked[H]{name: name, hook: h})
	}
	return list
}

// Register adds an extension. Extensions are notified in registration
// order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	r.jobSubmitted = addHook(r.jobSubmitted, name, e)
	r.jobStarted = addHook(r.jobStarted, name, e)
	r.jobCompleted = addHook(r.jobCompleted, name, e)
	r.jobFailed = addHook(r.jobFailed, name, e)
	r.jobRetrying = addHook(r.jobRetrying, name, e)
	r.jobCancelled = addHook(r.jobCancelled, name, e)
	r.jobRecovered = addHook(r.jobRecovered, name, e)
	r.cronFired = addHook(r.cronFired, name, e)
	r.shutdown = addHook(r.shutdown, name, e)
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// emit calls fn for every entry and logs, never propagates, hook errors.
func emit[H any](r *Registry, hookName string, list []hooked[H], fn func(H) error) {
	for _, e := range list {
		if err := fn(e.hook); err != nil {
			r.logger.Warn("extension hook error",
				slog.String("hook", hookName),
				slog.String("extension", e.name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// EmitJobSubmitted notifies all extensions that implement JobSubmitted.
func (r *Registry) EmitJobSubmitted(ctx context.Context, j *job.Job) {
	emit(r, "OnJobSubmitted", r.jobSubmitted, func(h JobSubmitted) error { return h.OnJobSubmitted(ctx, j) })
}

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	emit(r, "OnJobStarted", r.jobStarted, func(h JobStarted) error { return h.OnJobStarted(ctx, j) })
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	emit(r, "OnJobCompleted", r.jobCompleted, func(h JobCompleted) error { return h.OnJobCompleted(ctx, j, elapsed) })
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	emit(r, "OnJobFailed", r.jobFailed, func(h JobFailed) error { return h.OnJobFailed(ctx, j, jobErr) })
}

// EmitJobRetrying notifies all extensions that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) {
	emit(r, "OnJobRetrying", r.jobRetrying, func(h JobRetrying) error { return h.OnJobRetrying(ctx, j, attempt, nextRunAt) })
}

// EmitJobCancelled notifies all extensions that implement JobCancelled.
func (r *Registry) EmitJobCancelled(ctx context.Context, j *job.Job) {
	emit(r, "OnJobCancelled", r.jobCancelled, func(h JobCancelled) error { return h.OnJobCancelled(ctx, j) })
}

// EmitJobRecovered notifies all extensions that implement JobRecovered.
func (r *Registry) EmitJobRecovered(ctx context.Context, j *job.Job) {
	emit(r, "OnJobRecovered", r.jobRecovered, func(h JobRecovered) error { return h.OnJobRecovered(ctx, j) })
}

// EmitCronFired notifies all extensions that implement CronFired.
func (r *Registry) EmitCronFired(ctx context.Context, e *cron.Entry, jobID id.JobID) {
	emit(r, "OnCronFired", r.cronFired, func(h CronFired) error { return h.OnCronFired(ctx, e, jobID) })
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(r, "OnShutdown", r.shutdown, func(h Shutdown) error { return h.OnShutdown(ctx) })
}
