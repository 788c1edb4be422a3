package execution

import (
	"context"
	"log/slog"
	"time"

	"github.com/assaka/daino-sub010/id"
)

// DefaultPageSize applies when a listing asks for no limit.
const DefaultPageSize = 50

// MaxPageSize caps a single listing.
const MaxPageSize = 500

// Recorder appends history on behalf of the executor, scheduler, and
// sweeper. A failed append is logged and never fails the caller: losing a
// history row must not change job state.
type Recorder struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the time source for ExecutedAt.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store Store, logger *slog.Logger, opts ...RecorderOption) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record fills in ID and ExecutedAt when unset and appends rec.
func (r *Recorder) Record(ctx context.Context, rec *Record) {
	if rec.ID.IsNil() {
		rec.ID = id.NewExecutionID()
	}
	if rec.ExecutedAt.IsZero() {
		rec.ExecutedAt = r.now()
	}
	if err := r.store.AppendExecution(ctx, rec); err != nil {
		r.logger.Warn("append execution record failed",
			slog.String("job_id", rec.JobID.String()),
			slog.String("cron_id", rec.CronID.String()),
			slog.String("status", string(rec.Status)),
			slog.String("error", err.Error()),
		)
	}
}

// List returns one page of history with the total match count.
func (r *Recorder) List(ctx context.Context, opts ListOpts) (*Page, error) {
	switch {
	case opts.Limit <= 0:
		opts.Limit = DefaultPageSize
	case opts.Limit > MaxPageSize:
		opts.Limit = MaxPageSize
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	records, err := r.store.ListExecutions(ctx, opts)
	if err != nil {
		return nil, err
	}
	total, err := r.store.CountExecutions(ctx, opts)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*Record{}
	}
	return &Page{Records: records, Total: total, Limit: opts.Limit, Offset: opts.Offset}, nil
}

// Purge deletes records older than cutoff.
func (r *Recorder) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.store.PurgeExecutions(ctx, cutoff)
}

// Matches reports whether rec passes every filter in opts except
// pagination. Stores without a query language share it.
func (opts ListOpts) Matches(rec *Record) bool {
	if !opts.CronID.IsNil() && rec.CronID.String() != opts.CronID.String() {
		return false
	}
	if !opts.JobID.IsNil() && rec.JobID.String() != opts.JobID.String() {
		return false
	}
	if opts.Status != "" && rec.Status != opts.Status {
		return false
	}
	if !opts.From.IsZero() && rec.ExecutedAt.Before(opts.From) {
		return false
	}
	if !opts.To.IsZero() && !rec.ExecutedAt.Before(opts.To) {
		return false
	}
	return true
}
