package cron

import (
	"context"
	"time"

	"github.com/assaka/daino-sub010/id"
)

// Store is the persistence contract for cron definitions.
type Store interface {
	// CreateCron persists a new definition. A taken name yields
	// dispatch.ErrDuplicateCron.
	CreateCron(ctx context.Context, e *Entry) error

	// GetCron retrieves a definition by ID.
	GetCron(ctx context.Context, cronID id.CronID) (*Entry, error)

	// GetCronByName retrieves a definition by its unique name.
	GetCronByName(ctx context.Context, name string) (*Entry, error)

	// ListCrons returns every definition ordered by name.
	ListCrons(ctx context.Context) ([]*Entry, error)

	// ListDueCrons returns active definitions, paused or not, whose
	// next_run_at is at or before now.
	ListDueCrons(ctx context.Context, now time.Time) ([]*Entry, error)

	// UpdateCron writes the editable fields of e: name, expression, job
	// type, configuration, store, priority, retries, both flags,
	// next_run_at and last_error. Counters are left untouched. The write
	// only happens while the stored next_run_at still equals expected (nil
	// matching nil); otherwise it returns dispatch.ErrCronConflict, so an
	// edit cannot roll back an advance the scheduler made meanwhile.
	UpdateCron(ctx context.Context, e *Entry, expected *time.Time) error

	// DeleteCron removes a definition.
	DeleteCron(ctx context.Context, cronID id.CronID) error

	// AdvanceCron moves next_run_at from expected to next, sets last_run_at
	// and increments run_count, but only if next_run_at still equals
	// expected. It reports whether this caller won the advance.
	AdvanceCron(ctx context.Context, cronID id.CronID, expected, next, ranAt time.Time) (bool, error)

	// MarkCronInvalid clears next_run_at and stores reason as last_error so
	// the definition is skipped until its expression is corrected.
	MarkCronInvalid(ctx context.Context, cronID id.CronID, reason string) error

	// RecordCronResult counts the outcome of a materialized job. A failure
	// also stores errMsg as last_error; a success clears it.
	RecordCronResult(ctx context.Context, cronID id.CronID, succeeded bool, errMsg string) error
}
