// Package execution is the append-only history of job attempts and cron
// materializations.
package execution

import (
	"context"
	"time"

	"github.com/assaka/daino-sub010/id"
)

// Status is the outcome recorded for one execution.
type Status string

const (
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
	StatusRetrying     Status = "retrying"
	StatusMaterialized Status = "materialized"
	StatusSkipped      Status = "skipped"
	StatusRecovered    Status = "recovered"
)

// Backend names the component that produced a record.
type Backend string

const (
	BackendPoller    Backend = "poller"
	BackendBroker    Backend = "broker"
	BackendScheduler Backend = "scheduler"
	BackendSweeper   Backend = "sweeper"
)

// Record is one immutable history row.
type Record struct {
	ID           id.ExecutionID `json:"id"`
	JobID        id.JobID       `json:"job_id,omitempty"`
	CronID       id.CronID      `json:"cron_job_id,omitempty"`
	JobType      string         `json:"job_type"`
	StoreID      string         `json:"store_id,omitempty"`
	ExecutedAt   time.Time      `json:"executed_at"`
	Status       Status         `json:"status"`
	DurationMs   int64          `json:"duration_ms"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Attempt      int            `json:"attempt"`
	Backend      Backend        `json:"backend"`
}

// ListOpts filters history queries. Zero values match all. From is
// inclusive and To exclusive.
type ListOpts struct {
	CronID id.CronID
	JobID  id.JobID
	Status Status
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// Store persists execution records. Records are never updated.
type Store interface {
	// AppendExecution inserts r.
	AppendExecution(ctx context.Context, r *Record) error

	// ListExecutions returns matching records, most recent first.
	ListExecutions(ctx context.Context, opts ListOpts) ([]*Record, error)

	// CountExecutions returns how many records match opts, ignoring Limit
	// and Offset.
	CountExecutions(ctx context.Context, opts ListOpts) (int64, error)

	// PurgeExecutions deletes records executed before cutoff.
	PurgeExecutions(ctx context.Context, cutoff time.Time) (int64, error)
}

// Page is one page of a history listing.
type Page struct {
	Records []*Record `json:"records"`
	Total   int64     `json:"total"`
	Limit   int       `json:"limit"`
	Offset  int       `json:"offset"`
}
