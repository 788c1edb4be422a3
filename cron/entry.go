package cron

import (
	"encoding/json"
	"time"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
)

// State summarizes the is_active and is_paused flags.
type State string

const (
	StateInactive State = "inactive"
	StateActive   State = "active"
	StatePaused   State = "paused"
)

// Entry is a recurring job definition. Each due tick materializes one job
// of JobType with Configuration as its payload.
type Entry struct {
	dispatch.Entity

	ID            id.CronID       `json:"id"`
	Name          string          `json:"name"`
	Expression    string          `json:"cron_expression"`
	JobType       string          `json:"job_type"`
	Configuration json.RawMessage `json:"configuration,omitempty"`
	StoreID       string          `json:"store_id,omitempty"`
	Priority      job.Priority    `json:"priority"`
	MaxRetries    int             `json:"max_retries"`
	IsActive      bool            `json:"is_active"`
	IsPaused      bool            `json:"is_paused"`
	NextRunAt     *time.Time      `json:"next_run_at,omitempty"`
	LastRunAt     *time.Time      `json:"last_run_at,omitempty"`
	RunCount      int64           `json:"run_count"`
	SuccessCount  int64           `json:"success_count"`
	FailureCount  int64           `json:"failure_count"`
	LastError     string          `json:"last_error,omitempty"`
}

// State reports where the entry sits in the inactive/active/paused machine.
// Inactive wins over paused.
func (e *Entry) State() State {
	switch {
	case !e.IsActive:
		return StateInactive
	case e.IsPaused:
		return StatePaused
	default:
		return StateActive
	}
}

// JobOptions are the submit options for jobs materialized from e.
func (e *Entry) JobOptions() []job.Option {
	opts := []job.Option{job.WithCronID(e.ID)}
	if e.Priority != "" {
		opts = append(opts, job.WithPriority(e.Priority))
	}
	if e.StoreID != "" {
		opts = append(opts, job.WithStoreID(e.StoreID))
	}
	if e.MaxRetries > 0 {
		opts = append(opts, job.WithMaxRetries(e.MaxRetries))
	}
	return opts
}
