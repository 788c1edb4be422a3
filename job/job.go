package job

import (
	"encoding/json"
	"fmt"
	"time"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/id"
)

// Status is the lifecycle state of a job.
type Status string

const (
	// StatusPending means the job waits to be claimed.
	StatusPending Status = "pending"
	// StatusClaimed means one executor holds the job but has not started it.
	StatusClaimed Status = "claimed"
	// StatusRunning means the handler is executing.
	StatusRunning Status = "running"
	// StatusCompleted is terminal: the handler returned a result.
	StatusCompleted Status = "completed"
	// StatusFailed is terminal: retries were exhausted or the failure was
	// permanent.
	StatusFailed Status = "failed"
	// StatusCancelled is terminal: the job was cancelled while pending.
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no executor will touch a job in this status
// again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsClaimed reports whether an executor currently holds the job.
func (s Status) IsClaimed() bool {
	return s == StatusClaimed || s == StatusRunning
}

// Priority orders pending jobs at claim time. It is a sort key only; a low
// priority job still runs when nothing more urgent is pending.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank returns the sort position of p, lowest first. Unknown values sort
// with normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// ParsePriority validates s. The empty string yields PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case "":
		return PriorityNormal, nil
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", dispatch.ErrInvalidPriority, s)
	}
}

// PriorityFromRank is the inverse of Rank.
func PriorityFromRank(rank int) Priority {
	switch rank {
	case 0:
		return PriorityUrgent
	case 1:
		return PriorityHigh
	case 3:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Job is one unit of asynchronous work. Once claimed, only the holder of
// ClaimID may write it back. WorkerID records which process holds it.
type Job struct {
	dispatch.Entity

	ID           id.JobID        `json:"id"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Status       Status          `json:"status"`
	Priority     Priority        `json:"priority"`
	StoreID      string          `json:"store_id,omitempty"`
	CronID       id.CronID       `json:"cron_id,omitempty"`
	MaxRetries   int             `json:"max_retries"`
	RetryCount   int             `json:"retry_count"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	WorkerID     id.WorkerID     `json:"worker_id,omitempty"`
	ClaimID      id.ClaimID      `json:"claim_id,omitempty"`
	RunAt        time.Time       `json:"run_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Timeout      time.Duration   `json:"timeout,omitempty"`
}

// Attempt is the 1-based number of the current execution attempt.
func (j *Job) Attempt() int { return j.RetryCount + 1 }

// Latency is completed_at minus created_at, or zero while unfinished.
func (j *Job) Latency() time.Duration {
	if j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(j.CreatedAt)
}

// StatusReport is the caller-facing view returned by status queries.
type StatusReport struct {
	ID           id.JobID        `json:"job_id"`
	Type         string          `json:"type"`
	Status       Status          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	RetryCount   int             `json:"retry_count"`
}

// Report builds the status view of j.
func (j *Job) Report() *StatusReport {
	return &StatusReport{
		ID:           j.ID,
		Type:         j.Type,
		Status:       j.Status,
		Result:       j.Result,
		ErrorMessage: j.ErrorMessage,
		RetryCount:   j.RetryCount,
	}
}

// CancelResult is the outcome of a cancel request.
type CancelResult string

const (
	CancelCancelled       CancelResult = "cancelled"
	CancelAlreadyRunning  CancelResult = "already_running"
	CancelAlreadyFinished CancelResult = "already_finished"
)
