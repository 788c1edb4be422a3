package sqlite

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/cron"
	"github.com/assaka/daino-sub010/execution"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	bun.BaseModel `bun:"table:dispatch_jobs,alias:j"`

	ID           string     `bun:"id,pk"`
	Type         string     `bun:"type,notnull"`
	Payload      []byte     `bun:"payload"`
	Status       string     `bun:"status,notnull"`
	Priority     string     `bun:"priority,notnull"`
	PriorityRank int        `bun:"priority_rank,notnull"`
	StoreID      string     `bun:"store_id,notnull"`
	CronID       string     `bun:"cron_id,nullzero"`
	MaxRetries   int        `bun:"max_retries,notnull"`
	RetryCount   int        `bun:"retry_count,notnull"`
	ErrorMessage string     `bun:"error_message,notnull"`
	Result       []byte     `bun:"result"`
	WorkerID     string     `bun:"worker_id,nullzero"`
	ClaimID      string     `bun:"claim_id,nullzero"`
	RunAt        time.Time  `bun:"run_at,notnull"`
	StartedAt    *time.Time `bun:"started_at"`
	CompletedAt  *time.Time `bun:"completed_at"`
	Timeout      int64      `bun:"timeout,notnull"`
	CreatedAt    time.Time  `bun:"created_at,notnull"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull"`
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:           j.ID.String(),
		Type:         j.Type,
		Payload:      j.Payload,
		Status:       string(j.Status),
		Priority:     string(j.Priority),
		PriorityRank: j.Priority.Rank(),
		StoreID:      j.StoreID,
		CronID:       j.CronID.String(),
		MaxRetries:   j.MaxRetries,
		RetryCount:   j.RetryCount,
		ErrorMessage: j.ErrorMessage,
		Result:       j.Result,
		WorkerID:     j.WorkerID.String(),
		ClaimID:      j.ClaimID.String(),
		RunAt:        j.RunAt.UTC(),
		StartedAt:    utcPtr(j.StartedAt),
		CompletedAt:  utcPtr(j.CompletedAt),
		Timeout:      j.Timeout.Nanoseconds(),
		CreatedAt:    j.CreatedAt.UTC(),
		UpdatedAt:    j.UpdatedAt.UTC(),
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	jobID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("dispatch/sqlite: parse job id %q: %w", m.ID, err)
	}
	cronID, err := optionalID(m.CronID)
	if err != nil {
		return nil, fmt.Errorf("dispatch/sqlite: parse cron id %q: %w", m.CronID, err)
	}
	workerID, err := optionalID(m.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("dispatch/sqlite: parse worker id %q: %w", m.WorkerID, err)
	}
	claimID, err := optionalID(m.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("dispatch/sqlite: parse claim id %q: %w", m.ClaimID, err)
	}

	return &job.Job{
		Entity:       dispatch.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:           jobID,
		Type:         m.Type,
		Payload:      m.Payload,
		Status:       job.Status(m.Status),
		Priority:     job.Priority(m.Priority),
		StoreID:      m.StoreID,
		CronID:       cronID,
		MaxRetries:   m.MaxRetries,
		RetryCount:   m.RetryCount,
		ErrorMessage: m.ErrorMessage,
		Result:       m.Result,
		WorkerID:     workerID,
		ClaimID:      claimID,
		RunAt:        m.RunAt,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
		Timeout:      time.Duration(m.Timeout),
	}, nil
}

func fromJobModels(models []jobModel) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ── Cron model ────────────────────────────────────────────────────

type cronModel struct {
	bun.BaseModel `bun:"table:dispatch_crons,alias:c"`

	ID            string     `bun:"id,pk"`
	Name          string     `bun:"name,notnull,unique"`
	Expression    string     `bun:"expression,notnull"`
	JobType       string     `bun:"job_type,notnull"`
	Configuration []byte     `bun:"configuration"`
	StoreID       string     `bun:"store_id,notnull"`
	Priority      string     `bun:"priority,notnull"`
	MaxRetries    int        `bun:"max_retries,notnull"`
	IsActive      bool       `bun:"is_active,notnull"`
	IsPaused      bool       `bun:"is_paused,notnull"`
	NextRunAt     *time.Time `bun:"next_run_at"`
	LastRunAt     *time.Time `bun:"last_run_at"`
	RunCount      int64      `bun:"run_count,notnull"`
	SuccessCount  int64      `bun:"success_count,notnull"`
	FailureCount  int64      `bun:"failure_count,notnull"`
	LastError     string     `bun:"last_error,notnull"`
	CreatedAt     time.Time  `bun:"created_at,notnull"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull"`
}

func toCronModel(e *cron.Entry) *cronModel {
	return &cronModel{
		ID:            e.ID.String(),
		Name:          e.Name,
		Expression:    e.Expression,
		JobType:       e.JobType,
		Configuration: e.Configuration,
		StoreID:       e.StoreID,
		Priority:      string(e.Priority),
		MaxRetries:    e.MaxRetries,
		IsActive:      e.IsActive,
		IsPaused:      e.IsPaused,
		NextRunAt:     utcPtr(e.NextRunAt),
		LastRunAt:     utcPtr(e.LastRunAt),
		RunCount:      e.RunCount,
		SuccessCount:  e.SuccessCount,
		FailureCount:  e.FailureCount,
		LastError:     e.LastError,
		CreatedAt:     e.CreatedAt.UTC(),
		UpdatedAt:     e.UpdatedAt.UTC(),
	}
}

func fromCronModel(m *cronModel) (*cron.Entry, error) {
	cronID, err := id.ParseCronID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("dispatch/sqlite: parse cron id %q: %w", m.ID, err)
	}
	return &cron.Entry{
		Entity:        dispatch.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:            cronID,
		Name:          m.Name,
		Expression:    m.Expression,
		JobType:       m.JobType,
		Configuration: m.Configuration,
		StoreID:       m.StoreID,
		Priority:      job.Priority(m.Priority),
		MaxRetries:    m.MaxRetries,
		IsActive:      m.IsActive,
		IsPaused:      m.IsPaused,
		NextRunAt:     m.NextRunAt,
		LastRunAt:     m.LastRunAt,
		RunCount:      m.RunCount,
		SuccessCount:  m.SuccessCount,
		FailureCount:  m.FailureCount,
		LastError:     m.LastError,
	}, nil
}

// ── Execution model ───────────────────────────────────────────────

type executionModel struct {
	bun.BaseModel `bun:"table:dispatch_executions,alias:x"`

	ID           string    `bun:"id,pk"`
	JobID        string    `bun:"job_id,nullzero"`
	CronID       string    `bun:"cron_id,nullzero"`
	JobType      string    `bun:"job_type,notnull"`
	StoreID      string    `bun:"store_id,notnull"`
	ExecutedAt   time.Time `bun:"executed_at,notnull"`
	Status       string    `bun:"status,notnull"`
	DurationMs   int64     `bun:"duration_ms,notnull"`
	ErrorMessage string    `bun:"error_message,notnull"`
	Attempt      int       `bun:"attempt,notnull"`
	Backend      string    `bun:"backend,notnull"`
}

func toExecutionModel(r *execution.Record) *executionModel {
	return &executionModel{
		ID:           r.ID.String(),
		JobID:        r.JobID.String(),
		CronID:       r.CronID.String(),
		JobType:      r.JobType,
		StoreID:      r.StoreID,
		ExecutedAt:   r.ExecutedAt.UTC(),
		Status:       string(r.Status),
		DurationMs:   r.DurationMs,
		ErrorMessage: r.ErrorMessage,
		Attempt:      r.Attempt,
		Backend:      string(r.Backend),
	}
}

func fromExecutionModel(m *executionModel) (*execution.Record, error) {
	execID, err := id.ParseExecutionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("dispatch/sqlite: parse execution id %q: %w", m.ID, err)
	}
	jobID, err := optionalID(m.JobID)
	if err != nil {
		return nil, fmt.Errorf("dispatch/sqlite: parse job id %q: %w", m.JobID, err)
	}
	cronID, err := optionalID(m.CronID)
	if err != nil {
		return nil, fmt.Errorf("dispatch/sqlite: parse cron id %q: %w", m.CronID, err)
	}
	return &execution.Record{
		ID:           execID,
		JobID:        jobID,
		CronID:       cronID,
		JobType:      m.JobType,
		StoreID:      m.StoreID,
		ExecutedAt:   m.ExecutedAt,
		Status:       execution.Status(m.Status),
		DurationMs:   m.DurationMs,
		ErrorMessage: m.ErrorMessage,
		Attempt:      m.Attempt,
		Backend:      execution.Backend(m.Backend),
	}, nil
}

// ── helpers ───────────────────────────────────────────────────────

func optionalID(s string) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return id.Parse(s)
}

// utcPtr normalizes optional timestamps so stored text compares in time
// order.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
