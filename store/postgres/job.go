package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
)

const jobColumns = `id, type, payload, status, priority, store_id, cron_id,
	max_retries, retry_count, error_message, result, worker_id, claim_id,
	run_at, started_at, completed_at, timeout, created_at, updated_at`

// InsertJob persists a new job.
func (s *Store) InsertJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dispatch_jobs (
			id, type, payload, status, priority, priority_rank, store_id, cron_id,
			max_retries, retry_count, error_message, result, worker_id, claim_id,
			run_at, started_at, completed_at, timeout, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20
		)`,
		j.ID.String(), j.Type, nullJSON(j.Payload), string(j.Status),
		string(j.Priority), j.Priority.Rank(), j.StoreID, nullID(j.CronID),
		j.MaxRetries, j.RetryCount, j.ErrorMessage, nullJSON(j.Result),
		nullID(j.WorkerID), nullID(j.ClaimID),
		j.RunAt, j.StartedAt, j.CompletedAt, j.Timeout.Nanoseconds(),
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return dispatch.ErrJobAlreadyExists
		}
		return fmt.Errorf("dispatch/postgres: insert job: %w", err)
	}
	return nil
}

// ClaimJobs claims due pending jobs with FOR UPDATE SKIP LOCKED: rows
// locked by a concurrent claimer are skipped instead of waited on.
func (s *Store) ClaimJobs(ctx context.Context, opts job.ClaimOpts) ([]*job.Job, error) {
	var (
		limit any
		types []string
	)
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	if len(opts.Types) > 0 {
		types = opts.Types
	}

	rows, err := s.pool.Query(ctx, `
		UPDATE dispatch_jobs
		SET status = 'claimed', worker_id = $3, claim_id = $4, started_at = NOW(), updated_at = NOW()
		FROM (
			SELECT id AS pick_id FROM dispatch_jobs
			WHERE status = 'pending'
			  AND run_at <= NOW()
			  AND ($2::text[] IS NULL OR type = ANY($2))
			ORDER BY priority_rank, created_at, id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		) picked
		WHERE id = picked.pick_id
		RETURNING `+jobColumns,
		limit, types, opts.WorkerID.String(), id.NewClaimID().String(),
	)
	if err != nil {
		return nil, fmt.Errorf("dispatch/postgres: claim jobs: %w", err)
	}
	defer rows.Close()

	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, err
	}

	// RETURNING order is unspecified.
	sort.Slice(jobs, func(a, b int) bool {
		ja, jb := jobs[a], jobs[b]
		if ra, rb := ja.Priority.Rank(), jb.Priority.Rank(); ra != rb {
			return ra < rb
		}
		if !ja.CreatedAt.Equal(jb.CreatedAt) {
			return ja.CreatedAt.Before(jb.CreatedAt)
		}
		return ja.ID.String() < jb.ID.String()
	})
	return jobs, nil
}

func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE dispatch_jobs
		SET status = 'claimed', worker_id = $2, claim_id = $3, started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND run_at <= NOW()
		RETURNING `+jobColumns,
		jobID.String(), workerID.String(), id.NewClaimID().String(),
	)
	j, err := scanJob(row)
	if err == nil {
		return j, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("dispatch/postgres: claim job: %w", err)
	}
	return nil, s.missOrLost(ctx, jobID, dispatch.ErrClaimLost)
}

func (s *Store) MarkRunning(ctx context.Context, jobID id.JobID, claim id.ClaimID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dispatch_jobs SET status = 'running', updated_at = NOW()
		WHERE id = $1 AND claim_id = $2 AND status IN ('claimed', 'running')`,
		jobID.String(), claim.String(),
	)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: mark running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrLost(ctx, jobID, dispatch.ErrClaimLost)
	}
	return nil
}

func (s *Store) FinishJob(ctx context.Context, j *job.Job, claim id.ClaimID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dispatch_jobs SET
			status = $3, result = $4, error_message = $5, retry_count = $6,
			run_at = $7, worker_id = $8, claim_id = $9, started_at = $10,
			completed_at = $11, updated_at = NOW()
		WHERE id = $1 AND claim_id = $2 AND status IN ('claimed', 'running')`,
		j.ID.String(), claim.String(),
		string(j.Status), nullJSON(j.Result), j.ErrorMessage, j.RetryCount,
		j.RunAt, nullID(j.WorkerID), nullID(j.ClaimID), j.StartedAt, j.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrLost(ctx, j.ID, dispatch.ErrClaimLost)
	}
	return nil
}

// ReleaseJobs matches each job against its own claim_id through a pair
// of parallel arrays.
func (s *Store) ReleaseJobs(ctx context.Context, jobs []*job.Job, runAt time.Time) error {
	if len(jobs) == 0 {
		return nil
	}
	ids := make([]string, len(jobs))
	claims := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID.String()
		claims[i] = j.ClaimID.String()
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE dispatch_jobs SET
			status = 'pending', worker_id = NULL, claim_id = NULL, started_at = NULL,
			run_at = $3, updated_at = NOW()
		FROM unnest($1::text[], $2::text[]) AS rel(job_id, claim_id)
		WHERE dispatch_jobs.id = rel.job_id
		  AND dispatch_jobs.claim_id = rel.claim_id
		  AND dispatch_jobs.status = 'claimed'`,
		ids, claims, runAt,
	)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: release jobs: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM dispatch_jobs WHERE id = $1`, jobID.String())
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, dispatch.ErrJobNotFound
		}
		return nil, fmt.Errorf("dispatch/postgres: get job: %w", err)
	}
	return j, nil
}

func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE dispatch_jobs
		SET status = 'cancelled', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+jobColumns,
		jobID.String(),
	)
	j, err := scanJob(row)
	if err == nil {
		return j, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("dispatch/postgres: cancel job: %w", err)
	}
	cur, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return cur, dispatch.ErrJobNotPending
}

func (s *Store) RetryJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE dispatch_jobs SET
			status = 'pending', retry_count = 0, worker_id = NULL, claim_id = NULL,
			started_at = NULL, completed_at = NULL, run_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'failed'
		RETURNING `+jobColumns,
		jobID.String(),
	)
	j, err := scanJob(row)
	if err == nil {
		return j, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("dispatch/postgres: retry job: %w", err)
	}
	return nil, s.missOrLost(ctx, jobID, dispatch.ErrInvalidState)
}

func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var w where
	if opts.Status != "" {
		w.add("status = $%d", string(opts.Status))
	}
	if opts.Type != "" {
		w.add("type = $%d", opts.Type)
	}
	if opts.StoreID != "" {
		w.add("store_id = $%d", opts.StoreID)
	}
	if !opts.CronID.IsNil() {
		w.add("cron_id = $%d", opts.CronID.String())
	}
	query := `SELECT ` + jobColumns + ` FROM dispatch_jobs` + w.String() + ` ORDER BY created_at DESC, id DESC`
	query = w.page(query, opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("dispatch/postgres: list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	var w where
	if opts.Status != "" {
		w.add("status = $%d", string(opts.Status))
	}
	if opts.Type != "" {
		w.add("type = $%d", opts.Type)
	}
	if opts.StoreID != "" {
		w.add("store_id = $%d", opts.StoreID)
	}

	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dispatch_jobs`+w.String(), w.args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("dispatch/postgres: count jobs: %w", err)
	}
	return count, nil
}

func (s *Store) ListStaleJobs(ctx context.Context, cutoff time.Time) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM dispatch_jobs
		WHERE status IN ('claimed', 'running') AND started_at < $1
		ORDER BY started_at`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("dispatch/postgres: list stale jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *Store) PurgeJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM dispatch_jobs
		WHERE status IN ('completed', 'failed', 'cancelled') AND updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("dispatch/postgres: purge jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// missOrLost distinguishes a missing row from one in the wrong state
// after a guarded update matched nothing.
func (s *Store) missOrLost(ctx context.Context, jobID id.JobID, lost error) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM dispatch_jobs WHERE id = $1)`, jobID.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: check job: %w", err)
	}
	if !exists {
		return dispatch.ErrJobNotFound
	}
	return lost
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		payload   []byte
		result    []byte
		status    string
		priority  string
		timeoutNs int64
	)
	err := row.Scan(
		&j.ID, &j.Type, &payload, &status, &priority, &j.StoreID, &j.CronID,
		&j.MaxRetries, &j.RetryCount, &j.ErrorMessage, &result, &j.WorkerID, &j.ClaimID,
		&j.RunAt, &j.StartedAt, &j.CompletedAt, &timeoutNs, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Payload = payload
	j.Result = result
	j.Status = job.Status(status)
	j.Priority = job.Priority(priority)
	j.Timeout = time.Duration(timeoutNs)
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("dispatch/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispatch/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
