package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
)

const claimOrder = "priority_rank ASC, created_at ASC, id ASC"

func (s *Store) InsertJob(ctx context.Context, j *job.Job) error {
	_, err := s.db.NewInsert().Model(toJobModel(j)).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return dispatch.ErrJobAlreadyExists
		}
		return fmt.Errorf("dispatch/sqlite: insert job: %w", err)
	}
	return nil
}

// ClaimJobs selects and flips eligible jobs inside one immediate write
// transaction, which excludes every other claimer until it commits.
func (s *Store) ClaimJobs(ctx context.Context, opts job.ClaimOpts) ([]*job.Job, error) {
	now := time.Now().UTC()
	var models []jobModel

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var ids []string
		q := tx.NewSelect().
			Model((*jobModel)(nil)).
			Column("id").
			Where("status = ?", string(job.StatusPending)).
			Where("run_at <= ?", now).
			OrderExpr(claimOrder)
		if len(opts.Types) > 0 {
			q = q.Where("type IN (?)", bun.In(opts.Types))
		}
		if opts.Limit > 0 {
			q = q.Limit(opts.Limit)
		}
		if err := q.Scan(ctx, &ids); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		_, err := tx.NewUpdate().
			TableExpr("dispatch_jobs").
			Set("status = ?", string(job.StatusClaimed)).
			Set("worker_id = ?", opts.WorkerID.String()).
			Set("claim_id = ?", id.NewClaimID().String()).
			Set("started_at = ?", now).
			Set("updated_at = ?", now).
			Where("id IN (?)", bun.In(ids)).
			Exec(ctx)
		if err != nil {
			return err
		}

		return tx.NewSelect().
			Model(&models).
			Where("id IN (?)", bun.In(ids)).
			OrderExpr(claimOrder).
			Scan(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch/sqlite: claim jobs: %w", err)
	}
	return fromJobModels(models)
}

func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) (*job.Job, error) {
	now := time.Now().UTC()
	res, err := s.db.NewUpdate().
		TableExpr("dispatch_jobs").
		Set("status = ?", string(job.StatusClaimed)).
		Set("worker_id = ?", workerID.String()).
		Set("claim_id = ?", id.NewClaimID().String()).
		Set("started_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", jobID.String()).
		Where("status = ?", string(job.StatusPending)).
		Where("run_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch/sqlite: claim job: %w", err)
	}
	if !affected(res) {
		return nil, s.missOrLost(ctx, jobID, dispatch.ErrClaimLost)
	}
	return s.GetJob(ctx, jobID)
}

// held restricts an update to a job still claimed under claim.
func held(q *bun.UpdateQuery, jobID id.JobID, claim id.ClaimID) *bun.UpdateQuery {
	return q.Where("id = ?", jobID.String()).
		Where("claim_id = ?", claim.String()).
		Where("status IN (?)", bun.In([]string{string(job.StatusClaimed), string(job.StatusRunning)}))
}

func (s *Store) MarkRunning(ctx context.Context, jobID id.JobID, claim id.ClaimID) error {
	q := s.db.NewUpdate().
		TableExpr("dispatch_jobs").
		Set("status = ?", string(job.StatusRunning)).
		Set("updated_at = ?", time.Now().UTC())
	res, err := held(q, jobID, claim).Exec(ctx)
	if err != nil {
		return fmt.Errorf("dispatch/sqlite: mark running: %w", err)
	}
	if !affected(res) {
		return s.missOrLost(ctx, jobID, dispatch.ErrClaimLost)
	}
	return nil
}

func (s *Store) FinishJob(ctx context.Context, j *job.Job, claim id.ClaimID) error {
	q := s.db.NewUpdate().
		TableExpr("dispatch_jobs").
		Set("status = ?", string(j.Status)).
		Set("result = ?", []byte(j.Result)).
		Set("error_message = ?", j.ErrorMessage).
		Set("retry_count = ?", j.RetryCount).
		Set("run_at = ?", j.RunAt.UTC()).
		Set("worker_id = ?", nullString(j.WorkerID.String())).
		Set("claim_id = ?", nullString(j.ClaimID.String())).
		Set("started_at = ?", utcPtr(j.StartedAt)).
		Set("completed_at = ?", utcPtr(j.CompletedAt)).
		Set("updated_at = ?", time.Now().UTC())
	res, err := held(q, j.ID, claim).Exec(ctx)
	if err != nil {
		return fmt.Errorf("dispatch/sqlite: finish job: %w", err)
	}
	if !affected(res) {
		return s.missOrLost(ctx, j.ID, dispatch.ErrClaimLost)
	}
	return nil
}

// ReleaseJobs updates each job under its own claim inside one write
// transaction.
func (s *Store) ReleaseJobs(ctx context.Context, jobs []*job.Job, runAt time.Time) error {
	if len(jobs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, j := range jobs {
			_, err := tx.NewUpdate().
				TableExpr("dispatch_jobs").
				Set("status = ?", string(job.StatusPending)).
				Set("worker_id = NULL").
				Set("claim_id = NULL").
				Set("started_at = NULL").
				Set("run_at = ?", runAt.UTC()).
				Set("updated_at = ?", now).
				Where("id = ?", j.ID.String()).
				Where("claim_id = ?", j.ClaimID.String()).
				Where("status = ?", string(job.StatusClaimed)).
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("dispatch/sqlite: release jobs: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).Where("id = ?", jobID.String()).Limit(1).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dispatch.ErrJobNotFound
		}
		return nil, fmt.Errorf("dispatch/sqlite: get job: %w", err)
	}
	return fromJobModel(m)
}

func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	now := time.Now().UTC()
	res, err := s.db.NewUpdate().
		TableExpr("dispatch_jobs").
		Set("status = ?", string(job.StatusCancelled)).
		Set("completed_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", jobID.String()).
		Where("status = ?", string(job.StatusPending)).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch/sqlite: cancel job: %w", err)
	}
	cur, getErr := s.GetJob(ctx, jobID)
	if getErr != nil {
		return nil, getErr
	}
	if !affected(res) {
		return cur, dispatch.ErrJobNotPending
	}
	return cur, nil
}

func (s *Store) RetryJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	now := time.Now().UTC()
	res, err := s.db.NewUpdate().
		TableExpr("dispatch_jobs").
		Set("status = ?", string(job.StatusPending)).
		Set("retry_count = 0").
		Set("worker_id = NULL").
		Set("claim_id = NULL").
		Set("started_at = NULL").
		Set("completed_at = NULL").
		Set("run_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", jobID.String()).
		Where("status = ?", string(job.StatusFailed)).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch/sqlite: retry job: %w", err)
	}
	if !affected(res) {
		return nil, s.missOrLost(ctx, jobID, dispatch.ErrInvalidState)
	}
	return s.GetJob(ctx, jobID)
}

func jobFilter(q *bun.SelectQuery, status job.Status, jobType, storeID string) *bun.SelectQuery {
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	if jobType != "" {
		q = q.Where("type = ?", jobType)
	}
	if storeID != "" {
		q = q.Where("store_id = ?", storeID)
	}
	return q
}

func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := jobFilter(s.db.NewSelect().Model(&models), opts.Status, opts.Type, opts.StoreID)
	if !opts.CronID.IsNil() {
		q = q.Where("cron_id = ?", opts.CronID.String())
	}
	q = q.OrderExpr("created_at DESC, id DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dispatch/sqlite: list jobs: %w", err)
	}
	return fromJobModels(models)
}

func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	q := jobFilter(s.db.NewSelect().Model((*jobModel)(nil)), opts.Status, opts.Type, opts.StoreID)
	n, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("dispatch/sqlite: count jobs: %w", err)
	}
	return int64(n), nil
}

func (s *Store) ListStaleJobs(ctx context.Context, cutoff time.Time) ([]*job.Job, error) {
	var models []jobModel
	err := s.db.NewSelect().Model(&models).
		Where("status IN (?)", bun.In([]string{string(job.StatusClaimed), string(job.StatusRunning)})).
		Where("started_at < ?", cutoff.UTC()).
		OrderExpr("started_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch/sqlite: list stale jobs: %w", err)
	}
	return fromJobModels(models)
}

func (s *Store) PurgeJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		TableExpr("dispatch_jobs").
		Where("status IN (?)", bun.In([]string{
			string(job.StatusCompleted), string(job.StatusFailed), string(job.StatusCancelled),
		})).
		Where("updated_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("dispatch/sqlite: purge jobs: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // sqlite3 always reports it
	return n, nil
}

func (s *Store) missOrLost(ctx context.Context, jobID id.JobID, lost error) error {
	exists, err := s.db.NewSelect().Model((*jobModel)(nil)).Where("id = ?", jobID.String()).Exists(ctx)
	if err != nil {
		return fmt.Errorf("dispatch/sqlite: check job: %w", err)
	}
	if !exists {
		return dispatch.ErrJobNotFound
	}
	return lost
}

func affected(res interface{ RowsAffected() (int64, error) }) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}
