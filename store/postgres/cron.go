package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/cron"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
)

const cronColumns = `id, name, expression, job_type, configuration, store_id, priority,
	max_retries, is_active, is_paused, next_run_at, last_run_at,
	run_count, success_count, failure_count, last_error, created_at, updated_at`

func (s *Store) CreateCron(ctx context.Context, e *cron.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dispatch_crons (`+cronColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		e.ID.String(), e.Name, e.Expression, e.JobType, nullJSON(e.Configuration), e.StoreID,
		string(e.Priority), e.MaxRetries, e.IsActive, e.IsPaused, e.NextRunAt, e.LastRunAt,
		e.RunCount, e.SuccessCount, e.FailureCount, e.LastError, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return dispatch.ErrDuplicateCron
		}
		return fmt.Errorf("dispatch/postgres: create cron: %w", err)
	}
	return nil
}

func (s *Store) GetCron(ctx context.Context, cronID id.CronID) (*cron.Entry, error) {
	return s.getCron(ctx, `id = $1`, cronID.String())
}

func (s *Store) GetCronByName(ctx context.Context, name string) (*cron.Entry, error) {
	return s.getCron(ctx, `name = $1`, name)
}

func (s *Store) getCron(ctx context.Context, cond string, arg any) (*cron.Entry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+cronColumns+` FROM dispatch_crons WHERE `+cond, arg)
	e, err := scanCron(row)
	if err != nil {
		if isNoRows(err) {
			return nil, dispatch.ErrCronNotFound
		}
		return nil, fmt.Errorf("dispatch/postgres: get cron: %w", err)
	}
	return e, nil
}

func (s *Store) ListCrons(ctx context.Context) ([]*cron.Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+cronColumns+` FROM dispatch_crons ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("dispatch/postgres: list crons: %w", err)
	}
	defer rows.Close()
	return collectCrons(rows)
}

func (s *Store) ListDueCrons(ctx context.Context, now time.Time) ([]*cron.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+cronColumns+` FROM dispatch_crons
		WHERE is_active AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at, name`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("dispatch/postgres: list due crons: %w", err)
	}
	defer rows.Close()
	return collectCrons(rows)
}

func (s *Store) UpdateCron(ctx context.Context, e *cron.Entry, expected *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dispatch_crons SET
			name = $2, expression = $3, job_type = $4, configuration = $5,
			store_id = $6, priority = $7, max_retries = $8,
			is_active = $9, is_paused = $10, next_run_at = $11, last_error = $12,
			updated_at = NOW()
		WHERE id = $1 AND next_run_at IS NOT DISTINCT FROM $13::timestamptz`,
		e.ID.String(), e.Name, e.Expression, e.JobType, nullJSON(e.Configuration),
		e.StoreID, string(e.Priority), e.MaxRetries,
		e.IsActive, e.IsPaused, e.NextRunAt, e.LastError, expected,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return dispatch.ErrDuplicateCron
		}
		return fmt.Errorf("dispatch/postgres: update cron: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetCron(ctx, e.ID); err != nil {
			return err
		}
		return dispatch.ErrCronConflict
	}
	return nil
}

func (s *Store) DeleteCron(ctx context.Context, cronID id.CronID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM dispatch_crons WHERE id = $1`, cronID.String())
	if err != nil {
		return fmt.Errorf("dispatch/postgres: delete cron: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrCronNotFound
	}
	return nil
}

// AdvanceCron is a compare-and-set on next_run_at. Exactly one of any
// number of concurrent callers passing the same expected value wins.
func (s *Store) AdvanceCron(ctx context.Context, cronID id.CronID, expected, next, ranAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dispatch_crons SET
			next_run_at = $3, last_run_at = $4, run_count = run_count + 1, updated_at = NOW()
		WHERE id = $1 AND next_run_at = $2`,
		cronID.String(), expected, next, ranAt,
	)
	if err != nil {
		return false, fmt.Errorf("dispatch/postgres: advance cron: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := s.GetCron(ctx, cronID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) MarkCronInvalid(ctx context.Context, cronID id.CronID, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dispatch_crons SET next_run_at = NULL, last_error = $2, updated_at = NOW()
		WHERE id = $1`,
		cronID.String(), reason,
	)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: mark cron invalid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrCronNotFound
	}
	return nil
}

func (s *Store) RecordCronResult(ctx context.Context, cronID id.CronID, succeeded bool, errMsg string) error {
	query := `UPDATE dispatch_crons SET success_count = success_count + 1, last_error = '', updated_at = NOW() WHERE id = $1`
	args := []any{cronID.String()}
	if !succeeded {
		query = `UPDATE dispatch_crons SET failure_count = failure_count + 1, last_error = $2, updated_at = NOW() WHERE id = $1`
		args = append(args, errMsg)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: record cron result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrCronNotFound
	}
	return nil
}

func scanCron(row pgx.Row) (*cron.Entry, error) {
	var (
		e        cron.Entry
		config   []byte
		priority string
	)
	err := row.Scan(
		&e.ID, &e.Name, &e.Expression, &e.JobType, &config, &e.StoreID, &priority,
		&e.MaxRetries, &e.IsActive, &e.IsPaused, &e.NextRunAt, &e.LastRunAt,
		&e.RunCount, &e.SuccessCount, &e.FailureCount, &e.LastError, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Configuration = config
	e.Priority = job.Priority(priority)
	return &e, nil
}

func collectCrons(rows pgx.Rows) ([]*cron.Entry, error) {
	entries := make([]*cron.Entry, 0)
	for rows.Next() {
		e, err := scanCron(rows)
		if err != nil {
			return nil, fmt.Errorf("dispatch/postgres: scan cron row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispatch/postgres: iterate cron rows: %w", err)
	}
	return entries, nil
}
