package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/assaka/daino-sub010/execution"
)

const executionColumns = `id, job_id, cron_id, job_type, store_id, executed_at,
	status, duration_ms, error_message, attempt, backend`

func (s *Store) AppendExecution(ctx context.Context, r *execution.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dispatch_executions (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID.String(), nullID(r.JobID), nullID(r.CronID), r.JobType, r.StoreID, r.ExecutedAt,
		string(r.Status), r.DurationMs, r.ErrorMessage, r.Attempt, string(r.Backend),
	)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: append execution: %w", err)
	}
	return nil
}

func executionFilter(opts execution.ListOpts) *where {
	w := &where{}
	if !opts.CronID.IsNil() {
		w.add("cron_id = $%d", opts.CronID.String())
	}
	if !opts.JobID.IsNil() {
		w.add("job_id = $%d", opts.JobID.String())
	}
	if opts.Status != "" {
		w.add("status = $%d", string(opts.Status))
	}
	if !opts.From.IsZero() {
		w.add("executed_at >= $%d", opts.From)
	}
	if !opts.To.IsZero() {
		w.add("executed_at < $%d", opts.To)
	}
	return w
}

func (s *Store) ListExecutions(ctx context.Context, opts execution.ListOpts) ([]*execution.Record, error) {
	w := executionFilter(opts)
	query := `SELECT ` + executionColumns + ` FROM dispatch_executions` + w.String() +
		` ORDER BY executed_at DESC, id DESC`
	query = w.page(query, opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("dispatch/postgres: list executions: %w", err)
	}
	defer rows.Close()

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*execution.Record, error) {
		var (
			r       execution.Record
			status  string
			backend string
		)
		if err := row.Scan(
			&r.ID, &r.JobID, &r.CronID, &r.JobType, &r.StoreID, &r.ExecutedAt,
			&status, &r.DurationMs, &r.ErrorMessage, &r.Attempt, &backend,
		); err != nil {
			return nil, err
		}
		r.Status = execution.Status(status)
		r.Backend = execution.Backend(backend)
		return &r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch/postgres: scan executions: %w", err)
	}
	return records, nil
}

func (s *Store) CountExecutions(ctx context.Context, opts execution.ListOpts) (int64, error) {
	w := executionFilter(opts)
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dispatch_executions`+w.String(), w.args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("dispatch/postgres: count executions: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeExecutions(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM dispatch_executions WHERE executed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("dispatch/postgres: purge executions: %w", err)
	}
	return tag.RowsAffected(), nil
}
