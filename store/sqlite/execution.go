package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/assaka/daino-sub010/execution"
)

func (s *Store) AppendExecution(ctx context.Context, r *execution.Record) error {
	if _, err := s.db.NewInsert().Model(toExecutionModel(r)).Exec(ctx); err != nil {
		return fmt.Errorf("dispatch/sqlite: append execution: %w", err)
	}
	return nil
}

func executionFilter(q *bun.SelectQuery, opts execution.ListOpts) *bun.SelectQuery {
	if !opts.CronID.IsNil() {
		q = q.Where("cron_id = ?", opts.CronID.String())
	}
	if !opts.JobID.IsNil() {
		q = q.Where("job_id = ?", opts.JobID.String())
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if !opts.From.IsZero() {
		q = q.Where("executed_at >= ?", opts.From.UTC())
	}
	if !opts.To.IsZero() {
		q = q.Where("executed_at < ?", opts.To.UTC())
	}
	return q
}

func (s *Store) ListExecutions(ctx context.Context, opts execution.ListOpts) ([]*execution.Record, error) {
	var models []executionModel
	q := executionFilter(s.db.NewSelect().Model(&models), opts).OrderExpr("executed_at DESC, id DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dispatch/sqlite: list executions: %w", err)
	}

	records := make([]*execution.Record, 0, len(models))
	for i := range models {
		r, err := fromExecutionModel(&models[i])
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func (s *Store) CountExecutions(ctx context.Context, opts execution.ListOpts) (int64, error) {
	n, err := executionFilter(s.db.NewSelect().Model((*executionModel)(nil)), opts).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("dispatch/sqlite: count executions: %w", err)
	}
	return int64(n), nil
}

func (s *Store) PurgeExecutions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		TableExpr("dispatch_executions").
		Where("executed_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("dispatch/sqlite: purge executions: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // sqlite3 always reports it
	return n, nil
}
