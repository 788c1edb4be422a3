package sqlite

import (
	"context"
	"fmt"
	"time"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/cron"
	"github.com/assaka/daino-sub010/id"
)

func (s *Store) CreateCron(ctx context.Context, e *cron.Entry) error {
	_, err := s.db.NewInsert().Model(toCronModel(e)).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return dispatch.ErrDuplicateCron
		}
		return fmt.Errorf("dispatch/sqlite: create cron: %w", err)
	}
	return nil
}

func (s *Store) GetCron(ctx context.Context, cronID id.CronID) (*cron.Entry, error) {
	return s.getCron(ctx, "id = ?", cronID.String())
}

func (s *Store) GetCronByName(ctx context.Context, name string) (*cron.Entry, error) {
	return s.getCron(ctx, "name = ?", name)
}

func (s *Store) getCron(ctx context.Context, cond string, arg any) (*cron.Entry, error) {
	m := new(cronModel)
	if err := s.db.NewSelect().Model(m).Where(cond, arg).Limit(1).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, dispatch.ErrCronNotFound
		}
		return nil, fmt.Errorf("dispatch/sqlite: get cron: %w", err)
	}
	return fromCronModel(m)
}

func (s *Store) ListCrons(ctx context.Context) ([]*cron.Entry, error) {
	var models []cronModel
	if err := s.db.NewSelect().Model(&models).OrderExpr("name ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("dispatch/sqlite: list crons: %w", err)
	}
	return fromCronModels(models)
}

func (s *Store) ListDueCrons(ctx context.Context, now time.Time) ([]*cron.Entry, error) {
	var models []cronModel
	err := s.db.NewSelect().Model(&models).
		Where("is_active = ?", true).
		Where("next_run_at IS NOT NULL").
		Where("next_run_at <= ?", now.UTC()).
		OrderExpr("next_run_at ASC, name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch/sqlite: list due crons: %w", err)
	}
	return fromCronModels(models)
}

func (s *Store) UpdateCron(ctx context.Context, e *cron.Entry, expected *time.Time) error {
	q := s.db.NewUpdate().
		TableExpr("dispatch_crons").
		Set("name = ?", e.Name).
		Set("expression = ?", e.Expression).
		Set("job_type = ?", e.JobType).
		Set("configuration = ?", []byte(e.Configuration)).
		Set("store_id = ?", e.StoreID).
		Set("priority = ?", string(e.Priority)).
		Set("max_retries = ?", e.MaxRetries).
		Set("is_active = ?", e.IsActive).
		Set("is_paused = ?", e.IsPaused).
		Set("next_run_at = ?", utcPtr(e.NextRunAt)).
		Set("last_error = ?", e.LastError).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", e.ID.String())
	if expected == nil {
		q = q.Where("next_run_at IS NULL")
	} else {
		q = q.Where("next_run_at = ?", expected.UTC())
	}
	res, err := q.Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return dispatch.ErrDuplicateCron
		}
		return fmt.Errorf("dispatch/sqlite: update cron: %w", err)
	}
	if !affected(res) {
		if _, err := s.GetCron(ctx, e.ID); err != nil {
			return err
		}
		return dispatch.ErrCronConflict
	}
	return nil
}

func (s *Store) DeleteCron(ctx context.Context, cronID id.CronID) error {
	res, err := s.db.NewDelete().TableExpr("dispatch_crons").Where("id = ?", cronID.String()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("dispatch/sqlite: delete cron: %w", err)
	}
	if !affected(res) {
		return dispatch.ErrCronNotFound
	}
	return nil
}

func (s *Store) AdvanceCron(ctx context.Context, cronID id.CronID, expected, next, ranAt time.Time) (bool, error) {
	res, err := s.db.NewUpdate().
		TableExpr("dispatch_crons").
		Set("next_run_at = ?", next.UTC()).
		Set("last_run_at = ?", ranAt.UTC()).
		Set("run_count = run_count + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", cronID.String()).
		Where("next_run_at = ?", expected.UTC()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("dispatch/sqlite: advance cron: %w", err)
	}
	if affected(res) {
		return true, nil
	}
	if _, err := s.GetCron(ctx, cronID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) MarkCronInvalid(ctx context.Context, cronID id.CronID, reason string) error {
	res, err := s.db.NewUpdate().
		TableExpr("dispatch_crons").
		Set("next_run_at = NULL").
		Set("last_error = ?", reason).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", cronID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dispatch/sqlite: mark cron invalid: %w", err)
	}
	if !affected(res) {
		return dispatch.ErrCronNotFound
	}
	return nil
}

func (s *Store) RecordCronResult(ctx context.Context, cronID id.CronID, succeeded bool, errMsg string) error {
	q := s.db.NewUpdate().TableExpr("dispatch_crons")
	if succeeded {
		q = q.Set("success_count = success_count + 1").Set("last_error = ''")
	} else {
		q = q.Set("failure_count = failure_count + 1").Set("last_error = ?", errMsg)
	}
	res, err := q.Set("updated_at = ?", time.Now().UTC()).Where("id = ?", cronID.String()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("dispatch/sqlite: record cron result: %w", err)
	}
	if !affected(res) {
		return dispatch.ErrCronNotFound
	}
	return nil
}

func fromCronModels(models []cronModel) ([]*cron.Entry, error) {
	entries := make([]*cron.Entry, 0, len(models))
	for i := range models {
		e, err := fromCronModel(&models[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
