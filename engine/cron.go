package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/cron"
	"github.com/assaka/daino-sub010/execution"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
)

// CronSpec describes a new cron definition.
type CronSpec struct {
	Name          string          `json:"name"`
	Expression    string          `json:"cron_expression"`
	JobType       string          `json:"job_type"`
	Configuration json.RawMessage `json:"configuration,omitempty"`
	StoreID       string          `json:"store_id,omitempty"`
	Priority      job.Priority    `json:"priority,omitempty"`
	MaxRetries    int             `json:"max_retries,omitempty"`

	// IsActive defaults to true.
	IsActive *bool `json:"is_active,omitempty"`
	IsPaused bool  `json:"is_paused,omitempty"`
}

// CronPatch changes an existing definition. Nil fields are left as they
// are.
type CronPatch struct {
	Name          *string         `json:"name,omitempty"`
	Expression    *string         `json:"cron_expression,omitempty"`
	JobType       *string         `json:"job_type,omitempty"`
	Configuration json.RawMessage `json:"configuration,omitempty"`
	StoreID       *string         `json:"store_id,omitempty"`
	Priority      *job.Priority   `json:"priority,omitempty"`
	MaxRetries    *int            `json:"max_retries,omitempty"`
}

// CreateCron validates spec and persists a definition whose first run is
// the next activation after now. Names are unique; a taken one yields
// dispatch.ErrDuplicateCron.
func (eng *Engine) CreateCron(ctx context.Context, spec CronSpec) (*cron.Entry, error) {
	if spec.Name == "" {
		return nil, dispatch.ErrEmptyCronName
	}
	if spec.JobType == "" {
		return nil, dispatch.ErrEmptyJobType
	}
	priority, err := job.ParsePriority(string(spec.Priority))
	if err != nil {
		return nil, err
	}
	next, err := cron.NextRun(spec.Expression, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	e := &cron.Entry{
		Entity:        dispatch.NewEntity(),
		ID:            id.NewCronID(),
		Name:          spec.Name,
		Expression:    spec.Expression,
		JobType:       spec.JobType,
		Configuration: spec.Configuration,
		StoreID:       spec.StoreID,
		Priority:      priority,
		MaxRetries:    max(spec.MaxRetries, 0),
		IsActive:      spec.IsActive == nil || *spec.IsActive,
		IsPaused:      spec.IsPaused,
		NextRunAt:     &next,
	}
	if len(e.Configuration) == 0 {
		e.Configuration = json.RawMessage("{}")
	}

	if err := eng.cronStore.CreateCron(ctx, e); err != nil {
		return nil, fmt.Errorf("create cron %q: %w", spec.Name, err)
	}

	eng.logger.Info("cron created",
		slog.String("cron_name", e.Name),
		slog.String("cron_expression", e.Expression),
		slog.String("job_type", e.JobType),
		slog.Time("next_run_at", next),
	)
	return e, nil
}

// UpdateCron applies patch. Changing the expression revalidates it,
// recomputes next_run_at from now and clears last_error, which also
// re-enables a definition the scheduler disabled for a bad expression.
func (eng *Engine) UpdateCron(ctx context.Context, cronID id.CronID, patch CronPatch) (*cron.Entry, error) {
	return eng.modifyCron(ctx, cronID, "cron updated", func(e *cron.Entry) error {
		if patch.Name != nil {
			if *patch.Name == "" {
				return dispatch.ErrEmptyCronName
			}
			e.Name = *patch.Name
		}
		if patch.JobType != nil {
			if *patch.JobType == "" {
				return dispatch.ErrEmptyJobType
			}
			e.JobType = *patch.JobType
		}
		if patch.Configuration != nil {
			e.Configuration = patch.Configuration
		}
		if patch.StoreID != nil {
			e.StoreID = *patch.StoreID
		}
		if patch.Priority != nil {
			p, err := job.ParsePriority(string(*patch.Priority))
			if err != nil {
				return err
			}
			e.Priority = p
		}
		if patch.MaxRetries != nil {
			e.MaxRetries = max(*patch.MaxRetries, 0)
		}
		if patch.Expression != nil {
			next, err := cron.NextRun(*patch.Expression, time.Now().UTC())
			if err != nil {
				return err
			}
			e.Expression = *patch.Expression
			e.NextRunAt = &next
			e.LastError = ""
		}
		return nil
	})
}

// DeleteCron removes a definition. Jobs it already produced are kept.
func (eng *Engine) DeleteCron(ctx context.Context, cronID id.CronID) error {
	if err := eng.cronStore.DeleteCron(ctx, cronID); err != nil {
		return err
	}
	eng.logger.Info("cron deleted", slog.String("cron_id", cronID.String()))
	return nil
}

// PauseCron stops materialization while keeping the schedule.
func (eng *Engine) PauseCron(ctx context.Context, cronID id.CronID) (*cron.Entry, error) {
	return eng.setCronFlags(ctx, cronID, "cron paused", func(e *cron.Entry) { e.IsPaused = true })
}

// ResumeCron undoes PauseCron. A run that came due while paused fires on
// the next tick, once.
func (eng *Engine) ResumeCron(ctx context.Context, cronID id.CronID) (*cron.Entry, error) {
	return eng.setCronFlags(ctx, cronID, "cron resumed", func(e *cron.Entry) { e.IsPaused = false })
}

// ActivateCron makes an inactive definition eligible again. next_run_at is
// recomputed from now so runs missed while inactive are not replayed.
func (eng *Engine) ActivateCron(ctx context.Context, cronID id.CronID) (*cron.Entry, error) {
	return eng.setCronFlags(ctx, cronID, "cron activated", func(e *cron.Entry) {
		e.IsActive = true
		if next, err := cron.NextRun(e.Expression, time.Now().UTC()); err == nil {
			e.NextRunAt = &next
		}
	})
}

// DeactivateCron removes a definition from evaluation without deleting it.
func (eng *Engine) DeactivateCron(ctx context.Context, cronID id.CronID) (*cron.Entry, error) {
	return eng.setCronFlags(ctx, cronID, "cron deactivated", func(e *cron.Entry) { e.IsActive = false })
}

func (eng *Engine) setCronFlags(ctx context.Context, cronID id.CronID, msg string, apply func(*cron.Entry)) (*cron.Entry, error) {
	return eng.modifyCron(ctx, cronID, msg, func(e *cron.Entry) error {
		apply(e)
		return nil
	})
}

// cronWriteAttempts bounds how often an edit is reapplied after losing a
// race with the scheduler.
const cronWriteAttempts = 3

// modifyCron reads the definition, applies change and writes it back only
// if next_run_at did not move in between. When the scheduler advanced it
// meanwhile, the edit is reapplied to the fresh row.
func (eng *Engine) modifyCron(ctx context.Context, cronID id.CronID, msg string, change func(*cron.Entry) error) (*cron.Entry, error) {
	var err error
	for range cronWriteAttempts {
		var e *cron.Entry
		e, err = eng.cronStore.GetCron(ctx, cronID)
		if err != nil {
			return nil, err
		}
		var expected *time.Time
		if e.NextRunAt != nil {
			t := *e.NextRunAt
			expected = &t
		}

		if err := change(e); err != nil {
			return nil, err
		}
		e.UpdatedAt = time.Now().UTC()

		err = eng.cronStore.UpdateCron(ctx, e, expected)
		if errors.Is(err, dispatch.ErrCronConflict) {
			eng.logger.Debug("cron moved during edit, reapplying",
				slog.String("cron_id", cronID.String()),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update cron %q: %w", e.Name, err)
		}

		eng.logger.Info(msg,
			slog.String("cron_name", e.Name),
			slog.String("cron_id", e.ID.String()),
			slog.String("state", string(e.State())),
		)
		return e, nil
	}
	return nil, fmt.Errorf("update cron %s: %w", cronID, err)
}

// GetCron returns one definition.
func (eng *Engine) GetCron(ctx context.Context, cronID id.CronID) (*cron.Entry, error) {
	return eng.cronStore.GetCron(ctx, cronID)
}

// GetCronByName returns the definition with the given name.
func (eng *Engine) GetCronByName(ctx context.Context, name string) (*cron.Entry, error) {
	return eng.cronStore.GetCronByName(ctx, name)
}

// ListCrons returns every definition ordered by name.
func (eng *Engine) ListCrons(ctx context.Context) ([]*cron.Entry, error) {
	return eng.cronStore.ListCrons(ctx)
}

// ListExecutions returns one page of execution history, most recent first.
func (eng *Engine) ListExecutions(ctx context.Context, opts execution.ListOpts) (*execution.Page, error) {
	return eng.recorder.List(ctx, opts)
}
