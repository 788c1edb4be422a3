package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/assaka/daino-sub010/execution"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
)

// SubmitFunc materializes a job. The engine supplies it so this package
// does not depend on the engine.
type SubmitFunc func(ctx context.Context, jobType string, payload []byte, opts ...job.Option) (*job.Job, error)

// Emitter receives cron lifecycle events. ext.Registry satisfies it.
type Emitter interface {
	EmitCronFired(ctx context.Context, e *Entry, jobID id.JobID)
}

// Recorder appends execution history. *execution.Recorder satisfies it.
type Recorder interface {
	Record(ctx context.Context, rec *execution.Record)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often due definitions are evaluated.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithClock overrides the wall clock used to decide what is due and to
// compute next_run_at.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler materializes due cron definitions into jobs.
//
// Every process may run a scheduler. A definition fires only for the
// caller whose AdvanceCron wins the compare-and-set on next_run_at, so
// concurrent ticks across processes produce one job per due run.
type Scheduler struct {
	store    Store
	submit   SubmitFunc
	recorder Recorder
	emitter  Emitter
	logger   *slog.Logger

	tickInterval time.Duration
	now          func() time.Time

	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler. recorder and emitter may be nil.
func NewScheduler(
	store Store,
	submit SubmitFunc,
	recorder Recorder,
	emitter Emitter,
	logger *slog.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:        store,
		submit:       submit,
		recorder:     recorder,
		emitter:      emitter,
		logger:       logger,
		tickInterval: time.Minute,
		now:          func() time.Time { return time.Now().UTC() },
		parsed:       make(map[string]cronlib.Schedule),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the tick loop. It returns immediately.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("cron scheduler started", slog.Duration("tick_interval", s.tickInterval))
	return nil
}

// Stop ends the tick loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
	return nil
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.Tick(context.Background()); err != nil {
				s.logger.Error("cron tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Tick evaluates every due definition once and returns how many jobs were
// materialized. Only a failure to list definitions is returned; problems
// with a single definition are logged and recorded against it.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.now()

	due, err := s.store.ListDueCrons(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due crons: %w", err)
	}

	fired := 0
	for _, e := range due {
		if e.IsPaused {
			s.logger.Debug("cron paused, skipping",
				slog.String("cron_name", e.Name),
				slog.String("cron_id", e.ID.String()),
			)
			continue
		}
		if s.fire(ctx, e, now) {
			fired++
		}
	}
	return fired, nil
}

// fire handles one definition. A panic here is contained to the
// definition so the rest of the tick proceeds.
func (s *Scheduler) fire(ctx context.Context, e *Entry, now time.Time) (fired bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cron definition panicked",
				slog.String("cron_name", e.Name),
				slog.Any("panic", r),
			)
			s.fail(ctx, e, fmt.Sprintf("panic: %v", r))
			fired = false
		}
	}()

	sched, err := s.schedule(e.Expression)
	if err != nil {
		s.invalidate(ctx, e, err)
		return false
	}

	// next_run_at is recomputed from now, not from the previous value, so a
	// scheduler that was down for hours fires once instead of catching up.
	next := sched.Next(now).UTC()
	won, err := s.store.AdvanceCron(ctx, e.ID, *e.NextRunAt, next, now)
	if err != nil {
		s.logger.Error("advance cron failed",
			slog.String("cron_name", e.Name),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !won {
		s.logger.Debug("cron already advanced by another tick", slog.String("cron_name", e.Name))
		return false
	}

	start := time.Now()
	j, err := s.submit(ctx, e.JobType, e.Configuration, e.JobOptions()...)
	elapsed := time.Since(start)
	if err != nil {
		s.logger.Error("cron materialization failed",
			slog.String("cron_name", e.Name),
			slog.String("job_type", e.JobType),
			slog.String("error", err.Error()),
		)
		s.fail(ctx, e, err.Error())
		return false
	}

	s.record(ctx, &execution.Record{
		JobID:      j.ID,
		CronID:     e.ID,
		JobType:    e.JobType,
		StoreID:    e.StoreID,
		Status:     execution.StatusMaterialized,
		DurationMs: elapsed.Milliseconds(),
		Attempt:    1,
		Backend:    execution.BackendScheduler,
	})

	if s.emitter != nil {
		s.emitter.EmitCronFired(ctx, e, j.ID)
	}

	s.logger.Info("cron fired",
		slog.String("cron_name", e.Name),
		slog.String("job_type", e.JobType),
		slog.String("job_id", j.ID.String()),
		slog.Time("next_run_at", next),
	)
	return true
}

func (s *Scheduler) invalidate(ctx context.Context, e *Entry, parseErr error) {
	s.logger.Error("invalid cron expression, definition disabled until corrected",
		slog.String("cron_name", e.Name),
		slog.String("cron_expression", e.Expression),
		slog.String("error", parseErr.Error()),
	)
	if err := s.store.MarkCronInvalid(ctx, e.ID, parseErr.Error()); err != nil {
		s.logger.Error("mark cron invalid failed",
			slog.String("cron_name", e.Name),
			slog.String("error", err.Error()),
		)
	}
	s.record(ctx, &execution.Record{
		CronID:       e.ID,
		JobType:      e.JobType,
		StoreID:      e.StoreID,
		Status:       execution.StatusSkipped,
		ErrorMessage: parseErr.Error(),
		Backend:      execution.BackendScheduler,
	})
}

func (s *Scheduler) fail(ctx context.Context, e *Entry, msg string) {
	if err := s.store.RecordCronResult(ctx, e.ID, false, msg); err != nil {
		s.logger.Error("record cron failure failed",
			slog.String("cron_name", e.Name),
			slog.String("error", err.Error()),
		)
	}
	s.record(ctx, &execution.Record{
		CronID:       e.ID,
		JobType:      e.JobType,
		StoreID:      e.StoreID,
		Status:       execution.StatusFailed,
		ErrorMessage: msg,
		Backend:      execution.BackendScheduler,
	})
}

func (s *Scheduler) record(ctx context.Context, rec *execution.Record) {
	if s.recorder != nil {
		s.recorder.Record(ctx, rec)
	}
}

// schedule returns the parsed expression, caching successful parses.
func (s *Scheduler) schedule(expr string) (cronlib.Schedule, error) {
	s.parsedMu.RLock()
	sched, ok := s.parsed[expr]
	s.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	s.parsedMu.Lock()
	s.parsed[expr] = sched
	s.parsedMu.Unlock()
	return sched, nil
}
