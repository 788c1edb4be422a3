package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/execution"
	"github.com/assaka/daino-sub010/ext"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
)

// StaleClaimMessage is the error message set on jobs recovered by the
// sweeper.
const StaleClaimMessage = "stale claim timeout"

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets how often stale claims are looked for.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.interval = d }
}

// WithStaleAfter sets how long a job may stay claimed or running before
// its claim is considered abandoned.
func WithStaleAfter(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.threshold = d }
}

// WithSweeperRecorder sets where recovery history is appended.
func WithSweeperRecorder(r Recorder) SweeperOption {
	return func(s *Sweeper) { s.recorder = r }
}

// WithSweeperExtensions sets the hook registry.
func WithSweeperExtensions(x *ext.Registry) SweeperOption {
	return func(s *Sweeper) { s.extensions = x }
}

// WithSweeperCronResults counts jobs failed by the sweeper against their
// cron definition.
func WithSweeperCronResults(c CronResults) SweeperOption {
	return func(s *Sweeper) { s.crons = c }
}

// WithSweeperClock overrides the time source used for the cutoff.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// Sweeper recovers jobs whose executor crashed or hung. A recovered job
// spends one retry; one with no retries left fails.
type Sweeper struct {
	store      job.Store
	logger     *slog.Logger
	recorder   Recorder
	extensions *ext.Registry
	crons      CronResults

	interval  time.Duration
	threshold time.Duration
	now       func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSweeper creates a Sweeper.
func NewSweeper(store job.Store, logger *slog.Logger, opts ...SweeperOption) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		store:     store,
		logger:    logger,
		interval:  time.Minute,
		threshold: 10 * time.Minute,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.extensions == nil {
		s.extensions = ext.NewRegistry(logger)
	}
	return s
}

// Start launches the sweep loop.
func (s *Sweeper) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.loop(s.stopCh)
	return nil
}

// Stop ends the sweep loop.
func (s *Sweeper) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Sweeper) loop(stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if _, err := s.Sweep(context.Background()); err != nil {
				s.logger.Error("stale claim sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep recovers every job claimed longer than the threshold and returns
// how many were reset or failed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.threshold)
	stale, err := s.store.ListStaleJobs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}

	recovered := 0
	for _, j := range stale {
		if s.recover(ctx, j) {
			recovered++
		}
	}
	return recovered, nil
}

func (s *Sweeper) recover(ctx context.Context, j *job.Job) bool {
	holder := j.ClaimID
	staleWorker := j.WorkerID
	attempt := j.Attempt()
	now := s.now()

	j.ErrorMessage = StaleClaimMessage
	status := execution.StatusRecovered
	if j.RetryCount < j.MaxRetries {
		j.RetryCount++
		j.Status = job.StatusPending
		j.RunAt = now
		j.WorkerID = id.Nil
		j.ClaimID = id.Nil
		j.StartedAt = nil
	} else {
		j.Status = job.StatusFailed
		j.CompletedAt = &now
		status = execution.StatusFailed
	}

	// Guarded by the stale claim: if the executor finished in the
	// meantime the write is rejected and the job is left alone.
	if err := s.store.FinishJob(ctx, j, holder); err != nil {
		if errors.Is(err, dispatch.ErrClaimLost) {
			s.logger.Debug("stale job finished before recovery",
				slog.String("job_id", j.ID.String()),
			)
		} else {
			s.logger.Error("recover stale job failed",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		return false
	}

	if s.recorder != nil {
		s.recorder.Record(ctx, &execution.Record{
			JobID:        j.ID,
			CronID:       j.CronID,
			JobType:      j.Type,
			StoreID:      j.StoreID,
			Status:       status,
			ErrorMessage: StaleClaimMessage,
			Attempt:      attempt,
			Backend:      execution.BackendSweeper,
		})
	}

	if status == execution.StatusRecovered {
		s.extensions.EmitJobRecovered(ctx, j)
	} else {
		s.extensions.EmitJobFailed(ctx, j, errors.New(StaleClaimMessage))
		if s.crons != nil && !j.CronID.IsNil() {
			if err := s.crons.RecordCronResult(ctx, j.CronID, false, StaleClaimMessage); err != nil {
				s.logger.Warn("record cron result failed", slog.String("error", err.Error()))
			}
		}
	}

	s.logger.Warn("recovered stale claim",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.String("worker_id", staleWorker.String()),
		slog.String("claim_id", holder.String()),
		slog.String("status", string(j.Status)),
		slog.Int("retry_count", j.RetryCount),
	)
	return true
}
