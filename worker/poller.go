package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/assaka/daino-sub010/execution"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
)

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithConcurrency sets how many claimed jobs run at once.
func WithConcurrency(n int) PollerOption {
	return func(p *Poller) { p.concurrency = n }
}

// WithBatchSize sets the maximum number of jobs held per tick, carried
// jobs included.
func WithBatchSize(n int) PollerOption {
	return func(p *Poller) { p.batchSize = n }
}

// WithPollInterval sets the tick interval.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.pollInterval = d }
}

// WithTickBudget sets the wall-clock budget of one tick. Jobs not started
// within it stay claimed and run first on the next tick, and a tick stops
// waiting for the jobs it started once the budget is spent.
func WithTickBudget(d time.Duration) PollerOption {
	return func(p *Poller) { p.tickBudget = d }
}

// WithTypes restricts claims to these job types.
func WithTypes(types ...string) PollerOption {
	return func(p *Poller) { p.types = types }
}

// WithWorkerID sets the process identity recorded on claims. Each Poller
// gets a fresh one by default.
func WithWorkerID(w id.WorkerID) PollerOption {
	return func(p *Poller) { p.workerID = w }
}

// Poller claims due jobs from the store on a fixed interval and runs them
// through the Executor. It is the fallback backend and always runs.
//
// Execution slots belong to the poller, not to a tick: a job that outlives
// its tick keeps its slot and later ticks only claim into the free ones.
type Poller struct {
	store    job.Store
	executor *Executor
	logger   *slog.Logger

	workerID     id.WorkerID
	concurrency  int
	batchSize    int
	pollInterval time.Duration
	tickBudget   time.Duration
	types        []string

	slots   *semaphore.Weighted
	active  atomic.Int64
	running sync.WaitGroup

	// tickMu serializes ticks and guards carry.
	tickMu sync.Mutex
	carry  []*job.Job

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	runCtx  context.Context
	cancel  context.CancelFunc
}

// NewPoller creates a Poller.
func NewPoller(store job.Store, executor *Executor, logger *slog.Logger, opts ...PollerOption) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		store:        store,
		executor:     executor,
		logger:       logger,
		workerID:     id.NewWorkerID(),
		concurrency:  4,
		batchSize:    20,
		pollInterval: 5 * time.Second,
		tickBudget:   50 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	if p.batchSize < 1 {
		p.batchSize = 1
	}
	p.slots = semaphore.NewWeighted(int64(p.concurrency))
	return p
}

// WorkerID returns the identity recorded on jobs this poller claims.
func (p *Poller) WorkerID() id.WorkerID { return p.workerID }

// Start launches the poll loop. It returns immediately.
func (p *Poller) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.runCtx, p.cancel = context.WithCancel(context.Background())

	p.logger.Info("poller starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.Int("batch_size", p.batchSize),
		slog.Duration("poll_interval", p.pollInterval),
		slog.Any("types", p.types),
	)

	p.wg.Add(1)
	go p.loop(p.runCtx, p.stopCh)
	return nil
}

// Stop ends the loop and waits for running jobs. If ctx expires first the
// handlers' context is cancelled. Carried jobs that never started are
// released to pending without spending a retry.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	close(p.stopCh)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		p.running.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("poller shutdown timed out, cancelling running jobs")
		p.cancel()
		<-done
	}
	p.cancel()

	return p.releaseCarry(context.WithoutCancel(ctx))
}

func (p *Poller) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := p.tick(ctx, stopCh); err != nil {
			p.logger.Error("poll tick failed", slog.String("error", err.Error()))
		}
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one poll cycle: carried jobs first, then a fresh claim for the
// free slots. It returns how many jobs were started. Tick waits for the
// jobs it started until the tick budget is spent; jobs still running then
// continue in the background with ctx.
func (p *Poller) Tick(ctx context.Context) (int, error) {
	return p.tick(ctx, nil)
}

func (p *Poller) tick(ctx context.Context, stopCh <-chan struct{}) (int, error) {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	deadline := time.Now().Add(p.tickBudget)

	batch := p.carry
	p.carry = nil

	free := p.concurrency - int(p.active.Load())
	if room := min(p.batchSize, free) - len(batch); room > 0 {
		claimed, err := p.store.ClaimJobs(ctx, job.ClaimOpts{
			Limit:    room,
			WorkerID: p.workerID,
			Types:    p.types,
		})
		if err != nil {
			if len(batch) == 0 {
				return 0, fmt.Errorf("claim jobs: %w", err)
			}
			p.logger.Error("claim jobs failed, running carried jobs only", slog.String("error", err.Error()))
		}
		batch = append(batch, claimed...)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	// Waiting for a slot ends with the budget.
	slotCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var (
		tickJobs sync.WaitGroup
		begun    int
	)
	for i, j := range batch {
		if err := p.slots.Acquire(slotCtx, 1); err != nil {
			p.carry = append(p.carry, batch[i:]...)
			break
		}
		if stopping(stopCh) || !time.Now().Before(deadline) {
			p.slots.Release(1)
			p.carry = append(p.carry, batch[i:]...)
			break
		}

		begun++
		p.active.Add(1)
		p.running.Add(1)
		tickJobs.Add(1)
		go func() {
			defer tickJobs.Done()
			defer p.running.Done()
			defer p.active.Add(-1)
			defer p.slots.Release(1)
			p.run(ctx, j)
		}()
	}

	if begun > 0 && !waitUntil(&tickJobs, deadline) {
		p.logger.Warn("tick budget spent with jobs still running, continuing without them",
			slog.Int("running", int(p.active.Load())),
		)
	}
	if len(p.carry) > 0 {
		p.logger.Info("tick budget exhausted, carrying jobs to next tick",
			slog.Int("started", begun),
			slog.Int("carried", len(p.carry)),
		)
	}
	return begun, nil
}

func (p *Poller) run(ctx context.Context, j *job.Job) {
	if err := p.executor.Execute(ctx, j, execution.BackendPoller); err != nil {
		p.logger.Warn("job execution not persisted",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("error", err.Error()),
		)
	}
}

// waitUntil waits for wg until deadline and reports whether it finished.
func waitUntil(wg *sync.WaitGroup, deadline time.Time) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Running returns how many jobs started by this poller are executing.
func (p *Poller) Running() int { return int(p.active.Load()) }

// Carried returns how many claimed jobs wait for the next tick.
func (p *Poller) Carried() int {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()
	return len(p.carry)
}

func (p *Poller) releaseCarry(ctx context.Context) error {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()
	if len(p.carry) == 0 {
		return nil
	}

	if err := p.store.ReleaseJobs(ctx, p.carry, time.Now().UTC()); err != nil {
		return fmt.Errorf("release carried jobs: %w", err)
	}
	p.logger.Info("released carried jobs", slog.Int("count", len(p.carry)))
	p.carry = nil
	return nil
}

func stopping(stopCh <-chan struct{}) bool {
	if stopCh == nil {
		return false
	}
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}
