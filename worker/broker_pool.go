package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/broker"
	"github.com/assaka/daino-sub010/execution"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
)

// BrokerPoolOption configures a BrokerPool.
type BrokerPoolOption func(*BrokerPool)

// WithPoolConcurrency sets how many deliveries are handled at once.
func WithPoolConcurrency(n int) BrokerPoolOption {
	return func(p *BrokerPool) { p.concurrency = n }
}

// WithPoolWorkerID sets the process identity recorded on claims.
func WithPoolWorkerID(w id.WorkerID) BrokerPoolOption {
	return func(p *BrokerPool) { p.workerID = w }
}

// WithErrorBackoff sets how long a consumer waits after a broker error.
func WithErrorBackoff(d time.Duration) BrokerPoolOption {
	return func(p *BrokerPool) { p.errorBackoff = d }
}

// BrokerPool executes jobs announced on a broker. A delivery is only a
// hint: the pool re-reads the job and claims it with the same conditional
// update the poller relies on, so a duplicate or stale message is
// acknowledged and dropped.
type BrokerPool struct {
	broker   broker.Broker
	store    job.Store
	executor *Executor
	logger   *slog.Logger
	types    []string

	workerID     id.WorkerID
	concurrency  int
	errorBackoff time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewBrokerPool creates a pool consuming types from b.
func NewBrokerPool(
	b broker.Broker,
	store job.Store,
	executor *Executor,
	types []string,
	logger *slog.Logger,
	opts ...BrokerPoolOption,
) *BrokerPool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &BrokerPool{
		broker:       b,
		store:        store,
		executor:     executor,
		logger:       logger,
		types:        types,
		workerID:     id.NewWorkerID(),
		concurrency:  4,
		errorBackoff: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches one consumer goroutine per concurrency slot.
func (p *BrokerPool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	if len(p.types) == 0 {
		p.logger.Warn("broker pool has no job types to consume, not starting")
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})

	var ctx context.Context
	ctx, p.cancel = context.WithCancel(context.Background())

	p.logger.Info("broker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.Any("types", p.types),
	)
	for range p.concurrency {
		p.wg.Add(1)
		go p.consume(ctx, p.stopCh)
	}
	return nil
}

// Stop ends the consumers. A consumer blocked in Receive is interrupted;
// one running a job finishes it unless ctx expires first.
func (p *BrokerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("broker pool shutdown timed out, cancelling running jobs")
	}
	p.cancel()
	<-done
	return nil
}

func (p *BrokerPool) consume(ctx context.Context, stopCh <-chan struct{}) {
	defer p.wg.Done()

	// Receive is interrupted on stop, Handle is not.
	recvCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-recvCtx.Done():
		}
	}()

	for {
		if stopping(stopCh) {
			return
		}
		deliveries, err := p.broker.Receive(recvCtx, p.types, 1)
		if err != nil {
			if recvCtx.Err() != nil {
				return
			}
			p.logger.Warn("broker receive failed", slog.String("error", err.Error()))
			select {
			case <-stopCh:
				return
			case <-time.After(p.errorBackoff):
			}
			continue
		}
		for _, d := range deliveries {
			p.Handle(ctx, d)
		}
	}
}

// Handle processes one delivery. It acknowledges the delivery unless the
// store could not be read or written, in which case the broker may
// redeliver it later.
func (p *BrokerPool) Handle(ctx context.Context, d broker.Delivery) {
	log := p.logger.With(
		slog.String("job_id", d.Ref.JobID.String()),
		slog.String("job_type", d.Ref.Type),
	)

	j, err := p.store.GetJob(ctx, d.Ref.JobID)
	switch {
	case errors.Is(err, dispatch.ErrJobNotFound):
		log.Debug("delivery for unknown job, dropping")
		p.ack(ctx, d)
		return
	case err != nil:
		log.Warn("read job for delivery failed", slog.String("error", err.Error()))
		return
	}

	if j.Status != job.StatusPending {
		log.Debug("duplicate delivery, job not pending", slog.String("status", string(j.Status)))
		p.ack(ctx, d)
		return
	}
	if j.RunAt.After(time.Now()) {
		// Not due yet; the poller claims it at run_at.
		p.ack(ctx, d)
		return
	}

	claimed, err := p.store.ClaimJob(ctx, j.ID, p.workerID)
	switch {
	case errors.Is(err, dispatch.ErrClaimLost):
		log.Debug("job claimed elsewhere, dropping delivery")
		p.ack(ctx, d)
		return
	case err != nil:
		log.Warn("claim job for delivery failed", slog.String("error", err.Error()))
		return
	}

	if err := p.executor.Execute(ctx, claimed, execution.BackendBroker); err != nil {
		log.Warn("job execution not persisted", slog.String("error", err.Error()))
	}
	p.ack(ctx, d)
}

func (p *BrokerPool) ack(ctx context.Context, d broker.Delivery) {
	if err := p.broker.Ack(context.WithoutCancel(ctx), d); err != nil {
		p.logger.Warn("broker ack failed",
			slog.String("message_id", d.ID),
			slog.String("error", err.Error()),
		)
	}
}
