package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher) error

// Storer is the lifecycle surface of a store. The engine type-asserts the
// subsystem interfaces (job.Store, cron.Store, execution.Store) from it,
// since this package cannot import them.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// runner is a background component started and stopped with the
// Dispatcher: the poller, sweeper, cron scheduler, and broker pool.
type runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type shutdownEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Dispatcher owns configuration, the store, and the lifecycle of the
// background runners. Build an engine.Engine on top of it to submit jobs.
type Dispatcher struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions shutdownEmitter
	runners    []runner

	started bool
}

// New creates a Dispatcher with DefaultConfig and the given options.
func New(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Dispatcher) Logger() *slog.Logger { return d.logger }
func (d *Dispatcher) Store() Storer        { return d.store }
func (d *Dispatcher) Config() Config       { return d.config }

// AddRunner registers a background component. Runners start in the order
// they were added and stop in reverse.
func (d *Dispatcher) AddRunner(r runner) { d.runners = append(d.runners, r) }

// SetExtensions sets the hook registry notified on shutdown.
func (d *Dispatcher) SetExtensions(e shutdownEmitter) { d.extensions = e }

// Start launches every registered runner. If one fails, the ones already
// started are stopped again.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.store == nil {
		return ErrNoStore
	}
	for i, r := range d.runners {
		if err := r.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = d.runners[j].Stop(ctx)
			}
			return fmt.Errorf("dispatch: start: %w", err)
		}
	}
	d.started = true
	return nil
}

// Stop shuts the runners down, notifies extensions, and closes the store.
func (d *Dispatcher) Stop(ctx context.Context) error {
	var errs []error
	if d.started {
		for i := len(d.runners) - 1; i >= 0; i-- {
			if err := d.runners[i].Stop(ctx); err != nil {
				d.logger.Error("runner stop error", slog.String("error", err.Error()))
				errs = append(errs, err)
			}
		}
		d.started = false
	}
	if d.extensions != nil {
		d.extensions.EmitShutdown(ctx)
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithConcurrency sets how many jobs run at once in this process.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) error {
		if n < 1 {
			return fmt.Errorf("dispatch: concurrency must be positive, got %d", n)
		}
		d.config.Concurrency = n
		return nil
	}
}

// WithTypes restricts the job types this process claims.
func WithTypes(types ...string) Option {
	return func(d *Dispatcher) error {
		d.config.Types = types
		return nil
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.PollInterval = interval
		return nil
	}
}

func WithBatchSize(n int) Option {
	return func(d *Dispatcher) error {
		if n < 1 {
			return fmt.Errorf("dispatch: batch size must be positive, got %d", n)
		}
		d.config.BatchSize = n
		return nil
	}
}

// WithTickBudget sets the wall-clock budget of one poller tick.
func WithTickBudget(budget time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.TickBudget = budget
		return nil
	}
}

func WithStaleClaimTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.StaleClaimTimeout = timeout
		return nil
	}
}

func WithSweepInterval(interval time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.SweepInterval = interval
		return nil
	}
}

func WithCronTickInterval(interval time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.CronTickInterval = interval
		return nil
	}
}

// WithRetention sets how long terminal jobs and execution records are kept.
func WithRetention(window time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.Retention = window
		return nil
	}
}

func WithShutdownTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.ShutdownTimeout = timeout
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) error {
		d.logger = l
		return nil
	}
}

// WithStore sets the persistence backend. The value is usually a
// store.Store, which embeds every subsystem store.
func WithStore(s Storer) Option {
	return func(d *Dispatcher) error {
		d.store = s
		return nil
	}
}
