// Package engine wires the dispatch subsystems together. It owns the
// handler registry, the executor and its middleware chain, the execution
// recorder, the poller, the optional broker pool, the stale-claim sweeper
// and the cron scheduler, and exposes the Submit/GetStatus/Cancel API.
//
// This package exists to break the import cycle: the root dispatch package
// defines Entity (imported by job, cron and the stores) and so cannot
// import those packages back.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/backoff"
	"github.com/assaka/daino-sub010/broker"
	"github.com/assaka/daino-sub010/cron"
	"github.com/assaka/daino-sub010/execution"
	"github.com/assaka/daino-sub010/ext"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
	mw "github.com/assaka/daino-sub010/middleware"
	"github.com/assaka/daino-sub010/observability"
	"github.com/assaka/daino-sub010/queue"
	"github.com/assaka/daino-sub010/worker"
)

const instrumentationName = "github.com/assaka/daino-sub010"

// Engine wraps a Dispatcher with typed subsystem access.
// Use Build() to create one from a Dispatcher.
type Engine struct {
	d          *dispatch.Dispatcher
	config     dispatch.Config
	logger     *slog.Logger
	extensions *ext.Registry
	registry   *job.Registry
	workerID   id.WorkerID

	jobStore  job.Store
	cronStore cron.Store
	execStore execution.Store

	broker    broker.Broker
	bo        backoff.Strategy
	mws       []mw.Middleware
	recorder  *execution.Recorder
	executor  *worker.Executor
	sweeper   *worker.Sweeper
	scheduler *cron.Scheduler

	queueConfigs      []queue.Config
	storeQueueConfigs []queue.StoreConfig
	queueManager      *queue.Manager

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// The poller and broker pool are built on first use so they pick up
	// every handler registered after Build.
	backendsMu sync.Mutex
	poller     *worker.Poller
	pool       *worker.BrokerPool
	wired      bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's chain. It runs inside the
// default stack, right around the handler.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry backoff strategy for the engine.
// If not set, backoff.DefaultStrategy() (exponential with jitter) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithBroker enables the broker backend. Submit publishes a reference to
// every new job and a BrokerPool consumes them. The poller keeps running
// either way.
func WithBroker(b broker.Broker) Option {
	return func(eng *Engine) {
		eng.broker = b
	}
}

// WithQueueConfig registers per-job-type rate limits and concurrency caps.
// Types not listed have no limits.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(eng *Engine) {
		eng.queueConfigs = append(eng.queueConfigs, configs...)
	}
}

// WithStoreQueueConfig registers per-(type, store) limits.
func WithStoreQueueConfig(configs ...queue.StoreConfig) Option {
	return func(eng *Engine) {
		eng.storeQueueConfigs = append(eng.storeQueueConfigs, configs...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// Both the metrics middleware and the observability extension use it.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Dispatcher. The Dispatcher's
// store must implement job.Store, cron.Store and execution.Store.
func Build(d *dispatch.Dispatcher, opts ...Option) (*Engine, error) {
	logger := d.Logger()
	store := d.Store()

	if store == nil {
		return nil, dispatch.ErrNoStore
	}

	js, ok := store.(job.Store)
	if !ok {
		return nil, errors.New("dispatch: store does not implement job.Store")
	}
	cs, ok := store.(cron.Store)
	if !ok {
		return nil, errors.New("dispatch: store does not implement cron.Store")
	}
	es, ok := store.(execution.Store)
	if !ok {
		return nil, errors.New("dispatch: store does not implement execution.Store")
	}

	eng := &Engine{
		d:          d,
		config:     d.Config(),
		logger:     logger,
		extensions: ext.NewRegistry(logger),
		registry:   job.NewRegistry(),
		workerID:   id.NewWorkerID(),
		jobStore:   js,
		cronStore:  cs,
		execStore:  es,
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	var metricsMw mw.Middleware
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
		obsExt = observability.NewMetricsExtensionWithMeter(
			eng.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		metricsMw = mw.Metrics()
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// recover → tracing → metrics → logging → scope → timeout → user → handler.
	chain := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Scope(),
		mw.Timeout(logger),
	}
	chain = append(chain, eng.mws...)

	eng.recorder = execution.NewRecorder(es, logger)

	execOpts := []worker.ExecutorOption{
		worker.WithMiddleware(chain...),
		worker.WithBackoff(eng.bo),
		worker.WithExtensions(eng.extensions),
		worker.WithRecorder(eng.recorder),
		worker.WithCronResults(cs),
	}
	if len(eng.queueConfigs) > 0 || len(eng.storeQueueConfigs) > 0 {
		eng.queueManager = queue.NewManager(eng.queueConfigs...)
		for _, sc := range eng.storeQueueConfigs {
			eng.queueManager.SetStoreConfig(sc)
		}
		execOpts = append(execOpts, worker.WithQueueManager(eng.queueManager, eng.config.PollInterval))
	}
	eng.executor = worker.NewExecutor(eng.registry, js, logger, execOpts...)

	eng.sweeper = worker.NewSweeper(js, logger,
		worker.WithSweepInterval(eng.config.SweepInterval),
		worker.WithStaleAfter(eng.config.StaleClaimTimeout),
		worker.WithSweeperRecorder(eng.recorder),
		worker.WithSweeperExtensions(eng.extensions),
		worker.WithSweeperCronResults(cs),
	)

	eng.scheduler = cron.NewScheduler(cs, eng.Submit, eng.recorder, eng.extensions, logger,
		cron.WithTickInterval(eng.config.CronTickInterval),
	)

	d.SetExtensions(eng.extensions)
	return eng, nil
}

// types is the set of job types this process executes: the configured
// list, or every registered handler.
func (eng *Engine) types() []string {
	if len(eng.config.Types) > 0 {
		return eng.config.Types
	}
	return eng.registry.Types()
}

// Poller returns the database poller, creating it on first call.
func (eng *Engine) Poller() *worker.Poller {
	eng.backendsMu.Lock()
	defer eng.backendsMu.Unlock()
	if eng.poller == nil {
		eng.poller = worker.NewPoller(eng.jobStore, eng.executor, eng.logger,
			worker.WithWorkerID(eng.workerID),
			worker.WithConcurrency(eng.config.Concurrency),
			worker.WithBatchSize(eng.config.BatchSize),
			worker.WithPollInterval(eng.config.PollInterval),
			worker.WithTickBudget(eng.config.TickBudget),
			worker.WithTypes(eng.types()...),
		)
	}
	return eng.poller
}

// BrokerPool returns the broker worker pool, creating it on first call,
// or nil when no broker is configured.
func (eng *Engine) BrokerPool() *worker.BrokerPool {
	if eng.broker == nil {
		return nil
	}
	eng.backendsMu.Lock()
	defer eng.backendsMu.Unlock()
	if eng.pool == nil {
		eng.pool = worker.NewBrokerPool(eng.broker, eng.jobStore, eng.executor, eng.types(), eng.logger,
			worker.WithPoolWorkerID(eng.workerID),
			worker.WithPoolConcurrency(eng.config.Concurrency),
		)
	}
	return eng.pool
}

// Start launches the cron scheduler, the sweeper, the poller and, when a
// broker is configured, the broker pool. Register handlers before calling
// Start; a process with no handlers and no configured types only
// schedules and sweeps.
func (eng *Engine) Start(ctx context.Context) error {
	eng.backendsMu.Lock()
	wired := eng.wired
	eng.wired = true
	eng.backendsMu.Unlock()

	if !wired {
		eng.d.AddRunner(eng.scheduler)
		eng.d.AddRunner(eng.sweeper)
		if len(eng.types()) == 0 {
			eng.logger.Warn("no job handlers registered, execution disabled in this process")
		} else {
			eng.d.AddRunner(eng.Poller())
			if pool := eng.BrokerPool(); pool != nil {
				eng.d.AddRunner(pool)
			}
		}
	}

	if err := eng.d.Start(ctx); err != nil {
		return err
	}
	eng.logger.Info("dispatch engine started",
		slog.String("worker_id", eng.workerID.String()),
		slog.Any("types", eng.types()),
		slog.Bool("broker", eng.broker != nil),
	)
	return nil
}

// Stop gracefully shuts down the engine. Running handlers get
// ShutdownTimeout to finish before their context is cancelled.
func (eng *Engine) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok && eng.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eng.config.ShutdownTimeout)
		defer cancel()
	}
	if err := eng.d.Stop(ctx); err != nil {
		return fmt.Errorf("dispatch: stop: %w", err)
	}
	return nil
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Dispatcher returns the underlying Dispatcher.
func (eng *Engine) Dispatcher() *dispatch.Dispatcher { return eng.d }

// JobStore returns the job store.
func (eng *Engine) JobStore() job.Store { return eng.jobStore }

// CronStore returns the cron store.
func (eng *Engine) CronStore() cron.Store { return eng.cronStore }

// Scheduler returns the cron scheduler.
func (eng *Engine) Scheduler() *cron.Scheduler { return eng.scheduler }

// Sweeper returns the stale-claim sweeper.
func (eng *Engine) Sweeper() *worker.Sweeper { return eng.sweeper }

// Recorder returns the execution history recorder.
func (eng *Engine) Recorder() *execution.Recorder { return eng.recorder }

// WorkerID identifies this process on the jobs its poller and broker pool
// claim. Write-backs are guarded by the per-claim ClaimID, not by it.
func (eng *Engine) WorkerID() id.WorkerID { return eng.workerID }

// QueueManager returns the queue manager, or nil if no queue configs
// were provided.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }

// Ping checks the store connection.
func (eng *Engine) Ping(ctx context.Context) error {
	return eng.d.Store().Ping(ctx)
}
