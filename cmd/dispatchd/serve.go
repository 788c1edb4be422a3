package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/api"
)

type serveFlags struct {
	addr            string
	migrate         bool
	cleanupSchedule string

	concurrency       int
	types             []string
	pollInterval      time.Duration
	batchSize         int
	tickBudget        time.Duration
	staleClaimTimeout time.Duration
	sweepInterval     time.Duration
	cronTickInterval  time.Duration
	retention         time.Duration
	shutdownTimeout   time.Duration
}

func newServeCmd(a *app) *cobra.Command {
	def := dispatch.DefaultConfig()
	sf := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, poller, broker pool, sweeper and cron scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd, sf)
		},
	}

	f := cmd.Flags()
	f.StringVar(&sf.addr, "addr", ":8080", "HTTP listen address")
	f.BoolVar(&sf.migrate, "migrate", true, "apply store migrations on startup")
	f.StringVar(&sf.cleanupSchedule, "cleanup-schedule", "@daily", "cron expression for the retention cleanup job; empty disables it")
	f.IntVar(&sf.concurrency, "concurrency", def.Concurrency, "jobs executed at once")
	f.StringSliceVar(&sf.types, "types", nil, "job types to claim (default: every registered type)")
	f.DurationVar(&sf.pollInterval, "poll-interval", def.PollInterval, "database poller tick")
	f.IntVar(&sf.batchSize, "batch-size", def.BatchSize, "jobs claimed per poller tick")
	f.DurationVar(&sf.tickBudget, "tick-budget", def.TickBudget, "wall-clock budget of one poller tick")
	f.DurationVar(&sf.staleClaimTimeout, "stale-claim-timeout", def.StaleClaimTimeout, "age after which a claim is recovered")
	f.DurationVar(&sf.sweepInterval, "sweep-interval", def.SweepInterval, "stale claim sweep interval")
	f.DurationVar(&sf.cronTickInterval, "cron-tick", def.CronTickInterval, "cron scheduler tick")
	f.DurationVar(&sf.retention, "retention", def.Retention, "how long finished jobs and execution records are kept")
	f.DurationVar(&sf.shutdownTimeout, "shutdown-timeout", def.ShutdownTimeout, "graceful shutdown bound")
	return cmd
}

func (sf *serveFlags) options() []dispatch.Option {
	opts := []dispatch.Option{
		dispatch.WithConcurrency(sf.concurrency),
		dispatch.WithPollInterval(sf.pollInterval),
		dispatch.WithBatchSize(sf.batchSize),
		dispatch.WithTickBudget(sf.tickBudget),
		dispatch.WithStaleClaimTimeout(sf.staleClaimTimeout),
		dispatch.WithSweepInterval(sf.sweepInterval),
		dispatch.WithCronTickInterval(sf.cronTickInterval),
		dispatch.WithRetention(sf.retention),
		dispatch.WithShutdownTimeout(sf.shutdownTimeout),
	}
	if len(sf.types) > 0 {
		opts = append(opts, dispatch.WithTypes(sf.types...))
	}
	return opts
}

func (a *app) serve(cmd *cobra.Command, sf *serveFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := a.open(ctx, sf.options()...)
	if err != nil {
		return err
	}
	eng := s.eng

	if sf.migrate {
		if err := eng.Dispatcher().Store().Migrate(ctx); err != nil {
			_ = s.close(context.WithoutCancel(ctx))
			return err
		}
	}
	if sf.cleanupSchedule != "" {
		if err := eng.RegisterMaintenance(ctx, sf.cleanupSchedule, sf.retention); err != nil {
			_ = s.close(context.WithoutCancel(ctx))
			return err
		}
	}
	if err := eng.Start(ctx); err != nil {
		_ = s.close(context.WithoutCancel(ctx))
		return err
	}

	srv := &http.Server{
		Addr:              sf.addr,
		Handler:           api.New(eng, api.WithLogger(a.logger)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server listening", slog.String("addr", sf.addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sf.shutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), s.close(shutdownCtx))
	})
	return g.Wait()
}
