package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/broker"
	redisbroker "github.com/assaka/daino-sub010/broker/redis"
	"github.com/assaka/daino-sub010/engine"
	"github.com/assaka/daino-sub010/store/memory"
	"github.com/assaka/daino-sub010/store/postgres"
	"github.com/assaka/daino-sub010/store/sqlite"
)

const defaultSQLitePath = "dispatch.db"

// app carries the persistent flags shared by every subcommand.
type app struct {
	driver    string
	dsn       string
	redisURL  string
	logLevel  string
	logFormat string

	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "dispatchd",
		Short:        "Background job processing and cron scheduling",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), a.logLevel, a.logFormat)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.driver, "driver", envOr("DISPATCH_DRIVER", "postgres"), "store driver: postgres, sqlite or memory")
	f.StringVar(&a.dsn, "dsn", os.Getenv("DISPATCH_DSN"), "store connection string or sqlite file path")
	f.StringVar(&a.redisURL, "redis", os.Getenv("DISPATCH_REDIS_URL"), "redis URL enabling the broker backend")
	f.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	f.StringVar(&a.logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newSubmitCmd(a),
		newStatusCmd(a),
		newCancelCmd(a),
		newRetryCmd(a),
		newCronCmd(a),
		newExecutionsCmd(a),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", format)
	}
}

func (a *app) openStore(ctx context.Context) (dispatch.Storer, error) {
	switch a.driver {
	case "postgres":
		if a.dsn == "" {
			return nil, fmt.Errorf("--dsn or DISPATCH_DSN is required for the postgres driver")
		}
		return postgres.New(ctx, a.dsn, postgres.WithLogger(a.logger))
	case "sqlite":
		path := a.dsn
		if path == "" {
			path = defaultSQLitePath
		}
		return sqlite.Open(ctx, path, sqlite.WithLogger(a.logger))
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown --driver %q", a.driver)
	}
}

// openBroker returns nil when no redis URL is configured.
func (a *app) openBroker(ctx context.Context) (broker.Broker, io.Closer, error) {
	if a.redisURL == "" {
		return nil, nil, nil
	}
	opts, err := goredis.ParseURL(a.redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return redisbroker.New(client, redisbroker.WithLogger(a.logger)), client, nil
}

// session is an engine plus the resources to release with it.
type session struct {
	eng    *engine.Engine
	client io.Closer
}

func (s *session) close(ctx context.Context) error {
	err := s.eng.Stop(ctx)
	if s.client != nil {
		if cerr := s.client.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (a *app) open(ctx context.Context, opts ...dispatch.Option) (*session, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	d, err := dispatch.New(append([]dispatch.Option{
		dispatch.WithStore(store),
		dispatch.WithLogger(a.logger),
	}, opts...)...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	b, client, err := a.openBroker(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	var engOpts []engine.Option
	if b != nil {
		engOpts = append(engOpts, engine.WithBroker(b))
	}

	eng, err := engine.Build(d, engOpts...)
	if err != nil {
		_ = store.Close()
		if client != nil {
			_ = client.Close()
		}
		return nil, err
	}
	return &session{eng: eng, client: client}, nil
}

// run opens an engine without starting its background loops, calls fn,
// and releases everything.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, eng *engine.Engine) error) error {
	ctx := cmd.Context()
	s, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.close(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("close failed", slog.String("error", err.Error()))
		}
	}()
	return fn(ctx, s.eng)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
