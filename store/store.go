package store

import (
	"context"

	"github.com/assaka/daino-sub010/cron"
	"github.com/assaka/daino-sub010/execution"
	"github.com/assaka/daino-sub010/job"
)

// Store is what a backend must provide for the engine to run on it: jobs,
// cron definitions and execution history behind one connection.
type Store interface {
	job.Store
	cron.Store
	execution.Store

	// Migrate brings the schema up to date. Already applied migrations
	// are skipped.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
