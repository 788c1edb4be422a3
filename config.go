package dispatch

import "time"

// Config holds the runtime settings shared by the poller, sweeper, cron
// scheduler, and broker pool.
type Config struct {
	// Concurrency bounds how many jobs one process executes at once.
	Concurrency int

	// Types restricts the job types this process claims. Empty means every
	// type with a registered handler.
	Types []string

	// PollInterval is the database poller tick.
	PollInterval time.Duration

	// BatchSize is the maximum number of jobs claimed per poller tick.
	BatchSize int

	// TickBudget is the wall-clock budget of one poller tick. Claimed jobs
	// not started within it carry over to the next tick.
	TickBudget time.Duration

	// StaleClaimTimeout is how long a job may stay claimed or running
	// before the sweeper takes the claim away.
	StaleClaimTimeout time.Duration

	// SweepInterval is how often stale claims are looked for.
	SweepInterval time.Duration

	// CronTickInterval is how often due cron definitions are materialized.
	CronTickInterval time.Duration

	// Retention is how long terminal jobs and execution records are kept
	// by the maintenance job.
	Retention time.Duration

	// ShutdownTimeout bounds graceful shutdown of running handlers.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the settings used when no option overrides them.
func DefaultConfig() Config {
	return Config{
		Concurrency:       4,
		PollInterval:      5 * time.Second,
		BatchSize:         20,
		TickBudget:        50 * time.Second,
		StaleClaimTimeout: 10 * time.Minute,
		SweepInterval:     time.Minute,
		CronTickInterval:  time.Minute,
		Retention:         30 * 24 * time.Hour,
		ShutdownTimeout:   30 * time.Second,
	}
}
