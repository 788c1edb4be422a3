package job

import (
	"time"

	"github.com/assaka/daino-sub010/id"
)

// Options are the per-job settings applied at submit time.
type Options struct {
	// Priority orders the job at claim time.
	Priority Priority

	// StoreID scopes the job to a tenant. Empty means platform-wide.
	StoreID string

	// MaxRetries is how many times a failed attempt is retried before the
	// job fails terminally.
	MaxRetries int

	// Timeout bounds one attempt. Zero means no deadline.
	Timeout time.Duration

	// RunAt delays the first claim. Zero means immediately.
	RunAt time.Time

	// CronID links the job back to the cron definition that produced it.
	CronID id.CronID
}

// DefaultOptions returns the settings used when neither the definition nor
// the caller overrides them.
func DefaultOptions() Options {
	return Options{
		Priority:   PriorityNormal,
		MaxRetries: 3,
		Timeout:    5 * time.Minute,
	}
}

// Option adjusts Options.
type Option func(*Options)

func WithPriority(p Priority) Option {
	return func(o *Options) { o.Priority = p }
}

func WithStoreID(storeID string) Option {
	return func(o *Options) { o.StoreID = storeID }
}

// WithMaxRetries sets the retry budget. An always-failing job runs n+1
// times.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		if n < 0 {
			n = 0
		}
		o.MaxRetries = n
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

func WithRunAt(t time.Time) Option {
	return func(o *Options) { o.RunAt = t }
}

func WithCronID(cronID id.CronID) Option {
	return func(o *Options) { o.CronID = cronID }
}
