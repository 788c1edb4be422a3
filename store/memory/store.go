// Package memory is an in-process implementation of store.Store. It is
// safe for concurrent use and intended for tests and single-process
// development. A single mutex makes every claim atomic.
package memory

import (
	"context"
	"sync"

	"github.com/assaka/daino-sub010/cron"
	"github.com/assaka/daino-sub010/execution"
	"github.com/assaka/daino-sub010/job"
	"github.com/assaka/daino-sub010/store"
)

var (
	_ job.Store       = (*Store)(nil)
	_ cron.Store      = (*Store)(nil)
	_ execution.Store = (*Store)(nil)
	_ store.Store     = (*Store)(nil)
)

// Store keeps every record in maps keyed by ID string. Values handed out
// are copies, so callers may mutate them freely.
type Store struct {
	mu sync.RWMutex

	jobs       map[string]*job.Job
	crons      map[string]*cron.Entry
	executions []*execution.Record
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		jobs:  make(map[string]*job.Job),
		crons: make(map[string]*cron.Entry),
	}
}

// Migrate is a no-op.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (m *Store) Close() error { return nil }
