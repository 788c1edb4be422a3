package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config limits how fast and how many jobs of one type are executed by
// this process.
type Config struct {
	// JobType is the job type the limits apply to.
	JobType string

	// MaxConcurrency caps simultaneous executions of this type. Zero means
	// only the pool-wide concurrency applies.
	MaxConcurrency int

	// RateLimit is the sustained executions per second. Zero disables it.
	RateLimit float64

	// RateBurst is the token-bucket burst. Defaults to 1 when RateLimit is
	// set.
	RateBurst int
}

// StoreConfig limits one tenant store's share of a job type, so a single
// store's bulk import cannot starve everyone else.
type StoreConfig struct {
	JobType        string
	StoreID        string
	MaxConcurrency int
	RateLimit      float64
	RateBurst      int
}

// gate is the runtime state behind either kind of config.
type gate struct {
	limiter        *rate.Limiter
	maxConcurrency int
	active         int
}

func newGate(maxConcurrency int, rateLimit float64, burst int) *gate {
	g := &gate{maxConcurrency: maxConcurrency}
	if rateLimit > 0 {
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rateLimit), burst)
	}
	return g
}

func (g *gate) full() bool {
	return g.maxConcurrency > 0 && g.active >= g.maxConcurrency
}

// Manager enforces per-type and per-store limits at execution time. It is
// safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	types  map[string]*gate
	stores map[storeKey]*gate
}

type storeKey struct {
	jobType string
	storeID string
}

// NewManager creates a Manager. Types without a Config have no limits.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		types:  make(map[string]*gate, len(configs)),
		stores: make(map[storeKey]*gate),
	}
	for _, cfg := range configs {
		m.types[cfg.JobType] = newGate(cfg.MaxConcurrency, cfg.RateLimit, cfg.RateBurst)
	}
	return m
}

// Acquire reports whether a job of jobType for storeID may start now and,
// if so, takes a concurrency slot. Every successful Acquire must be paired
// with Release. Concurrency is checked before any rate token is spent.
func (m *Manager) Acquire(jobType, storeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	tg := m.types[jobType]
	var sg *gate
	if storeID != "" {
		sg = m.stores[storeKey{jobType, storeID}]
	}

	if (tg != nil && tg.full()) || (sg != nil && sg.full()) {
		return false
	}
	if tg != nil && tg.limiter != nil && !tg.limiter.Allow() {
		return false
	}
	if sg != nil && sg.limiter != nil && !sg.limiter.Allow() {
		return false
	}

	if tg != nil {
		tg.active++
	}
	if sg != nil {
		sg.active++
	}
	return true
}

// Release frees the slot taken by Acquire.
func (m *Manager) Release(jobType, storeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tg := m.types[jobType]; tg != nil && tg.active > 0 {
		tg.active--
	}
	if storeID != "" {
		if sg := m.stores[storeKey{jobType, storeID}]; sg != nil && sg.active > 0 {
			sg.active--
		}
	}
}

// SetConfig adds or replaces the limits for a job type, keeping the
// current active count.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := newGate(cfg.MaxConcurrency, cfg.RateLimit, cfg.RateBurst)
	if existing := m.types[cfg.JobType]; existing != nil {
		g.active = existing.active
	}
	m.types[cfg.JobType] = g
}

// SetStoreConfig adds or replaces the limits for one store on one job
// type, keeping the current active count.
func (m *Manager) SetStoreConfig(cfg StoreConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := storeKey{cfg.JobType, cfg.StoreID}
	g := newGate(cfg.MaxConcurrency, cfg.RateLimit, cfg.RateBurst)
	if existing := m.stores[key]; existing != nil {
		g.active = existing.active
	}
	m.stores[key] = g
}

// ActiveCount returns the number of running jobs of jobType that hold a
// slot. Unconfigured types always report zero.
func (m *Manager) ActiveCount(jobType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g := m.types[jobType]; g != nil {
		return g.active
	}
	return 0
}

// StoreActiveCount is ActiveCount for one store's share of jobType.
func (m *Manager) StoreActiveCount(jobType, storeID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g := m.stores[storeKey{jobType, storeID}]; g != nil {
		return g.active
	}
	return 0
}
