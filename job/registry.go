package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// HandlerFunc is the type-erased handler the executor calls. It receives
// the claimed job and returns the JSON result to store on success.
type HandlerFunc func(ctx context.Context, j *Job) ([]byte, error)

type registration struct {
	handler HandlerFunc
	opts    Options
}

// Registry maps job types to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]registration)}
}

// Register binds a raw handler to a job type. Registering the same type
// twice replaces the earlier handler.
func (r *Registry) Register(jobType string, h HandlerFunc, opts ...Option) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = registration{handler: h, opts: o}
}

// RegisterDefinition registers a typed definition. The payload is decoded
// into T before the handler runs; a payload that cannot be decoded fails
// the job permanently since no retry can fix it.
func RegisterDefinition[T, R any](r *Registry, def *Definition[T, R]) {
	h := func(ctx context.Context, j *Job) ([]byte, error) {
		var in T
		if len(j.Payload) > 0 {
			if err := json.Unmarshal(j.Payload, &in); err != nil {
				return nil, Permanent(fmt.Errorf("decode payload for job type %q: %w", def.Name, err))
			}
		}
		out, err := def.Handler(ctx, in)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, Permanent(fmt.Errorf("encode result for job type %q: %w", def.Name, err))
		}
		return data, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Name] = registration{handler: h, opts: def.Opts}
}

// Get returns the handler for jobType.
func (r *Registry) Get(jobType string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.handlers[jobType]
	return reg.handler, ok
}

// Options returns the defaults registered for jobType, or DefaultOptions
// when the type is unknown to this process.
func (r *Registry) Options(jobType string) Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reg, ok := r.handlers[jobType]; ok {
		return reg.opts
	}
	return DefaultOptions()
}

// Types returns the registered job types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
