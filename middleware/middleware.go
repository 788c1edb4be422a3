package middleware

import (
	"context"
	"errors"

	"github.com/assaka/daino-sub010/execution"
	"github.com/assaka/daino-sub010/job"
)

// Handler runs the rest of the chain and finally the job's handler.
type Handler func(ctx context.Context) error

// Middleware wraps one attempt of j. It must call next unless it means to
// fail the attempt without running the handler.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain composes mws into one Middleware. The first element is the
// outermost wrapper; nil entries are skipped.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			if mw == nil {
				continue
			}
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, j, prev)
			}
		}
		return h(ctx)
	}
}

// Attempt outcomes reported by Outcome.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomePermanent = "permanent"
	OutcomeTimeout   = "timeout"
)

// Outcome classifies the error returned by an attempt.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSucceeded
	case job.IsPermanent(err):
		return OutcomePermanent
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeFailed
	}
}

type backendKey struct{}

// WithBackend records which component is executing the attempt.
func WithBackend(ctx context.Context, b execution.Backend) context.Context {
	return context.WithValue(ctx, backendKey{}, b)
}

// BackendFrom returns the backend set by WithBackend, or "" when unset.
func BackendFrom(ctx context.Context) execution.Backend {
	b, _ := ctx.Value(backendKey{}).(execution.Backend)
	return b
}
