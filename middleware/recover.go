package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/assaka/daino-sub010/job"
)

// PanicError is returned in place of a handler panic.
type PanicError struct {
	JobType string
	Value   any
	Stack   []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in job %s: %v", e.JobType, e.Value)
}

// Recover turns a handler panic into a *PanicError. The attempt fails like
// any other and is retried while retries remain.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			perr := &PanicError{JobType: j.Type, Value: r, Stack: debug.Stack()}
			logger.Error("job handler panicked",
				slog.String("job_type", j.Type),
				slog.String("job_id", j.ID.String()),
				slog.Any("panic", r),
				slog.String("stack", string(perr.Stack)),
			)
			err = perr
		}()
		return next(ctx)
	}
}
