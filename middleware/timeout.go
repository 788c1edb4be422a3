package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/assaka/daino-sub010/job"
)

// Timeout bounds an attempt by j.Timeout; zero means no deadline. A
// handler that ignores ctx keeps running, but once it returns a deadline
// error the attempt is reported with the configured limit.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if j.Timeout <= 0 {
			return next(ctx)
		}

		ctx, cancel := context.WithTimeout(ctx, j.Timeout)
		defer cancel()

		err := next(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("job attempt timed out",
				slog.String("job_id", j.ID.String()),
				slog.String("job_type", j.Type),
				slog.Duration("timeout", j.Timeout),
			)
			return fmt.Errorf("job exceeded %s timeout: %w", j.Timeout, err)
		}
		return err
	}
}
