package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/assaka/daino-sub010/job"
)

// Logging logs the start and the outcome of each attempt. Permanent
// failures and timeouts are reported by their outcome so they can be told
// apart from failures that will be retried.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		attrs := []any{
			slog.String("job_type", j.Type),
			slog.String("job_id", j.ID.String()),
			slog.Int("attempt", j.Attempt()),
		}
		if j.StoreID != "" {
			attrs = append(attrs, slog.String("store_id", j.StoreID))
		}
		if b := BackendFrom(ctx); b != "" {
			attrs = append(attrs, slog.String("backend", string(b)))
		}
		logger.Debug("job attempt started", attrs...)

		start := time.Now()
		err := next(ctx)
		attrs = append(attrs,
			slog.Duration("elapsed", time.Since(start)),
			slog.String("outcome", Outcome(err)),
		)

		if err != nil {
			logger.Warn("job attempt failed", append(attrs, slog.String("error", err.Error()))...)
		} else {
			logger.Info("job attempt succeeded", attrs...)
		}
		return err
	}
}
