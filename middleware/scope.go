package middleware

import (
	"context"

	"github.com/assaka/daino-sub010/job"
	"github.com/assaka/daino-sub010/scope"
)

// Scope puts the job's tenant store id on the handler context, where
// scope.Capture reads it. Unscoped jobs run with ctx unchanged.
func Scope() Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if j.StoreID == "" {
			return next(ctx)
		}
		return next(scope.Restore(ctx, j.StoreID))
	}
}
