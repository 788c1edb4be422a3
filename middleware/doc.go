// Package middleware wraps each handler attempt with cross-cutting
// behavior.
//
// The executor composes the chain once with [Chain]; the first middleware
// is the outermost:
//
//	chain := middleware.Chain(
//	    middleware.Recover(logger),
//	    middleware.Tracing(),
//	    middleware.Metrics(),
//	    middleware.Logging(logger),
//	    middleware.Scope(),
//	    middleware.Timeout(logger),
//	)
//
// Each attempt runs with the executing backend (poller, broker, sweeper)
// on its context, readable with [BackendFrom]. [Outcome] classifies an
// attempt's error as succeeded, failed, permanent or timeout; tracing,
// metrics and logging all report it under that name.
//
// A custom middleware must call next unless it means to fail the attempt
// without running the handler:
//
//	func RequireStore() middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) error {
//	        if j.StoreID == "" {
//	            return job.Permanent(errors.New("store_id is required"))
//	        }
//	        return next(ctx)
//	    }
//	}
package middleware
