// Package queue throttles job execution per job type and per tenant store.
//
// Use [Config] to cap a job type and [StoreConfig] to cap one store's
// share of it:
//
//	engine.Build(d,
//	    engine.WithQueueConfig(
//	        queue.Config{JobType: "translation:bulk", MaxConcurrency: 2},
//	        queue.Config{JobType: "email:notify", RateLimit: 10, RateBurst: 20},
//	    ),
//	)
//
// [Manager] is consulted after a job is claimed and before it runs. A job
// that cannot acquire a slot is released back to pending without spending
// a retry and is picked up again on a later poll.
//
//	if m.Acquire(j.Type, j.StoreID) {
//	    defer m.Release(j.Type, j.StoreID)
//	    // run the handler
//	}
//
// Rate limits use a token bucket (golang.org/x/time/rate). Types without a
// Config have no limits beyond the pool-wide concurrency.
package queue
