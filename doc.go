// Package dispatch is a background job processing and scheduling engine
// for multi-tenant workloads.
//
// Jobs are rows in a relational job store. They are submitted as pending,
// claimed by exactly one executor, run through a handler registered for the
// job type, and written back as completed, failed, or pending again with a
// retry scheduled. Two interchangeable backends execute jobs: a database
// poller that claims batches with FOR UPDATE SKIP LOCKED, and an optional
// broker worker pool that reacts to lightweight notifications published on
// submit. The broker is never the source of truth; the poller alone
// guarantees that every pending row is eventually executed.
//
// A cron scheduler materializes recurring definitions into jobs, and every
// execution is appended to an execution history.
//
// # Quick Start
//
//	d, err := dispatch.New(
//	    dispatch.WithStore(pgStore),
//	    dispatch.WithConcurrency(8),
//	)
//	eng, err := engine.Build(d, engine.WithBroker(redisBroker))
//
//	engine.Register(eng, job.NewDefinition("echo",
//	    func(ctx context.Context, in Echo) (Echo, error) { return in, nil },
//	))
//
//	j, err := eng.Submit(ctx, "echo", payload, job.WithPriority(job.PriorityHigh))
//
// The root package holds configuration, sentinel errors, and the Dispatcher
// that owns the store and lifecycle. Subsystems live in job, cron,
// execution, worker, broker, and store/*; the engine package wires them.
package dispatch
