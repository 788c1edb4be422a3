// Package job defines the job record, its status machine, typed handler
// definitions, the handler registry, and the store contract.
//
// # Lifecycle
//
//	pending → claimed → running → completed
//	pending → claimed → running → pending (retry_count+1, run_at delayed)
//	pending → claimed → running → failed (retries exhausted or Permanent)
//	claimed/running → pending | failed (stale claim recovery)
//	pending → cancelled
//
// At most one executor holds a job in claimed or running. Stores enforce
// this at claim time and again on every write-back.
//
// # Defining a Job Type
//
//	var Echo = job.NewDefinition("echo",
//	    func(ctx context.Context, in EchoInput) (EchoInput, error) {
//	        return in, nil
//	    },
//	    job.WithMaxRetries(5),
//	)
//
//	job.RegisterDefinition(registry, Echo)
//
// A handler fails an attempt by returning an error. Wrapping it with
// [Permanent] tells the executor not to retry.
package job
