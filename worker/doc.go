// Package worker runs claimed jobs.
//
// The [Executor] is shared by every backend: it moves a claimed job to
// running, invokes the registered handler through middleware, and writes
// the outcome back under the claim guard. Three loops feed it:
//
//   - [Poller] claims batches from the database on a fixed interval and
//     always runs, so progress never depends on a broker.
//   - [BrokerPool] reacts to broker notifications for lower latency.
//   - [Sweeper] returns jobs whose executor disappeared to pending.
package worker
