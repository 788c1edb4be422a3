// Package cron schedules recurring jobs from persisted definitions.
//
// An [Entry] holds a cron expression, the job type to submit, and the
// payload (configuration) every generated job carries. Two independent
// flags control it: inactive entries are never evaluated, and paused
// entries are evaluated but skipped, keeping their schedule state.
//
// # Scheduler
//
// On every tick the [Scheduler] lists active entries whose next_run_at has
// passed. For each one it:
//
//  1. parses the expression (an invalid one clears next_run_at, records the
//     error, and skips the entry until an update fixes it)
//  2. computes the next activation from the current time
//  3. advances next_run_at with a compare-and-set and stops if another
//     tick got there first
//  4. submits the job and appends an execution record
//
// Entries are isolated: an error or panic in one never stops the others.
// Because step 3 is a compare-and-set, any number of schedulers may run
// against the same store and each due run still yields exactly one job.
package cron
