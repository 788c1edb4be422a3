// Package ext defines the extension system.
//
// Extensions are notified of lifecycle events and can react to them by
// recording metrics or writing audit logs. Each lifecycle hook is a
// separate interface so extensions opt in only to the events they care
// about.
//
// # Implementing an Extension
//
//	type Auditor struct{}
//
//	func (a *Auditor) Name() string { return "auditor" }
//
//	func (a *Auditor) OnJobFailed(ctx context.Context, j *job.Job, err error) error {
//	    log.Printf("job %s (%s) failed: %v", j.ID, j.Type, err)
//	    return nil
//	}
//
// # Hooks
//
//   - [JobSubmitted]: job was persisted
//   - [JobStarted]: an executor began an attempt
//   - [JobCompleted]: job finished successfully
//   - [JobFailed]: job failed with no retries remaining
//   - [JobRetrying]: attempt failed and the job was rescheduled
//   - [JobCancelled]: a pending job was cancelled
//   - [JobRecovered]: an abandoned claim was returned to pending
//   - [CronFired]: a cron definition materialized a job
//   - [Shutdown]: the dispatcher is stopping
//
// Hook errors are logged and never interrupt job processing.
package ext
