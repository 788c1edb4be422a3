// Package store names the persistence contract shared by every backend.
//
// [Store] is the union of job.Store, cron.Store and execution.Store plus
// schema and connection management. Three implementations live below it:
//
//   - store/memory keeps everything in maps behind a mutex. Tests use it.
//   - store/postgres claims rows with FOR UPDATE SKIP LOCKED through a
//     pgx pool, so any number of processes can share one database.
//   - store/sqlite runs on a single file through bun and go-sqlite3.
//     Claims are serialized by SQLite's writer lock.
//
// All three enforce the same claim guard: MarkRunning and FinishJob only
// apply while the row is still claimed by the caller's worker id, and
// otherwise fail with dispatch.ErrClaimLost.
//
// Wiring a backend:
//
//	s, err := sqlite.Open(ctx, "dispatch.db")
//	if err != nil {
//	    return err
//	}
//	if err := s.Migrate(ctx); err != nil {
//	    return err
//	}
//	d, err := dispatch.New(dispatch.WithStore(s))
package store
