// Package sqlite implements store.Store on SQLite through the bun ORM and
// the mattn/go-sqlite3 driver. It suits development, tests, and
// single-node deployments.
//
// SQLite has one writer at a time, so a claim is a short write
// transaction: select the eligible ids in claim order, flip them to
// claimed, and read them back. Open uses an immediate transaction lock
// and a busy timeout so several processes sharing one file queue for the
// lock instead of failing.
//
//	s, err := sqlite.Open(ctx, "/var/lib/app/dispatch.db")
//	if err != nil { ... }
//	if err := s.Migrate(ctx); err != nil { ... }
package sqlite
