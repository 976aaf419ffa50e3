// Package uploadstate persists upload state in SQLite: the registry of
// resumable sessions that are still in flight, so an interrupted upload can
// be resumed after a restart, and the append-only history of completed
// uploads.
//
// Both live in one database file, opened once per process with Open. The
// schema is managed by goose migrations embedded in the binary.
package uploadstate
