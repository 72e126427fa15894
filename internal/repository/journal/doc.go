// Package journal implements persistence for the run history.
//
// The SQLiteRepository stores finished setup and sync runs in a single-file
// SQLite database and exposes a Repository interface that the services and
// the history command depend on. Recording is best effort for the callers:
// a broken journal must never fail an otherwise healthy installation.
package journal
