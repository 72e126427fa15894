package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	// SQLite driver registration for database/sql.
	_ "modernc.org/sqlite"

	"github.com/oshokin/pystrap/internal/domain/setup"
)

// Repository defines persistence operations for the run journal.
type Repository interface {
	Record(ctx context.Context, run *setup.Run) error
	Recent(ctx context.Context, limit int) ([]*setup.Run, error)
	LastSuccessful(ctx context.Context, kind setup.RunKind) (*setup.Run, error)
	Close() error
}

// SQLiteRepository persists runs to a SQLite file on disk.
type SQLiteRepository struct {
	// db is the underlying database handle, limited to one connection.
	db *sql.DB
}

// ErrNotFound is returned when no run matches the requested criteria.
var ErrNotFound = errors.New("run not found")

// errNilRun rejects attempts to record a missing run.
var errNilRun = errors.New("run must not be nil")

// schema creates the runs table on first use. Timestamps are unix seconds.
const schema = `CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  kind TEXT NOT NULL,
  status TEXT NOT NULL,
  hostname TEXT NOT NULL DEFAULT '',
  username TEXT NOT NULL DEFAULT '',
  pip_version TEXT NOT NULL DEFAULT '',
  manifest_checksum TEXT NOT NULL DEFAULT '',
  error TEXT NOT NULL DEFAULT '',
  started_at INTEGER NOT NULL,
  finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_kind_status ON runs(kind, status, finished_at)`

// NewSQLiteRepository opens (or creates) the journal database at the provided path.
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	// SQLite doesn't support concurrent writes.
	db.SetMaxOpenConns(1)

	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare journal schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Record appends a finished run to the journal.
func (r *SQLiteRepository) Record(ctx context.Context, run *setup.Run) error {
	if run == nil {
		return errNilRun
	}

	var hostname, username string
	if run.Actor != nil {
		hostname = run.Actor.Hostname
		username = run.Actor.Username
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs
		   (kind, status, hostname, username, pip_version, manifest_checksum, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(run.Kind),
		string(run.Status),
		hostname,
		username,
		run.PipVersion,
		run.ManifestChecksum,
		run.Err,
		run.StartedAt.Unix(),
		run.FinishedAt.Unix())
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	return nil
}

// Recent returns the latest runs, newest first.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]*setup.Run, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT kind, status, hostname, username, pip_version, manifest_checksum, error, started_at, finished_at
		   FROM runs
		  ORDER BY id DESC
		  LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var runs []*setup.Run

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent runs: %w", err)
	}

	return runs, nil
}

// LastSuccessful returns the newest succeeded run of the given kind.
func (r *SQLiteRepository) LastSuccessful(ctx context.Context, kind setup.RunKind) (*setup.Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT kind, status, hostname, username, pip_version, manifest_checksum, error, started_at, finished_at
		   FROM runs
		  WHERE kind = ? AND status = ?
		  ORDER BY id DESC
		  LIMIT 1`, string(kind), string(setup.StatusSucceeded))

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	return run, nil
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// rowScanner abstracts sql.Row and sql.Rows for scanRun.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRun maps one result row onto a domain run.
func scanRun(row rowScanner) (*setup.Run, error) {
	var (
		kind, status, hostname, username     string
		pipVersion, checksum, failureMessage string
		started, finished                    int64
	)

	err := row.Scan(
		&kind,
		&status,
		&hostname,
		&username,
		&pipVersion,
		&checksum,
		&failureMessage,
		&started,
		&finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("scan run row: %w", err)
	}

	var actor *setup.Actor
	if hostname != "" || username != "" {
		actor = &setup.Actor{
			Hostname: hostname,
			Username: username,
		}
	}

	return &setup.Run{
		Kind:             setup.RunKind(kind),
		Status:           setup.RunStatus(status),
		Actor:            actor,
		PipVersion:       pipVersion,
		ManifestChecksum: checksum,
		Err:              failureMessage,
		StartedAt:        time.Unix(started, 0).UTC(),
		FinishedAt:       time.Unix(finished, 0).UTC(),
	}, nil
}
