// Package store is the embedded relational catalog behind the archive.
//
// A single sqlite file holds every video, source, membership row, feed
// URL, sleep entry, and auxiliary table. All mutation happens through an
// explicit Tx; reads go through the Store directly. The schema is
// created idempotently on first open and never migrated destructively.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrStorageUnavailable wraps driver-level I/O failures. Callers treat
// it as fatal: a catalog that cannot be read or written stops the run.
var ErrStorageUnavailable = errors.New("catalog storage unavailable")

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS v (
	ytid     TEXT NOT NULL UNIQUE,
	name     TEXT,
	dname    TEXT,
	duration INTEGER,
	title    TEXT,
	uploader TEXT,
	ptime    TEXT,
	ctime    TEXT,
	atime    TEXT,
	utime    TEXT,
	skip     INTEGER NOT NULL DEFAULT 0,
	thumbnails TEXT,
	chapters   TEXT,
	videoformat TEXT,
	fixcomments TEXT
);
CREATE INDEX IF NOT EXISTS v_dname ON v(dname);

CREATE TABLE IF NOT EXISTS vnames (
	ytid TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chapters (
	ytid TEXT NOT NULL UNIQUE,
	dat  TEXT
);

CREATE TABLE IF NOT EXISTS mergers (
	ytid TEXT NOT NULL UNIQUE,
	dat  TEXT
);

CREATE TABLE IF NOT EXISTS pl (
	ytid     TEXT NOT NULL UNIQUE,
	title    TEXT,
	uploader TEXT,
	ctime    TEXT,
	atime    TEXT,
	skip     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS c (
	name     TEXT NOT NULL UNIQUE,
	title    TEXT,
	uploader TEXT,
	ctime    TEXT,
	atime    TEXT
);

CREATE TABLE IF NOT EXISTS ch (
	name     TEXT NOT NULL UNIQUE,
	alias    TEXT,
	title    TEXT,
	uploader TEXT,
	ctime    TEXT,
	atime    TEXT
);

CREATE TABLE IF NOT EXISTS u (
	name     TEXT NOT NULL UNIQUE,
	title    TEXT,
	uploader TEXT,
	ctime    TEXT,
	atime    TEXT
);

CREATE TABLE IF NOT EXISTS vids (
	name  TEXT NOT NULL,
	ytid  TEXT NOT NULL,
	idx   INTEGER NOT NULL,
	atime TEXT,
	UNIQUE(name, ytid)
);
CREATE INDEX IF NOT EXISTS vids_name ON vids(name);

CREATE TABLE IF NOT EXISTS rss (
	typ   TEXT NOT NULL,
	name  TEXT NOT NULL,
	url   TEXT,
	atime TEXT,
	UNIQUE(typ, name)
);

CREATE TABLE IF NOT EXISTS v_sleep (
	ytid TEXT NOT NULL UNIQUE,
	t    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS hooks (
	idx  INTEGER NOT NULL,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS copy_paths (
	idx  INTEGER NOT NULL,
	path TEXT NOT NULL UNIQUE
);
`

// Store is an open catalog file.
type Store struct {
	queries
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the catalog at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorageUnavailable, path, err)
	}
	// Single-process, single-writer catalog. One connection keeps
	// transactions strictly serialized.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: schema: %v", ErrStorageUnavailable, err)
	}
	s := &Store{db: db, path: path}
	s.queries.q = db
	return s, nil
}

// Path returns the catalog file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Tx is an open catalog transaction. Use Done with defer so that any
// abnormal exit rolls the transaction back; Commit makes it stick.
type Tx struct {
	queries
	tx       *sql.Tx
	finished bool
}

// Begin opens a transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrStorageUnavailable, err)
	}
	t := &Tx{tx: tx}
	t.queries.q = tx
	return t, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if t.finished {
		return nil
	}
	t.finished = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	if t.finished {
		return nil
	}
	t.finished = true
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("%w: rollback: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Done rolls back unless Commit was already called. Intended for defer.
func (t *Tx) Done() {
	if !t.finished {
		t.finished = true
		t.tx.Rollback()
	}
}

// WithTx runs fn inside a transaction, committing on nil error and
// rolling back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Done()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// dbtx is the common query surface of *sql.DB and *sql.Tx.
type dbtx interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// queries carries the typed per-entity operations. Embedded by both
// Store (autocommit reads) and Tx (transactional reads and writes).
type queries struct {
	q dbtx
}
