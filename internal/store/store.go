// Package store persists budgets, reference entities, items and import trackers in SQLite.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrStorageFault marks failures of the storage layer itself (transaction or savepoint
// mechanics, lost connections) as opposed to problems with the data being written.
var ErrStorageFault = errors.New("storage fault")

// Store is the SQLite implementation of every repository the import pipeline uses.
// A Store is safe for concurrent use; writes are serialized on a single connection.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the clock used for created/updated timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens (creating if needed) the database at path and applies pending migrations
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	if err := Migrate(path); err != nil {
		return nil, fmt.Errorf("failed to migrate database %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", path, err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

func dsn(path string) string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// txState is the open transaction carried by contexts passed to Atomic callbacks
type txState struct {
	tx         *sql.Tx
	savepoints int
}

// conn returns the transaction bound to ctx, or the database when there is none
func (s *Store) conn(ctx context.Context) querier {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		return st.tx
	}
	return s.db
}

// Atomic runs fn as one unit of work. Called outside a unit it begins a transaction that
// commits when fn succeeds; called with a context from an enclosing unit it runs fn inside a
// savepoint, so a failure undoes only fn's writes. Store methods called with the context
// passed to fn participate in the unit.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		return s.savepoint(ctx, st, fn)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault("failed to begin transaction", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, &txState{tx: tx})); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fault("failed to commit transaction", err)
	}
	return nil
}

func (s *Store) savepoint(ctx context.Context, st *txState, fn func(ctx context.Context) error) error {
	st.savepoints++
	name := fmt.Sprintf("sp_%d", st.savepoints)

	if _, err := st.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fault("failed to create savepoint", err)
	}

	if err := fn(ctx); err != nil {
		if isConnectionFailure(err) {
			return fault("connection lost inside savepoint", err)
		}
		if _, rbErr := st.tx.ExecContext(ctx, "ROLLBACK TO "+name); rbErr != nil {
			return fault("failed to roll back savepoint", rbErr)
		}
		if _, relErr := st.tx.ExecContext(ctx, "RELEASE "+name); relErr != nil {
			return fault("failed to release savepoint", relErr)
		}
		return err
	}

	if _, err := st.tx.ExecContext(ctx, "RELEASE "+name); err != nil {
		return fault("failed to release savepoint", err)
	}
	return nil
}

func fault(msg string, err error) error {
	if errors.Is(err, ErrStorageFault) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", msg, ErrStorageFault, err)
}

func isConnectionFailure(err error) bool {
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone)
}

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY constraint failure
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// extended result codes disabled
		return strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	return false
}

// timestampLayout is fixed width so stored timestamps sort as text
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}

func parseTimestamp(v string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", v, err)
	}
	return t, nil
}
