// Package store is the durable queue and task store: the single source
// of truth for projects, their DNA, tasks, snapshots, cooldowns, and
// verdicts. All writes go through one serialized write connection;
// reads use a separate read-only pool, matching SQLite's single-writer
// constraint.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/midnight-build/midnight/internal/core"
)

// Store is the durable queue and task store.
type Store struct {
	dbPath string
	db     *sql.DB // single-writer connection
	readDB *sql.DB // read-only connection pool
}

// Open creates the database file (and parent directory) if needed, runs
// the embedded schema, and returns a ready Store.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening write connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	readDSN := dbPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&mode=ro&_pragma=busy_timeout(1000)"
	readDB, err := sql.Open("sqlite", readDSN)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening read connection: %w", err)
	}
	readDB.SetMaxOpenConns(10)
	readDB.SetMaxIdleConns(5)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{dbPath: dbPath, db: db, readDB: readDB}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		_ = readDB.Close()
		return nil, core.ErrState(core.CodeStateCorrupted, "schema mismatch on open").WithCause(err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("running schema: %w", err)
	}
	return tx.Commit()
}

// Close closes both connections.
func (s *Store) Close() error {
	var errs []string
	if s.readDB != nil {
		if err := s.readDB.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing store: %s", strings.Join(errs, "; "))
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") ||
		strings.Contains(s, "SQLITE_BUSY") ||
		strings.Contains(s, "SQLITE_LOCKED")
}

// withWrite retries a write operation on SQLITE_BUSY with linear backoff;
// the single-writer connection still needs this because WAL checkpoints
// and concurrent read transactions can momentarily hold the lock.
func (s *Store) withWrite(ctx context.Context, fn func(*sql.Tx) error) error {
	const maxRetries = 5
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := s.writeOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
		lastErr = err
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
			}
		}
	}
	return fmt.Errorf("write retries exhausted: %w", lastErr)
}

func (s *Store) writeOnce(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func fromMillisPtr(ms sql.NullInt64) *time.Time {
	if !ms.Valid || ms.Int64 == 0 {
		return nil
	}
	t := time.UnixMilli(ms.Int64)
	return &t
}

func millisPtr(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
