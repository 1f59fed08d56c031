package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB owns the SQLite handle shared by the quota ledger, catalog, queue and
// passcode stores.
type DB struct {
	sql  *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open connects to the database at path, applying pragmas on every pooled
// connection, and migrates the schema to the latest version.
func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure database directory: %w", err)
		}
	}

	handle, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serializes in-process writers so the conditional
	// debit never races itself into SQLITE_BUSY. Never hold *sql.Rows open
	// while issuing another statement.
	handle.SetMaxOpenConns(1)

	if err := handle.PingContext(ensureContext(ctx)); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	db := &DB{sql: handle, path: path}
	if err := MigrateUp(handle); err != nil {
		_ = handle.Close()
		return nil, err
	}
	return db, nil
}

func dsn(path string) string {
	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Set("_txlock", "immediate")
	return "file:" + path + "?" + params.Encode()
}

// Close releases the underlying handle.
func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Path returns the database file location.
func (d *DB) Path() string {
	return d.path
}

// Ping verifies the database is reachable. Used by readiness probes.
func (d *DB) Ping(ctx context.Context) error {
	return d.sql.PingContext(ensureContext(ctx))
}

// Exec runs a statement, retrying when another process holds the write lock.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := RetryOnBusy(ctx, func() error {
		res, execErr = d.sql.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// QueryRow runs a single-row query.
func (d *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.sql.QueryRowContext(ensureContext(ctx), query, args...)
}

// Query runs a multi-row query. Callers must close the rows before issuing
// any other statement.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx = ensureContext(ctx)
	var (
		rows     *sql.Rows
		queryErr error
	)
	if err := RetryOnBusy(ctx, func() error {
		rows, queryErr = d.sql.QueryContext(ctx, query, args...)
		return queryErr
	}); err != nil {
		return nil, err
	}
	return rows, nil
}

// WithTx runs fn inside a transaction, committing on success. The whole
// transaction is retried when the database is busy, so fn must not have side
// effects outside tx.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx = ensureContext(ctx)
	return RetryOnBusy(ctx, func() error {
		tx, err := d.sql.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

// RetryOnBusy retries op with exponential backoff while SQLite reports the
// database as locked.
func RetryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// IsBusy reports whether err is an SQLITE_BUSY condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
