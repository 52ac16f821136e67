package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	hberrors "github.com/randalmurphal/eventhub/pkg/eventhub/errors"
)

// SQLiteBackend persists stores in a single SQLite table.
type SQLiteBackend struct {
	db     *sql.DB
	retry  hberrors.RetryConfig
	mu     sync.RWMutex
	closed bool
}

var _ Backend = (*SQLiteBackend)(nil)

// NewSQLiteBackend opens (or creates) the database at path.
// Use ":memory:" for a throwaway database.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=1000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS datastore (
			store TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (store, key)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteBackend{db: db, retry: hberrors.DefaultRetry}, nil
}

// Set implements Backend.
func (s *SQLiteBackend) Set(ctx context.Context, store, key string, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	err := hberrors.Retry(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO datastore (store, key, value, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(store, key) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at
		`, store, key, value, time.Now().UTC().Format(time.RFC3339Nano))
		return classifySQLite(err)
	})
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", store, key, err)
	}
	return nil
}

// Get implements Backend.
func (s *SQLiteBackend) Get(ctx context.Context, store, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	result := hberrors.WithRetryContext(ctx, s.retry, func(ctx context.Context) ([]byte, error) {
		var value []byte
		err := s.db.QueryRowContext(ctx,
			`SELECT value FROM datastore WHERE store = ? AND key = ?`, store, key,
		).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return value, classifySQLite(err)
	})
	if errors.Is(result.Err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if result.Err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", store, key, result.Err)
	}
	return result.Value, nil
}

// Delete implements Backend.
func (s *SQLiteBackend) Delete(ctx context.Context, store, key string) error {
	return s.exec(ctx, "delete", `DELETE FROM datastore WHERE store = ? AND key = ?`, store, key)
}

// Clear implements Backend.
func (s *SQLiteBackend) Clear(ctx context.Context, store string) error {
	return s.exec(ctx, "clear", `DELETE FROM datastore WHERE store = ?`, store)
}

// Keys implements Backend.
func (s *SQLiteBackend) Keys(ctx context.Context, store string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key FROM datastore WHERE store = ? ORDER BY key`, store)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close implements Backend.
func (s *SQLiteBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteBackend) exec(ctx context.Context, op, query string, args ...any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	err := hberrors.Retry(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return classifySQLite(err)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// classifySQLite marks lock contention as transient.
func classifySQLite(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
		return hberrors.Transient(err, "sqlite busy")
	}
	return err
}
