package kvstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const kvSchema = `
CREATE TABLE IF NOT EXISTS kv_entries(
  key TEXT PRIMARY KEY,
  value BLOB NOT NULL,
  version INTEGER NOT NULL DEFAULT 1,
  updated_at TEXT NOT NULL
);
`

// SQLBackend stores values in a SQLite table. Several processes may open
// the same database file; Watch polls the row version.
type SQLBackend struct {
	db       *sqlx.DB
	interval time.Duration

	mu       sync.Mutex
	stoppers []func()
}

type kvRow struct {
	Value   []byte `db:"value"`
	Version int64  `db:"version"`
}

// OpenSQLBackend opens dsn with the pure-Go sqlite driver and ensures the
// schema exists.
func OpenSQLBackend(dsn string, interval time.Duration) (*SQLBackend, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.Exec(kvSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &SQLBackend{db: db, interval: interval}, nil
}

func (s *SQLBackend) row(ctx context.Context, key string) (kvRow, error) {
	var row kvRow
	err := s.db.GetContext(ctx, &row, `SELECT value, version FROM kv_entries WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return row, ErrNotFound
	}
	if err != nil {
		return row, fmt.Errorf("select %s: %w", key, err)
	}
	return row, nil
}

// Get loads the value for key.
func (s *SQLBackend) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	row, err := s.row(ctx, key)
	if err != nil {
		return nil, err
	}
	return row.Value, nil
}

// Set upserts the value and bumps its version.
func (s *SQLBackend) Set(ctx context.Context, key string, value []byte) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv_entries(key, value, version, updated_at)
		VALUES(?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE
		SET value = excluded.value, version = kv_entries.version + 1, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// Delete removes the row for key.
func (s *SQLBackend) Delete(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Watch polls the row for key and reports version or presence changes.
func (s *SQLBackend) Watch(key string, fn func(Change)) (func(), error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	last, lastErr := s.row(context.Background(), key)
	if lastErr != nil && !errors.Is(lastErr, ErrNotFound) {
		return nil, lastErr
	}
	present := lastErr == nil

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			row, err := s.row(context.Background(), key)
			switch {
			case errors.Is(err, ErrNotFound):
				if present {
					present, last = false, kvRow{}
					fn(Change{Key: key, Deleted: true})
				}
			case err != nil:
				// transient read failure, try again on the next tick
			case !present || row.Version != last.Version || !bytes.Equal(row.Value, last.Value):
				present, last = true, row
				fn(Change{Key: key, Value: append([]byte(nil), row.Value...)})
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			<-finished
		})
	}
	s.mu.Lock()
	s.stoppers = append(s.stoppers, stop)
	s.mu.Unlock()
	return stop, nil
}

// Close stops pollers and closes the database.
func (s *SQLBackend) Close() error {
	s.mu.Lock()
	stops := s.stoppers
	s.stoppers = nil
	s.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
	return s.db.Close()
}
