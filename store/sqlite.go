// CLAUDE:SUMMARY SQLite-backed relay state: one versioned row updated by compare-and-swap, with change subscription via watch.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/inviterelay/dbopen"
	"github.com/hazyhaar/inviterelay/watch"
)

// Schema creates the single-row state table. The column names are the
// storage keys used on both sides.
const Schema = `
CREATE TABLE IF NOT EXISTS relay_state (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	invite_code   TEXT    NOT NULL DEFAULT '',
	attempt_count INTEGER NOT NULL DEFAULT 0 CHECK (attempt_count >= 0),
	version       INTEGER NOT NULL DEFAULT 0,
	updated_at    INTEGER NOT NULL DEFAULT 0
);
INSERT OR IGNORE INTO relay_state (id) VALUES (1);
`

// SQLite is a Store backed by the relay_state table.
type SQLite struct {
	db       *sql.DB
	interval time.Duration
	logger   *slog.Logger
}

// SQLiteOption configures a SQLite store.
type SQLiteOption func(*SQLite)

// WithPollInterval sets how often Subscribe polls the version column.
// Default: 100ms.
func WithPollInterval(d time.Duration) SQLiteOption {
	return func(s *SQLite) { s.interval = d }
}

// WithLogger sets the logger used by the change watcher.
func WithLogger(l *slog.Logger) SQLiteOption {
	return func(s *SQLite) { s.logger = l }
}

// NewSQLite wraps db. Init must have been called on it once.
func NewSQLite(db *sql.DB, opts ...SQLiteOption) *SQLite {
	s := &SQLite{db: db, interval: 100 * time.Millisecond, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init applies Schema.
func Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for the event journal, which shares the
// file.
func (s *SQLite) DB() *sql.DB { return s.db }

// Load reads the state row.
func (s *SQLite) Load(ctx context.Context) (Record, error) {
	var (
		rec     Record
		updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT invite_code, attempt_count, version, updated_at
		FROM relay_state WHERE id = 1`).Scan(&rec.Code, &rec.Attempts, &rec.Version, &updated)
	if err == sql.ErrNoRows {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("store: load: %w", err)
	}
	if updated > 0 {
		rec.UpdatedAt = time.UnixMilli(updated).UTC()
	}
	return rec, nil
}

// CompareAndSwap writes {code, attempts} in one statement guarded by the
// version column.
func (s *SQLite) CompareAndSwap(ctx context.Context, expect int64, code string, attempts int) (Record, error) {
	now := time.Now().UTC()
	res, err := dbopen.Exec(ctx, s.db, `
		UPDATE relay_state
		SET invite_code = ?, attempt_count = ?, version = version + 1, updated_at = ?
		WHERE id = 1 AND version = ?`,
		code, attempts, now.UnixMilli(), expect)
	if err != nil {
		return Record{}, fmt.Errorf("store: cas: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Record{}, fmt.Errorf("store: cas rows: %w", err)
	}
	if n == 0 {
		return Record{}, ErrConflict
	}
	return Record{
		Code:      code,
		Attempts:  attempts,
		Version:   expect + 1,
		UpdatedAt: time.UnixMilli(now.UnixMilli()).UTC(),
	}, nil
}

// Subscribe implements Subscriber by polling the version column, which
// also catches writes made by other processes.
func (s *SQLite) Subscribe(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	w := watch.New(s.db, watch.MaxColumnDetector("relay_state", "version"), watch.Options{
		Interval: s.interval,
		Logger:   s.logger,
	})
	go func() {
		defer close(ch)
		w.OnChange(ctx, func() error {
			select {
			case ch <- struct{}{}:
			default:
			}
			return nil
		})
	}()
	return ch
}
