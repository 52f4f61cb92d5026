// Package watch polls a SQLite database for a version token and runs an
// action when the token moves. The relay uses it to wake the submit loop
// and the status follower when the other side writes the shared record,
// including writes made by another process on the same database file.
//
//	w := watch.New(db, watch.MaxColumnDetector("relay_state", "version"),
//		watch.Options{Interval: 100 * time.Millisecond})
//	go w.OnChange(ctx, func() error { notify(); return nil })
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// ChangeDetector reads a version token. Two different values mean the
// watched data changed.
type ChangeDetector func(ctx context.Context, db *sql.DB) (int64, error)

// Options tunes the watcher.
type Options struct {
	// Interval is the polling period. Default: 1s.
	Interval time.Duration
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher polls a database and fires an action on change.
type Watcher struct {
	db     *sql.DB
	detect ChangeDetector
	opts   Options

	version atomic.Int64
	checks  atomic.Int64
	fired   atomic.Int64
	errors  atomic.Int64
}

// New creates a Watcher. Call OnChange to start polling.
func New(db *sql.DB, detect ChangeDetector, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{db: db, detect: detect, opts: opts}
}

// OnChange blocks until ctx is cancelled. The first poll seeds the version
// without firing. If action fails the version is not advanced, so the
// action runs again on the next poll.
func (w *Watcher) OnChange(ctx context.Context, action func() error) {
	log := w.opts.Logger

	if v, err := w.detect(ctx, w.db); err != nil {
		log.Warn("watch: initial version check failed", "error", err)
	} else {
		w.version.Store(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		w.checks.Add(1)
		cur, err := w.detect(ctx, w.db)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.errors.Add(1)
			log.Warn("watch: version check failed", "error", err)
			continue
		}
		if cur == w.version.Load() {
			continue
		}
		if err := action(); err != nil {
			w.errors.Add(1)
			log.Warn("watch: action failed", "error", err, "version", cur)
			continue
		}
		w.fired.Add(1)
		w.version.Store(cur)
		log.Debug("watch: change handled", "version", cur)
	}
}

// MaxColumnDetector polls MAX(column) of table. Identifiers are quoted.
func MaxColumnDetector(table, column string) ChangeDetector {
	query := "SELECT COALESCE(MAX(" + quoteIdent(column) + "), 0) FROM " + quoteIdent(table)
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var v int64
		err := db.QueryRowContext(ctx, query).Scan(&v)
		return v, err
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
