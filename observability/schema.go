// Package observability records what the relay did: a durable event
// journal in the relay database and in-process counters per event kind.
//
// The journal lives in the same SQLite file as the shared state so that
// `inviterelay status` can show recent history from any process.
package observability

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the DDL for the event journal.
const Schema = `
CREATE TABLE IF NOT EXISTS relay_events (
	event_id  TEXT PRIMARY KEY,
	kind      TEXT NOT NULL,
	role      TEXT NOT NULL,
	run_id    TEXT NOT NULL DEFAULT '',
	page_url  TEXT NOT NULL DEFAULT '',
	code      TEXT NOT NULL DEFAULT '',
	attempts  INTEGER NOT NULL DEFAULT 0,
	max_tries INTEGER NOT NULL DEFAULT 0,
	controls  TEXT,
	detail    TEXT NOT NULL DEFAULT '',
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_relay_events_time ON relay_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_relay_events_code ON relay_events(code, timestamp DESC);
`

// Init applies Schema.
func Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("observability: init: %w", err)
	}
	return nil
}
