package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/inviterelay/dbopen"
	"github.com/hazyhaar/inviterelay/idgen"
	"github.com/hazyhaar/inviterelay/relay/event"
)

// Reader returns the most recent events, newest first.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]event.Event, error)
}

// Journal persists events to relay_events. It satisfies the relay's sink
// interface, so it is wired like any other output.
type Journal struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithIDGenerator sets the generator used for events that arrive without an ID.
func WithIDGenerator(gen idgen.Generator) JournalOption {
	return func(j *Journal) { j.newID = gen }
}

// NewJournal creates a Journal on db. Init must have been applied.
func NewJournal(db *sql.DB, opts ...JournalOption) *Journal {
	j := &Journal{db: db, newID: idgen.Prefixed("evt_", idgen.Default), now: time.Now}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Send appends ev to the journal.
func (j *Journal) Send(ctx context.Context, ev event.Event) error {
	if ev.ID == "" {
		ev.ID = j.newID()
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = j.now().UnixMilli()
	}
	var controls sql.NullString
	if ev.Controls != nil {
		b, err := json.Marshal(ev.Controls)
		if err != nil {
			return fmt.Errorf("observability: marshal controls: %w", err)
		}
		controls = sql.NullString{String: string(b), Valid: true}
	}
	_, err := dbopen.Exec(ctx, j.db, `
		INSERT INTO relay_events (
			event_id, kind, role, run_id, page_url, code,
			attempts, max_tries, controls, detail, timestamp
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		ev.ID, string(ev.Kind), string(ev.Role), ev.RunID, ev.PageURL, ev.Code,
		ev.Attempts, ev.MaxTries, controls, ev.Detail, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("observability: insert event: %w", err)
	}
	return nil
}

// Close is a no-op; the database belongs to the caller.
func (j *Journal) Close() error { return nil }

// Recent returns up to limit events, newest first. limit <= 0 means 50.
func (j *Journal) Recent(ctx context.Context, limit int) ([]event.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT event_id, kind, role, run_id, page_url, code,
		       attempts, max_tries, controls, detail, timestamp
		FROM relay_events
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("observability: query events: %w", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var (
			ev         event.Event
			kind, role string
			controls   sql.NullString
		)
		if err := rows.Scan(&ev.ID, &kind, &role, &ev.RunID, &ev.PageURL, &ev.Code,
			&ev.Attempts, &ev.MaxTries, &controls, &ev.Detail, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("observability: scan event: %w", err)
		}
		ev.Kind = event.Kind(kind)
		ev.Role = event.Role(role)
		if controls.Valid {
			var c event.Controls
			if json.Unmarshal([]byte(controls.String), &c) == nil {
				ev.Controls = &c
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Cleanup deletes events older than retention and returns how many went.
func (j *Journal) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := j.now().Add(-retention).UnixMilli()
	res, err := dbopen.Exec(ctx, j.db, `DELETE FROM relay_events WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup: %w", err)
	}
	return res.RowsAffected()
}
