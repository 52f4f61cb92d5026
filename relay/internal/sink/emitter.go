package sink

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/inviterelay/idgen"
	"github.com/hazyhaar/inviterelay/relay/event"
)

// Emitter stamps events for one loop and hands them to a Sink. Delivery
// failures are logged and swallowed: a broken webhook never stops a loop.
type Emitter struct {
	sink   Sink
	role   event.Role
	runID  string
	ids    idgen.Generator
	now    func() time.Time
	logger *slog.Logger
}

// NewEmitter returns an Emitter. A nil sink discards events.
func NewEmitter(s Sink, role event.Role, runID string, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{sink: s, role: role, runID: runID, ids: idgen.Default, now: time.Now, logger: logger}
}

// WithIDs returns a copy using gen for event IDs.
func (e *Emitter) WithIDs(gen idgen.Generator) *Emitter {
	c := *e
	c.ids = gen
	return &c
}

// Role returns the role stamped on events.
func (e *Emitter) Role() event.Role {
	if e == nil {
		return ""
	}
	return e.role
}

// Emit fills ID, Role, RunID and Timestamp when unset and sends ev.
func (e *Emitter) Emit(ctx context.Context, ev event.Event) {
	if e == nil || e.sink == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = e.ids()
	}
	if ev.Role == "" {
		ev.Role = e.role
	}
	if ev.RunID == "" {
		ev.RunID = e.runID
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = e.now().UnixMilli()
	}
	if err := e.sink.Send(ctx, ev); err != nil {
		e.logger.Warn("sink: emit failed", "kind", ev.Kind, "role", ev.Role, "error", err)
	}
}
