package observability

import (
	"context"
	"sync"

	"github.com/hazyhaar/inviterelay/relay/event"
)

// Ring keeps the last N events in memory. It stands in for the Journal
// when the relay runs without a database.
type Ring struct {
	mu    sync.Mutex
	buf   []event.Event
	next  int
	count int
}

// NewRing creates a Ring holding up to size events.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = 256
	}
	return &Ring{buf: make([]event.Event, size)}
}

func (r *Ring) Send(_ context.Context, ev event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = ev
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	return nil
}

func (r *Ring) Close() error { return nil }

// Recent returns up to limit events, newest first.
func (r *Ring) Recent(_ context.Context, limit int) ([]event.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > r.count {
		limit = r.count
	}
	out := make([]event.Event, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out, nil
}
