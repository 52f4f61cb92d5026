package observability

import (
	"context"
	"sync"

	"github.com/hazyhaar/inviterelay/relay/event"
)

// Counters tallies events per kind for the lifetime of the process.
type Counters struct {
	mu     sync.Mutex
	counts map[event.Kind]int64
}

// NewCounters returns zeroed counters.
func NewCounters() *Counters {
	return &Counters{counts: make(map[event.Kind]int64)}
}

func (c *Counters) Send(_ context.Context, ev event.Event) error {
	c.mu.Lock()
	c.counts[ev.Kind]++
	c.mu.Unlock()
	return nil
}

func (c *Counters) Close() error { return nil }

// Get returns the count for one kind.
func (c *Counters) Get(k event.Kind) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[k]
}

// Snapshot copies every non-zero counter.
func (c *Counters) Snapshot() map[event.Kind]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[event.Kind]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}
