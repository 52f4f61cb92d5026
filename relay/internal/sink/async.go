package sink

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hazyhaar/inviterelay/relay/event"
)

// ErrQueueFull is returned by Async.Send when the buffer is full and the
// event was dropped.
var ErrQueueFull = errors.New("sink: queue full")

// Async queues events for a slow sink and delivers them from one
// goroutine, in order, so Send never waits on the network.
type Async struct {
	next   Sink
	queue  chan asyncItem
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

type asyncItem struct {
	ctx context.Context
	ev  event.Event
}

// NewAsync wraps next with a queue of size events.
func NewAsync(next Sink, size int, logger *slog.Logger) *Async {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = 256
	}
	a := &Async{
		next:   next,
		queue:  make(chan asyncItem, size),
		logger: logger,
		done:   make(chan struct{}),
	}
	go a.deliver()
	return a
}

// Send enqueues ev. The caller's cancellation does not reach delivery.
func (a *Async) Send(ctx context.Context, ev event.Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}
	select {
	case a.queue <- asyncItem{ctx: context.WithoutCancel(ctx), ev: ev}:
		return nil
	default:
		a.logger.Warn("sink: queue full, event dropped", "kind", ev.Kind)
		return ErrQueueFull
	}
}

func (a *Async) deliver() {
	defer close(a.done)
	for it := range a.queue {
		if err := a.next.Send(it.ctx, it.ev); err != nil {
			a.logger.Warn("sink: async delivery failed", "kind", it.ev.Kind, "error", err)
		}
	}
}

// Close stops accepting events, waits for the queue to drain and closes
// the wrapped sink.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	<-a.done
	return a.next.Close()
}
