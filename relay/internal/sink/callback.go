package sink

import (
	"context"

	"github.com/hazyhaar/inviterelay/relay/event"
)

// Func adapts a function to Sink, for in-process consumers and tests.
type Func func(ctx context.Context, ev event.Event) error

func (f Func) Send(ctx context.Context, ev event.Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, ev)
}

func (f Func) Close() error { return nil }
