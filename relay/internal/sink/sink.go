// Package sink defines output backends for relay events.
package sink

import (
	"context"

	"github.com/hazyhaar/inviterelay/relay/event"
)

// Sink delivers events to one backend (stdout, webhook, journal,
// in-process callback).
type Sink interface {
	Send(ctx context.Context, ev event.Event) error
	Close() error
}
