package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/inviterelay/relay/event"
	"github.com/hazyhaar/inviterelay/relay/internal/config"
	"github.com/hazyhaar/inviterelay/relay/internal/sink"
)

// Sink is the output interface for relay events.
type Sink = sink.Sink

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// webhookQueue bounds events waiting for a slow webhook.
const webhookQueue = 256

// NewWebhookSink creates a webhook POST sink with retry. Delivery runs in
// the background so a slow endpoint never holds up a loop. An empty kinds
// list forwards every event.
func NewWebhookSink(url string, logger *slog.Logger, kinds ...event.Kind) Sink {
	wh := sink.NewWebhook(url, sink.WithWebhookLogger(logger), sink.WithWebhookKinds(kinds...))
	return sink.NewAsync(wh, webhookQueue, logger)
}

// NewCallbackSink creates an in-process sink.
func NewCallbackSink(fn func(ctx context.Context, ev event.Event) error) Sink {
	return sink.Func(fn)
}

// sinksFromConfig builds the sinks declared in the config file.
func sinksFromConfig(cfgs []config.SinkConfig, logger *slog.Logger) ([]Sink, error) {
	var out []Sink
	for i, c := range cfgs {
		switch c.Type {
		case "stdout":
			out = append(out, NewStdoutSink(nil))
		case "webhook":
			kinds := make([]event.Kind, len(c.Kinds))
			for j, k := range c.Kinds {
				kinds[j] = event.Kind(k)
			}
			out = append(out, NewWebhookSink(c.URL, logger, kinds...))
		default:
			return nil, fmt.Errorf("relay: sinks[%d]: unknown type %q", i, c.Type)
		}
	}
	return out, nil
}
