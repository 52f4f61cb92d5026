// CLAUDE:SUMMARY POSTs relay events as JSON to a webhook URL with resty-managed retries.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hazyhaar/inviterelay/relay/event"
)

// Webhook POSTs each event as JSON. Transport errors and 5xx responses are
// retried with exponential backoff; 4xx responses are not. After five
// failed deliveries in a row events are dropped for 30s.
type Webhook struct {
	url     string
	client  *resty.Client
	kinds   map[event.Kind]bool
	breaker *breaker
	logger  *slog.Logger
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets the retry count. Default: 3.
func WithWebhookRetries(n int) WebhookOption {
	return func(w *Webhook) { w.client.SetRetryCount(n) }
}

// WithWebhookRetryWait sets the first retry delay. Default: 500ms.
func WithWebhookRetryWait(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.client.SetRetryWaitTime(d) }
}

// WithWebhookBreaker sets the consecutive failure count that pauses
// delivery and how long the pause lasts.
func WithWebhookBreaker(threshold int, cooldown time.Duration) WebhookOption {
	return func(w *Webhook) { w.breaker = newBreaker(threshold, cooldown) }
}

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = l }
}

// WithWebhookKinds restricts delivery to the given kinds. Empty means all.
func WithWebhookKinds(kinds ...event.Kind) WebhookOption {
	return func(w *Webhook) {
		for _, k := range kinds {
			w.kinds[k] = true
		}
	}
}

// NewWebhook creates a Webhook sink targeting url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	client := resty.New().
		SetTimeout(10*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(4*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	w := &Webhook{
		url:     url,
		client:  client,
		kinds:   make(map[event.Kind]bool),
		breaker: newBreaker(5, 30*time.Second),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Webhook) Send(ctx context.Context, ev event.Event) error {
	if len(w.kinds) > 0 && !w.kinds[ev.Kind] {
		return nil
	}
	if !w.breaker.allow() {
		return ErrBreakerOpen
	}
	err := w.post(ctx, ev)
	w.breaker.record(err)
	return err
}

func (w *Webhook) post(ctx context.Context, ev event.Event) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(ev).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("webhook: %s returned %s", w.url, resp.Status())
	}
	w.logger.Debug("webhook: delivered", "kind", ev.Kind, "status", resp.StatusCode())
	return nil
}

func (w *Webhook) Close() error { return nil }
