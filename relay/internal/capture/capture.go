// CLAUDE:SUMMARY Capture loop: scrapes the invite code from the source page and stores it, resetting the counter on change.
// Package capture runs on the source site. Each iteration reads the code
// shown on the page and publishes it to the shared store.
package capture

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/inviterelay/relay/event"
	"github.com/hazyhaar/inviterelay/relay/internal/clicker"
	"github.com/hazyhaar/inviterelay/relay/internal/config"
	"github.com/hazyhaar/inviterelay/relay/internal/page"
	"github.com/hazyhaar/inviterelay/relay/internal/sink"
	"github.com/hazyhaar/inviterelay/store"
)

// Config is what the loop needs from the relay config.
type Config struct {
	Selector    string
	MinLen      int
	MaxAttempts int // 0 = until ctx ends
	Interval    time.Duration
}

// ConfigFrom extracts the capture settings.
func ConfigFrom(c *config.Config) Config {
	return Config{
		Selector:    c.Capture.Selector,
		MinLen:      c.Capture.MinLen,
		MaxAttempts: c.Loop.MaxAttempts,
		Interval:    c.Loop.RetryInterval,
	}
}

// Result is the outcome of one iteration.
type Result struct {
	Code    string // scraped text, possibly too short
	Valid   bool   // at least MinLen characters
	Changed bool   // store now holds Code with a reset counter
	Record  store.Record
}

// Loop is the capture loop for one page.
type Loop struct {
	cfg    Config
	store  store.Store
	page   page.Page
	events *sink.Emitter
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

// Option configures a Loop.
type Option func(*Loop)

// WithEmitter sets where code_changed and lifecycle events go.
func WithEmitter(e *sink.Emitter) Option {
	return func(l *Loop) { l.events = e }
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Loop) { l.logger = lg }
}

// WithSleep replaces the inter-iteration wait.
func WithSleep(f func(context.Context, time.Duration) error) Option {
	return func(l *Loop) { l.sleep = f }
}

// New returns a Loop reading pg and writing st.
func New(cfg Config, st store.Store, pg page.Page, opts ...Option) *Loop {
	l := &Loop{cfg: cfg, store: st, page: pg, logger: slog.Default(), sleep: clicker.Sleep}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Step runs one iteration. A page read failure is reported as an invalid
// empty code; only store errors are returned.
func (l *Loop) Step(ctx context.Context) (Result, error) {
	code, err := page.Text(ctx, l.page, l.cfg.Selector)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		l.logger.Debug("capture: page read failed", "url", l.page.URL(), "error", err)
		return Result{}, nil
	}

	res := Result{Code: code}
	if code == "" || utf8.RuneCountInString(code) < l.cfg.MinLen {
		return res, nil
	}
	res.Valid = true

	rec, changed, err := store.ObserveCode(ctx, l.store, code)
	if err != nil {
		return res, err
	}
	res.Changed, res.Record = changed, rec
	if changed {
		l.logger.Info("capture: new invite code stored", "code", code)
		l.events.Emit(ctx, event.Event{
			Kind:    event.KindCodeChanged,
			PageURL: l.page.URL(),
			Code:    code,
		})
	}
	return res, nil
}

// Run iterates until ctx ends or MaxAttempts iterations ran. It returns
// nil on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("capture: loop started", "url", l.page.URL(), "selector", l.cfg.Selector)
	l.events.Emit(ctx, event.Event{Kind: event.KindLoopStarted, PageURL: l.page.URL()})
	defer func() {
		l.logger.Info("capture: loop stopped")
		l.events.Emit(context.WithoutCancel(ctx), event.Event{Kind: event.KindLoopStopped, PageURL: l.page.URL()})
	}()

	for n := 1; l.cfg.MaxAttempts <= 0 || n <= l.cfg.MaxAttempts; n++ {
		res, err := l.Step(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			l.logger.Warn("capture: store write failed", "attempt", n, "error", err)
		case !res.Valid:
			l.logger.Debug("capture: no valid code found", "attempt", n, "text", res.Code)
		}
		if err := l.sleep(ctx, l.cfg.Interval); err != nil {
			return nil
		}
	}
	return nil
}
