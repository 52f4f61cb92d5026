// CLAUDE:SUMMARY Submit loop: drives the destination form with the stored code, bounded by a per-code retry limit.
// Package submit runs on the destination site. Each iteration reads the
// shared code and, while the code still has tries left, reveals the code
// input, fills it and clicks the join button.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/hazyhaar/inviterelay/relay/event"
	"github.com/hazyhaar/inviterelay/relay/internal/clicker"
	"github.com/hazyhaar/inviterelay/relay/internal/config"
	"github.com/hazyhaar/inviterelay/relay/internal/finder"
	"github.com/hazyhaar/inviterelay/relay/internal/page"
	"github.com/hazyhaar/inviterelay/relay/internal/sink"
	"github.com/hazyhaar/inviterelay/store"
)

// Status is what one iteration did.
type Status string

const (
	StatusNoCode    Status = "no_code"
	StatusExhausted Status = "exhausted"
	StatusAttempted Status = "attempted" // counted
	StatusVoided    Status = "voided"    // ran, not counted
)

// Matchers locate the three controls.
type Matchers struct {
	EnterButton  finder.Predicate
	Input        finder.Predicate
	SubmitButton finder.Predicate
}

// MatchersFrom compiles the submit config patterns.
func MatchersFrom(c config.SubmitConfig) (Matchers, error) {
	enter, err := regexp.Compile(c.EnterButtonPattern)
	if err != nil {
		return Matchers{}, fmt.Errorf("submit: enter button pattern: %w", err)
	}
	input, err := regexp.Compile(c.InputPattern)
	if err != nil {
		return Matchers{}, fmt.Errorf("submit: input pattern: %w", err)
	}
	join, err := regexp.Compile(c.SubmitButtonPattern)
	if err != nil {
		return Matchers{}, fmt.Errorf("submit: submit button pattern: %w", err)
	}

	inputPred := finder.PlaceholderMatches(input)
	if c.InputMarkerAttr != "" {
		inputPred = finder.Either(inputPred, finder.AttrEquals(c.InputMarkerAttr, "true"))
	}
	return Matchers{
		EnterButton:  finder.TextMatches(enter),
		Input:        inputPred,
		SubmitButton: finder.All(finder.TextMatches(join), finder.HasClasses(c.SubmitButtonClasses...)),
	}, nil
}

// Config is what the loop needs from the relay config.
type Config struct {
	MaxAttempts int // 0 = until ctx ends
	MaxTries    int
	Interval    time.Duration
	Policy      string
	Matchers    Matchers
}

// ConfigFrom extracts the submit settings.
func ConfigFrom(c *config.Config) (Config, error) {
	m, err := MatchersFrom(c.Submit)
	if err != nil {
		return Config{}, err
	}
	return Config{
		MaxAttempts: c.Loop.MaxAttempts,
		MaxTries:    c.Loop.MaxTriesPerCode,
		Interval:    c.Loop.RetryInterval,
		Policy:      c.Submit.AttemptPolicy,
		Matchers:    m,
	}, nil
}

// Outcome is the result of one iteration.
type Outcome struct {
	Status   Status
	Record   store.Record
	Controls event.Controls
	Reason   string
}

// Loop is the submit loop for one page.
type Loop struct {
	cfg    Config
	store  store.Store
	page   page.Page
	find   *finder.Finder
	click  *clicker.Clicker
	events *sink.Emitter
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

// Option configures a Loop.
type Option func(*Loop)

// WithEmitter sets where attempt and lifecycle events go.
func WithEmitter(e *sink.Emitter) Option {
	return func(l *Loop) { l.events = e }
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Loop) { l.logger = lg }
}

// WithSleep replaces the inter-iteration wait used after attempts.
func WithSleep(f func(context.Context, time.Duration) error) Option {
	return func(l *Loop) { l.sleep = f }
}

// New returns a Loop driving pg with the given finder and clicker.
func New(cfg Config, st store.Store, pg page.Page, f *finder.Finder, c *clicker.Clicker, opts ...Option) *Loop {
	l := &Loop{
		cfg:    cfg,
		store:  st,
		page:   pg,
		find:   f,
		click:  c,
		logger: slog.Default(),
		sleep:  clicker.Sleep,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Step runs one iteration: load, gate on the retry limit, drive the page,
// count. Page trouble is never an error; store failures and cancellation
// are.
func (l *Loop) Step(ctx context.Context) (Outcome, error) {
	rec, err := l.store.Load(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("submit: load: %w", err)
	}
	code := strings.TrimSpace(rec.Code)
	if code == "" {
		return Outcome{Status: StatusNoCode, Record: rec}, nil
	}
	if rec.Exhausted(l.cfg.MaxTries) {
		return Outcome{Status: StatusExhausted, Record: rec}, nil
	}

	l.logger.Info("submit: attempt", "code", code, "try", rec.Attempts+1, "max", l.cfg.MaxTries)
	controls, err := l.drive(ctx, code)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Controls: controls, Record: rec}

	if l.cfg.Policy == config.PolicySubmitted && !controls.SubmitButton {
		out.Status, out.Reason = StatusVoided, "submit button not found"
		l.void(ctx, code, rec, controls, out.Reason)
		return out, nil
	}

	// rec.Code may carry whitespace; RecordAttempt compares the stored value.
	next, err := store.RecordAttempt(ctx, l.store, rec.Code)
	if errors.Is(err, store.ErrCodeChanged) {
		out.Status, out.Reason = StatusVoided, "code changed during attempt"
		l.void(ctx, code, rec, controls, out.Reason)
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("submit: record attempt: %w", err)
	}
	out.Status, out.Record = StatusAttempted, next

	l.logger.Info("submit: code submitted", "code", code,
		"tries", next.Attempts, "max", l.cfg.MaxTries,
		"enter_button", controls.EnterButton, "input", controls.Input, "submit_button", controls.SubmitButton)
	l.events.Emit(ctx, event.Event{
		Kind:     event.KindAttempt,
		PageURL:  l.page.URL(),
		Code:     code,
		Attempts: next.Attempts,
		MaxTries: l.cfg.MaxTries,
		Controls: &controls,
	})
	if next.Attempts == l.cfg.MaxTries {
		l.logger.Info("submit: code exhausted", "code", code, "tries", next.Attempts)
		l.events.Emit(ctx, event.Event{
			Kind:     event.KindExhausted,
			PageURL:  l.page.URL(),
			Code:     code,
			Attempts: next.Attempts,
			MaxTries: l.cfg.MaxTries,
		})
	}
	return out, nil
}

// drive performs the three page interactions. Each missing control is
// skipped and the next one is still tried.
func (l *Loop) drive(ctx context.Context, code string) (event.Controls, error) {
	var c event.Controls

	if btn, ok := l.find.Find(ctx, l.page, "button", l.cfg.Matchers.EnterButton); ok {
		c.EnterButton = true
		if err := l.click.Click(ctx, btn); err != nil {
			return c, err
		}
	}

	if in, ok := l.find.Find(ctx, l.page, "input", l.cfg.Matchers.Input); ok {
		c.Input = true
		if err := l.fill(ctx, in, code); err != nil {
			return c, err
		}
	}

	if btn, ok := l.find.Find(ctx, l.page, "button", l.cfg.Matchers.SubmitButton); ok {
		c.SubmitButton = true
		if err := l.click.Click(ctx, btn); err != nil {
			return c, err
		}
	}

	if err := ctx.Err(); err != nil {
		return c, err
	}
	for name, found := range map[string]bool{
		"enter_button": c.EnterButton, "input": c.Input, "submit_button": c.SubmitButton,
	} {
		if !found {
			l.logger.Debug("submit: control not found", "control", name)
		}
	}
	return c, nil
}

// fill focuses the input, sets the value and blurs it.
func (l *Loop) fill(ctx context.Context, in page.Element, code string) error {
	for _, step := range []func(context.Context) error{
		in.Focus,
		func(ctx context.Context) error { return in.SetValue(ctx, code) },
		in.Blur,
	} {
		if err := step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Debug("submit: input fill failed", "error", err)
			return nil
		}
	}
	return nil
}

func (l *Loop) void(ctx context.Context, code string, rec store.Record, c event.Controls, reason string) {
	l.logger.Info("submit: attempt not counted", "code", code, "reason", reason)
	l.events.Emit(ctx, event.Event{
		Kind:     event.KindAttemptVoided,
		PageURL:  l.page.URL(),
		Code:     code,
		Attempts: rec.Attempts,
		MaxTries: l.cfg.MaxTries,
		Controls: &c,
		Detail:   reason,
	})
}

// Run iterates until ctx ends or MaxAttempts iterations ran. While idle
// (no code, or code exhausted) it waits for the retry interval or a store
// change, whichever comes first. It returns nil on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	var changes <-chan struct{}
	if sub, ok := l.store.(store.Subscriber); ok {
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		changes = sub.Subscribe(subCtx)
	}

	l.logger.Info("submit: loop started", "url", l.page.URL(), "max_tries", l.cfg.MaxTries, "policy", l.cfg.Policy)
	l.events.Emit(ctx, event.Event{Kind: event.KindLoopStarted, PageURL: l.page.URL(), MaxTries: l.cfg.MaxTries})
	defer func() {
		l.logger.Info("submit: loop stopped")
		l.events.Emit(context.WithoutCancel(ctx), event.Event{Kind: event.KindLoopStopped, PageURL: l.page.URL()})
	}()

	for n := 1; l.cfg.MaxAttempts <= 0 || n <= l.cfg.MaxAttempts; n++ {
		out, err := l.Step(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			l.logger.Warn("submit: iteration failed", "iteration", n, "error", err)
		}

		switch out.Status {
		case StatusNoCode:
			l.logger.Debug("submit: no code stored yet")
			if !l.idle(ctx, changes) {
				return nil
			}
		case StatusExhausted:
			l.logger.Debug("submit: skipping code", "code", out.Record.Code, "tries", out.Record.Attempts)
			if !l.idle(ctx, changes) {
				return nil
			}
		default:
			if err := l.sleep(ctx, l.cfg.Interval); err != nil {
				return nil
			}
		}
	}
	return nil
}

// idle waits for the interval or a store change. It reports false once
// ctx has ended.
func (l *Loop) idle(ctx context.Context, changes <-chan struct{}) bool {
	t := time.NewTimer(l.cfg.Interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
	case <-changes:
	}
	return true
}
