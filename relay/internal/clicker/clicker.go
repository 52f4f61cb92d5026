// Package clicker performs a human-paced synthetic click: pointer and
// mouse events at a random point inside the element, with jittered
// delays between them.
package clicker

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/hazyhaar/inviterelay/relay/internal/config"
	"github.com/hazyhaar/inviterelay/relay/internal/page"
)

// Sequence is the dispatch order of one click.
var Sequence = []string{"pointerdown", "mousedown", "mouseup", "pointerup", "click"}

// inset keeps the click point off the element border.
const inset = 2.0

// Clicker dispatches click sequences.
type Clicker struct {
	delayMin  time.Duration
	delayMax  time.Duration
	postDelay time.Duration
	logger    *slog.Logger

	float func() float64
	sleep func(context.Context, time.Duration) error
}

// Option configures a Clicker.
type Option func(*Clicker)

// WithRand replaces the uniform [0,1) source.
func WithRand(f func() float64) Option {
	return func(c *Clicker) { c.float = f }
}

// WithSleep replaces the context-aware sleep.
func WithSleep(f func(context.Context, time.Duration) error) Option {
	return func(c *Clicker) { c.sleep = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Clicker) { c.logger = l }
}

// New returns a Clicker for the click config section.
func New(cfg config.ClickConfig, opts ...Option) *Clicker {
	c := &Clicker{
		delayMin:  cfg.DelayMin,
		delayMax:  cfg.DelayMax,
		postDelay: cfg.PostDelay,
		logger:    slog.Default(),
		float:     rand.Float64,
		sleep:     Sleep,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Click runs the sequence on el. It returns only ctx errors: a detached or
// unreadable element ends the sequence early and silently.
func (c *Clicker) Click(ctx context.Context, el page.Element) error {
	if el == nil {
		return nil
	}
	box, err := el.Box(ctx)
	if err != nil {
		return c.abandon(ctx, "box", err)
	}
	x, y := c.Point(box)

	for _, typ := range Sequence {
		if err := el.Dispatch(ctx, typ, x, y); err != nil {
			return c.abandon(ctx, typ, err)
		}
		if err := c.sleep(ctx, c.jitter()); err != nil {
			return err
		}
	}
	return c.sleep(ctx, c.postDelay)
}

// Point picks a uniform point inside box shrunk by 2px on every side.
// Boxes narrower than the inset collapse to their centre line.
func (c *Clicker) Point(b page.Box) (float64, float64) {
	return b.X + c.span(b.Width), b.Y + c.span(b.Height)
}

func (c *Clicker) span(size float64) float64 {
	if size <= 2*inset {
		return size / 2
	}
	return inset + c.float()*(size-2*inset)
}

func (c *Clicker) jitter() time.Duration {
	if c.delayMax <= c.delayMin {
		return c.delayMin
	}
	return c.delayMin + time.Duration(c.float()*float64(c.delayMax-c.delayMin))
}

func (c *Clicker) abandon(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	c.logger.Debug("clicker: sequence abandoned", "step", step, "error", err)
	return nil
}

// Sleep waits d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
