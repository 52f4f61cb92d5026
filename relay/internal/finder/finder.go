// CLAUDE:SUMMARY Polls a page for the first element matching a selector and predicate, with bounded tries, backoff and timeout.
// Package finder polls a page for an element. Absence after the budget is
// a normal outcome, reported as ok=false, never as an error.
package finder

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hazyhaar/inviterelay/relay/internal/config"
	"github.com/hazyhaar/inviterelay/relay/internal/page"
)

// errMiss marks one unsuccessful probe.
var errMiss = errors.New("finder: no match yet")

// Policy is a polling budget.
type Policy struct {
	Tries    int
	Interval time.Duration
	// Exponential doubles the interval after each miss, capped at 16x.
	Exponential bool
	// Timeout bounds the whole poll. 0 = Tries alone bound it.
	Timeout time.Duration
}

// PolicyFrom converts the finder config section.
func PolicyFrom(c config.FinderConfig) Policy {
	return Policy{
		Tries:       c.Tries,
		Interval:    c.Interval,
		Exponential: c.Backoff == config.BackoffExponential,
		Timeout:     c.Timeout,
	}
}

func (p Policy) backOff() backoff.BackOff {
	if !p.Exponential {
		return backoff.NewConstantBackOff(p.Interval)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Interval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 16 * p.Interval
	return b
}

// Poll calls probe until it reports ok, the tries run out, the timeout
// elapses or ctx ends. Probe errors count as misses.
func Poll[T any](ctx context.Context, p Policy, probe func(context.Context) (T, bool, error)) (T, bool) {
	var zero T
	tries := p.Tries
	if tries < 1 {
		tries = 1
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	v, err := backoff.Retry(ctx, func() (T, error) {
		v, ok, err := probe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return zero, backoff.Permanent(ctx.Err())
			}
			return zero, err
		}
		if !ok {
			return zero, errMiss
		}
		return v, nil
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(tries)),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		return zero, false
	}
	return v, true
}

// Predicate selects among the elements a selector matched.
type Predicate func(page.Info) bool

// Any accepts every element.
func Any(page.Info) bool { return true }

// TextMatches tests the trimmed text content.
func TextMatches(re *regexp.Regexp) Predicate {
	return func(i page.Info) bool { return re.MatchString(strings.TrimSpace(i.Text)) }
}

// PlaceholderMatches tests the placeholder attribute.
func PlaceholderMatches(re *regexp.Regexp) Predicate {
	return func(i page.Info) bool { return re.MatchString(i.Placeholder) }
}

// AttrEquals tests one attribute value.
func AttrEquals(name, value string) Predicate {
	return func(i page.Info) bool { return i.Attr(name) == value }
}

// HasClasses requires every substring in the class attribute.
func HasClasses(subs ...string) Predicate {
	return func(i page.Info) bool {
		for _, s := range subs {
			if !i.HasClass(s) {
				return false
			}
		}
		return true
	}
}

// All is a logical AND.
func All(preds ...Predicate) Predicate {
	return func(i page.Info) bool {
		for _, p := range preds {
			if !p(i) {
				return false
			}
		}
		return true
	}
}

// Either is a logical OR.
func Either(preds ...Predicate) Predicate {
	return func(i page.Info) bool {
		for _, p := range preds {
			if p(i) {
				return true
			}
		}
		return false
	}
}

// Finder applies one Policy to element lookups.
type Finder struct {
	policy Policy
	logger *slog.Logger
}

// New returns a Finder. A nil logger uses slog.Default.
func New(p Policy, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{policy: p, logger: logger}
}

// Policy returns the polling budget.
func (f *Finder) Policy() Policy { return f.policy }

// Find returns the first element matching selector and pred, in document
// order, polling per the Finder's policy.
func (f *Finder) Find(ctx context.Context, pg page.Page, selector string, pred Predicate) (page.Element, bool) {
	if pred == nil {
		pred = Any
	}
	el, ok := Poll(ctx, f.policy, func(ctx context.Context) (page.Element, bool, error) {
		els, err := pg.QueryAll(ctx, selector)
		if err != nil {
			f.logger.Debug("finder: query failed", "selector", selector, "error", err)
			return nil, false, err
		}
		for _, el := range els {
			info, err := el.Info(ctx)
			if err != nil {
				continue
			}
			if pred(info) {
				return el, true, nil
			}
		}
		return nil, false, nil
	})
	if !ok {
		f.logger.Debug("finder: not found", "selector", selector, "tries", f.policy.Tries)
	}
	return el, ok
}
