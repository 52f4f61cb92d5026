package finder

import (
	"context"
	"errors"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/inviterelay/relay/internal/config"
	"github.com/hazyhaar/inviterelay/relay/internal/page"
	"github.com/hazyhaar/inviterelay/relay/internal/page/pagetest"
)

var fast = Policy{Tries: 10, Interval: time.Millisecond}

func TestPollStopsAtFirstHit(t *testing.T) {
	var calls atomic.Int32
	v, ok := Poll(context.Background(), fast, func(context.Context) (int, bool, error) {
		n := calls.Add(1)
		return int(n), n == 3, nil
	})
	if !ok || v != 3 {
		t.Fatalf("Poll = %d, %v; want 3, true", v, ok)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestPollExhaustsTries(t *testing.T) {
	var calls atomic.Int32
	_, ok := Poll(context.Background(), fast, func(context.Context) (struct{}, bool, error) {
		calls.Add(1)
		return struct{}{}, false, nil
	})
	if ok {
		t.Fatal("expected miss")
	}
	if calls.Load() != 10 {
		t.Fatalf("calls = %d, want 10", calls.Load())
	}
}

func TestPollErrorsAreMisses(t *testing.T) {
	var calls atomic.Int32
	v, ok := Poll(context.Background(), fast, func(context.Context) (string, bool, error) {
		if calls.Add(1) < 2 {
			return "", false, errors.New("transient")
		}
		return "x", true, nil
	})
	if !ok || v != "x" {
		t.Fatalf("Poll = %q, %v", v, ok)
	}
}

func TestPollTimeout(t *testing.T) {
	p := Policy{Tries: 1000, Interval: 10 * time.Millisecond, Timeout: 50 * time.Millisecond}
	start := time.Now()
	_, ok := Poll(context.Background(), p, func(context.Context) (int, bool, error) {
		return 0, false, nil
	})
	if ok {
		t.Fatal("expected miss")
	}
	if el := time.Since(start); el > time.Second {
		t.Fatalf("timeout not honoured: %v", el)
	}
}

func TestPollCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32
	_, ok := Poll(ctx, Policy{Tries: 100, Interval: 10 * time.Millisecond}, func(ctx context.Context) (int, bool, error) {
		calls.Add(1)
		return 0, false, ctx.Err()
	})
	if ok {
		t.Fatal("expected miss on cancelled ctx")
	}
	if calls.Load() > 1 {
		t.Fatalf("calls = %d after cancel", calls.Load())
	}
}

func TestPolicyFrom(t *testing.T) {
	p := PolicyFrom(config.FinderConfig{Tries: 4, Interval: time.Second, Backoff: config.BackoffExponential})
	if p.Tries != 4 || p.Interval != time.Second || !p.Exponential {
		t.Fatalf("policy = %+v", p)
	}
}

func TestFindUsesPredicate(t *testing.T) {
	pg := pagetest.New("https://sora.chatgpt.com/")
	pg.Add("button", pagetest.Button("Explore"))
	want := pg.Add("button", pagetest.Button("  Enter invite code  "))

	f := New(fast, nil)
	el, ok := f.Find(context.Background(), pg, "button", TextMatches(regexp.MustCompile(`(?i)enter.*invite.*code`)))
	if !ok {
		t.Fatal("not found")
	}
	if el != page.Element(want) {
		t.Fatal("wrong element")
	}
	if pg.Queries("button") != 1 {
		t.Fatalf("queries = %d, want 1", pg.Queries("button"))
	}
}

func TestFindWaitsForElement(t *testing.T) {
	pg := pagetest.New("https://sora.chatgpt.com/")
	in := pg.AddHidden("input", pagetest.Input("Invite code", nil))
	go func() {
		time.Sleep(3 * time.Millisecond)
		in.Show()
	}()

	f := New(Policy{Tries: 200, Interval: time.Millisecond}, nil)
	if _, ok := f.Find(context.Background(), pg, "input", Any); !ok {
		t.Fatal("element shown later was not found")
	}
}

func TestFindAbsent(t *testing.T) {
	pg := pagetest.New("https://sora.chatgpt.com/")
	f := New(Policy{Tries: 3, Interval: time.Millisecond}, nil)
	if el, ok := f.Find(context.Background(), pg, "input", nil); ok || el != nil {
		t.Fatalf("Find = %v, %v", el, ok)
	}
	if pg.Queries("input") != 3 {
		t.Fatalf("queries = %d, want 3", pg.Queries("input"))
	}
}

func TestPredicates(t *testing.T) {
	otp := pagetest.Input("", map[string]string{"data-input-otp": "true"})
	join := pagetest.Button("Join Sora", "bg-token-bg-inverse", "w-full")
	half := pagetest.Button("Join Sora", "bg-token-bg-inverse")

	input := Either(PlaceholderMatches(regexp.MustCompile(`(?i)code|invite|otp`)), AttrEquals("data-input-otp", "true"))
	if !input(otp) || !input(pagetest.Input("Enter OTP", nil)) || input(pagetest.Input("Email", nil)) {
		t.Fatal("input predicate mismatch")
	}

	submit := All(TextMatches(regexp.MustCompile(`(?i)join.*sora`)), HasClasses("bg-token-bg-inverse", "w-full"))
	if !submit(join) || submit(half) {
		t.Fatal("submit predicate mismatch")
	}
}
