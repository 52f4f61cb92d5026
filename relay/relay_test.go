package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/inviterelay/relay/event"
	"github.com/hazyhaar/inviterelay/relay/internal/browser"
	"github.com/hazyhaar/inviterelay/relay/internal/page"
	"github.com/hazyhaar/inviterelay/relay/internal/page/pagetest"
	"github.com/hazyhaar/inviterelay/store"
)

const codeSelector = "button span.font-mono.text-2xl.font-bold.text-gray-900"

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Store.Memory = true
	cfg.Loop.RetryInterval = time.Millisecond
	cfg.Loop.LoadDelay = 0
	cfg.Finder.Tries = 2
	cfg.Finder.Interval = time.Millisecond
	cfg.Click.DelayMin, cfg.Click.DelayMax, cfg.Click.PostDelay = 0, 0, 0
	return cfg
}

func TestAttachCapturePage(t *testing.T) {
	cfg := testConfig()
	cfg.Loop.MaxAttempts = 3
	st := store.NewMemory()
	r, err := New(cfg, st, nil, WithRunID("run_test"))
	if err != nil {
		t.Fatal(err)
	}

	pg := pagetest.New("https://formbiz.biz/invite")
	pg.Add(codeSelector, pagetest.Button("AB12CD"))
	if err := r.Attach(context.Background(), pg); err != nil {
		t.Fatal(err)
	}

	rec, _ := st.Load(context.Background())
	if rec.Code != "AB12CD" || rec.Attempts != 0 {
		t.Fatalf("record = %+v", rec)
	}
	evs, _ := r.Operator().Events(context.Background(), 10)
	if len(evs) == 0 || evs[0].Kind != event.KindLoopStopped || evs[0].RunID != "run_test" {
		t.Fatalf("events = %+v", evs)
	}
}

func TestAttachSubmitPage(t *testing.T) {
	cfg := testConfig()
	cfg.Loop.MaxAttempts = 10
	st := store.NewMemory()
	store.ObserveCode(context.Background(), st, "AB12CD")
	r, err := New(cfg, st, nil)
	if err != nil {
		t.Fatal(err)
	}

	pg := pagetest.New("https://sora.chatgpt.com/")
	in := pg.Add("input", pagetest.Input("Enter invite code", nil))
	join := pg.Add("button", pagetest.Button("Join Sora", "bg-token-bg-inverse", "w-full"))

	if err := r.Attach(context.Background(), pg); err != nil {
		t.Fatal(err)
	}
	rec, _ := st.Load(context.Background())
	if rec.Attempts != 5 {
		t.Fatalf("attempts = %d, want the limit 5", rec.Attempts)
	}
	if join.Clicks() != 5 || in.Value() != "AB12CD" {
		t.Fatalf("clicks = %d value = %q", join.Clicks(), in.Value())
	}
	st2, _ := r.Operator().State(context.Background())
	if !st2.Exhausted || st2.Counters[event.KindAttempt] != 5 || st2.Counters[event.KindExhausted] != 1 {
		t.Fatalf("state = %+v", st2)
	}
}

func TestAttachUnknownOrigin(t *testing.T) {
	r, err := New(testConfig(), store.NewMemory(), nil)
	if err != nil {
		t.Fatal(err)
	}
	err = r.Attach(context.Background(), pagetest.New("https://example.org/"))
	if !errors.Is(err, ErrNoRole) {
		t.Fatalf("err = %v, want ErrNoRole", err)
	}
}

func TestRunCaptureOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><button><span class="font-mono text-2xl font-bold text-gray-900">ZX98YW</span></button></body></html>`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Loop.MaxAttempts = 2
	cfg.Sites.Capture.URL = srv.URL + "/"
	cfg.Sites.Capture.Hosts = []string{"127.0.0.1"}
	cfg.Sites.Capture.StealthLevel = "0"

	var seen []event.Kind
	extra := []Sink{NewCallbackSink(func(_ context.Context, ev event.Event) error {
		seen = append(seen, ev.Kind)
		return nil
	})}
	st := store.NewMemory()
	r, err := New(cfg, st, extra)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Run(context.Background(), event.RoleCapture); err != nil {
		t.Fatal(err)
	}
	if rec, _ := st.Load(context.Background()); rec.Code != "ZX98YW" {
		t.Fatalf("record = %+v", rec)
	}
	want := []event.Kind{event.KindLoopStarted, event.KindCodeChanged, event.KindLoopStopped}
	if len(seen) != len(want) {
		t.Fatalf("events = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("events = %v, want %v", seen, want)
		}
	}
}

func TestRunCaptureOverHTTPRespectsFetchInterval(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`<button><span class="font-mono text-2xl font-bold text-gray-900">ZX98YW</span></button>`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Loop.MaxAttempts = 200
	cfg.Sites.Capture.URL = srv.URL + "/"
	cfg.Sites.Capture.Hosts = []string{"127.0.0.1"}
	cfg.Sites.Capture.StealthLevel = "0"
	cfg.Sites.Capture.FetchInterval = time.Hour

	r, err := New(cfg, store.NewMemory(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Run(context.Background(), event.RoleCapture); err != nil {
		t.Fatal(err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("source site fetched %d times in 200 iterations, want 1", n)
	}
}

func TestRunSiteReopensTabThatLeftTheSite(t *testing.T) {
	cfg := testConfig()
	cfg.Loop.MaxAttempts = 1
	st := store.NewMemory()
	r, err := New(cfg, st, nil)
	if err != nil {
		t.Fatal(err)
	}

	var opens int
	r.open = func(_ context.Context, url string, _ browser.Level) (page.Page, func(), error) {
		opens++
		if opens == 1 {
			return pagetest.New("https://accounts.example.com/login"), func() {}, nil
		}
		pg := pagetest.New(url)
		pg.Add(codeSelector, pagetest.Button("AB12CD"))
		return pg, func() {}, nil
	}

	if err := r.runSite(context.Background(), event.RoleCapture); err != nil {
		t.Fatal(err)
	}
	if opens != 2 {
		t.Fatalf("opens = %d, want 2", opens)
	}
	if rec, _ := st.Load(context.Background()); rec.Code != "AB12CD" {
		t.Fatalf("record = %+v", rec)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Loop.MaxTriesPerCode = 0
	if _, err := New(cfg, store.NewMemory(), nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v", err)
	}

	cfg = testConfig()
	cfg.Sites.Submit.Hosts = []string{"com"}
	if _, err := New(cfg, store.NewMemory(), nil); err == nil {
		t.Fatal("public suffix host accepted")
	}
}
