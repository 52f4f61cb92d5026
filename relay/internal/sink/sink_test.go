package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/inviterelay/idgen"
	"github.com/hazyhaar/inviterelay/relay/event"
)

func TestRouterFansOutAndReportsFirstError(t *testing.T) {
	var a, b int
	boom := errors.New("boom")
	r := NewRouter(slog.Default(),
		Func(func(context.Context, event.Event) error { a++; return boom }),
		Func(func(context.Context, event.Event) error { b++; return nil }),
	)

	err := r.Send(context.Background(), event.Event{Kind: event.KindAttempt})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if a != 1 || b != 1 {
		t.Fatalf("deliveries a=%d b=%d, want 1/1", a, b)
	}
}

func TestStdoutWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	s.Send(context.Background(), event.Event{ID: "1", Kind: event.KindCodeChanged, Code: "AB12CD"})
	s.Send(context.Background(), event.Event{ID: "2", Kind: event.KindAttempt, Code: "AB12CD", Attempts: 1})

	dec := json.NewDecoder(&buf)
	var got []event.Event
	for dec.More() {
		var ev event.Event
		if err := dec.Decode(&ev); err != nil {
			t.Fatal(err)
		}
		got = append(got, ev)
	}
	if len(got) != 2 || got[1].Attempts != 1 {
		t.Fatalf("decoded %+v", got)
	}
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev event.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil || ev.Code != "AB12CD" {
			t.Errorf("bad body: %v %+v", err, ev)
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithWebhookRetryWait(5*time.Millisecond))
	if err := wh.Send(context.Background(), event.Event{Kind: event.KindCodeChanged, Code: "AB12CD"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithWebhookRetryWait(5*time.Millisecond))
	if err := wh.Send(context.Background(), event.Event{Kind: event.KindAttempt}); err == nil {
		t.Fatal("expected error for 403")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestWebhookKindFilter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithWebhookKinds(event.KindCodeChanged))
	wh.Send(context.Background(), event.Event{Kind: event.KindAttempt})
	wh.Send(context.Background(), event.Event{Kind: event.KindCodeChanged})
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestEmitterStampsEvents(t *testing.T) {
	var got []event.Event
	rec := Func(func(_ context.Context, ev event.Event) error {
		got = append(got, ev)
		return nil
	})
	e := NewEmitter(rec, event.RoleSubmit, "run-1", slog.Default()).WithIDs(idgen.Sequence("ev"))
	e.now = func() time.Time { return time.UnixMilli(1700000000000) }

	e.Emit(context.Background(), event.Event{Kind: event.KindAttempt, Code: "AB12CD", Attempts: 3})
	e.Emit(context.Background(), event.Event{Kind: event.KindManualReset, Role: event.RoleOperator})

	if len(got) != 2 {
		t.Fatalf("got %d events", len(got))
	}
	if got[0].ID != "ev1" || got[0].Role != event.RoleSubmit || got[0].RunID != "run-1" || got[0].Timestamp != 1700000000000 {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].ID != "ev2" || got[1].Role != event.RoleOperator {
		t.Errorf("explicit role overwritten: %+v", got[1])
	}
}

func TestEmitterSwallowsErrors(t *testing.T) {
	e := NewEmitter(Func(func(context.Context, event.Event) error { return errors.New("down") }), event.RoleCapture, "", nil)
	e.Emit(context.Background(), event.Event{Kind: event.KindCodeChanged})

	var nilEmitter *Emitter
	nilEmitter.Emit(context.Background(), event.Event{Kind: event.KindCodeChanged})
}

func TestWebhookBreakerPausesDelivery(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithWebhookBreaker(2, time.Hour))
	ctx := context.Background()
	for range 2 {
		wh.Send(ctx, event.Event{Kind: event.KindAttempt})
	}
	if err := wh.Send(ctx, event.Event{Kind: event.KindAttempt}); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("err = %v, want ErrBreakerOpen", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Unix(0, 0)
	b := newBreaker(1, time.Second)
	b.now = func() time.Time { return now }

	b.record(errors.New("down"))
	if b.allow() {
		t.Fatal("open breaker allowed a call")
	}
	now = now.Add(time.Second)
	if !b.allow() {
		t.Fatal("no probe after cooldown")
	}
	if b.allow() {
		t.Fatal("second caller allowed during probe")
	}
	b.record(nil)
	if !b.allow() || !b.allow() {
		t.Fatal("breaker did not close after successful probe")
	}
}

func TestAsyncDoesNotWaitOnSlowSink(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var got []string
	slow := Func(func(_ context.Context, ev event.Event) error {
		<-release
		mu.Lock()
		got = append(got, ev.ID)
		mu.Unlock()
		return nil
	})
	a := NewAsync(slow, 2, slog.Default())

	start := time.Now()
	// The first event is taken by the delivery goroutine, the next two fill
	// the queue.
	for _, id := range []string{"e1", "e2", "e3"} {
		a.Send(context.Background(), event.Event{ID: id, Kind: event.KindAttempt})
		time.Sleep(5 * time.Millisecond)
	}
	if err := a.Send(context.Background(), event.Event{ID: "e4"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if d := time.Since(start); d > time.Second {
		t.Fatalf("Send blocked for %v", d)
	}

	close(release)
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] != "e1" || got[2] != "e3" {
		t.Fatalf("delivered = %v", got)
	}
	if err := a.Send(context.Background(), event.Event{ID: "late"}); err != nil {
		t.Fatalf("Send after Close = %v", err)
	}
}

func TestAsyncWebhookDoesNotBlockEmitter(t *testing.T) {
	hang := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-hang
	}))
	defer srv.Close()
	defer close(hang)

	wh := NewWebhook(srv.URL, WithWebhookRetries(0))
	a := NewAsync(wh, 8, slog.Default())
	e := NewEmitter(a, event.RoleSubmit, "run-1", slog.Default())

	start := time.Now()
	for range 5 {
		e.Emit(context.Background(), event.Event{Kind: event.KindAttempt})
	}
	if d := time.Since(start); d > 500*time.Millisecond {
		t.Fatalf("Emit blocked for %v on a hanging webhook", d)
	}
}
