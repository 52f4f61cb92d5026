package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/inviterelay/dbopen"
	"github.com/hazyhaar/inviterelay/store"
)

var ignoreTime = cmpopts.IgnoreFields(store.Record{}, "UpdatedAt")

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s store.Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, store.NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
		fn(t, store.NewSQLite(db, store.WithPollInterval(10*time.Millisecond)))
	})
}

func TestLoadEmpty(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		rec, err := s.Load(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(store.Record{}, rec, ignoreTime); diff != "" {
			t.Fatalf("empty record mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestObserveCodeResetsCounterOnChange(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()

		rec, changed, err := store.ObserveCode(ctx, s, "AB12CD")
		if err != nil {
			t.Fatal(err)
		}
		if !changed {
			t.Fatal("first code should count as a change")
		}
		want := store.Record{Code: "AB12CD", Attempts: 0, Version: 1}
		if diff := cmp.Diff(want, rec, ignoreTime); diff != "" {
			t.Fatalf("(-want +got):\n%s", diff)
		}

		for range 3 {
			if _, err := store.RecordAttempt(ctx, s, "AB12CD"); err != nil {
				t.Fatal(err)
			}
		}

		rec, changed, err = store.ObserveCode(ctx, s, "ZZ99YY")
		if err != nil {
			t.Fatal(err)
		}
		if !changed || rec.Code != "ZZ99YY" || rec.Attempts != 0 {
			t.Fatalf("got changed=%v rec=%+v, want new code with 0 attempts", changed, rec)
		}
	})
}

func TestObserveUnchangedCodeKeepsCounter(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		store.ObserveCode(ctx, s, "AB12CD")
		store.RecordAttempt(ctx, s, "AB12CD")
		store.RecordAttempt(ctx, s, "AB12CD")

		for range 5 {
			rec, changed, err := store.ObserveCode(ctx, s, "AB12CD")
			if err != nil {
				t.Fatal(err)
			}
			if changed {
				t.Fatal("unchanged code reported as change")
			}
			if rec.Attempts != 2 {
				t.Fatalf("attempts = %d, want 2", rec.Attempts)
			}
		}
	})
}

func TestRecordAttemptIncrementsByOne(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		store.ObserveCode(ctx, s, "AB12CD")

		for want := 1; want <= 4; want++ {
			rec, err := store.RecordAttempt(ctx, s, "AB12CD")
			if err != nil {
				t.Fatal(err)
			}
			if rec.Attempts != want {
				t.Fatalf("attempts = %d, want %d", rec.Attempts, want)
			}
		}
	})
}

func TestRecordAttemptAfterCodeChange(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		store.ObserveCode(ctx, s, "AB12CD")
		store.ObserveCode(ctx, s, "NEWONE")

		_, err := store.RecordAttempt(ctx, s, "AB12CD")
		if !errors.Is(err, store.ErrCodeChanged) {
			t.Fatalf("err = %v, want ErrCodeChanged", err)
		}
		rec, _ := s.Load(ctx)
		if rec.Attempts != 0 {
			t.Fatalf("attempts = %d, new code must keep its budget", rec.Attempts)
		}
	})
}

func TestCompareAndSwapConflict(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		if _, err := s.CompareAndSwap(ctx, 0, "AB12CD", 0); err != nil {
			t.Fatal(err)
		}
		if _, err := s.CompareAndSwap(ctx, 0, "OTHER1", 0); !errors.Is(err, store.ErrConflict) {
			t.Fatalf("stale CAS err = %v, want ErrConflict", err)
		}
		rec, _ := s.Load(ctx)
		if rec.Code != "AB12CD" || rec.Version != 1 {
			t.Fatalf("record = %+v after rejected CAS", rec)
		}
	})
}

func TestConcurrentAttemptsAreNotLost(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		store.ObserveCode(ctx, s, "AB12CD")

		const writers = 8
		var wg sync.WaitGroup
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.RecordAttempt(ctx, s, "AB12CD"); err != nil {
					t.Error(err)
				}
			}()
		}
		wg.Wait()

		rec, _ := s.Load(ctx)
		if rec.Attempts != writers {
			t.Fatalf("attempts = %d, want %d", rec.Attempts, writers)
		}
	})
}

func TestResetAndSetCode(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()

		if _, _, err := store.SetCode(ctx, s, "   "); !errors.Is(err, store.ErrEmptyCode) {
			t.Fatalf("blank SetCode err = %v", err)
		}
		rec, changed, err := store.SetCode(ctx, s, "  XY ")
		if err != nil || !changed || rec.Code != "XY" {
			t.Fatalf("SetCode = %+v, %v, %v", rec, changed, err)
		}
		store.RecordAttempt(ctx, s, "XY")

		rec, err = store.Reset(ctx, s)
		if err != nil {
			t.Fatal(err)
		}
		if rec.Code != "" || rec.Attempts != 0 {
			t.Fatalf("after reset: %+v", rec)
		}
	})
}

func TestExhausted(t *testing.T) {
	tests := []struct {
		attempts, max int
		want          bool
	}{
		{0, 5, false},
		{4, 5, false},
		{5, 5, true},
		{7, 5, true},
	}
	for _, tt := range tests {
		if got := (store.Record{Attempts: tt.attempts}).Exhausted(tt.max); got != tt.want {
			t.Errorf("Exhausted(%d/%d) = %v, want %v", tt.attempts, tt.max, got, tt.want)
		}
	}
}

func TestSubscribeAnnouncesWrites(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		sub, ok := s.(store.Subscriber)
		if !ok {
			t.Skip("store does not announce writes")
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch := sub.Subscribe(ctx)
		// Give the poller time to seed its version.
		time.Sleep(30 * time.Millisecond)

		if _, _, err := store.ObserveCode(context.Background(), s, "AB12CD"); err != nil {
			t.Fatal(err)
		}
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("no change notification")
		}

		cancel()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case _, open := <-ch:
				if !open {
					return
				}
			case <-deadline:
				t.Fatal("channel not closed after cancel")
			}
		}
	})
}
