// Package store holds the state shared by the capture and submit loops: the
// current invite code and how many submissions were made for it.
//
// Both values live in one versioned record. Every write is a
// compare-and-swap on the version, so a code change and an attempt
// increment can never interleave into a torn {code, attempts} pair even
// when the loops run in different processes.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrConflict is returned by CompareAndSwap when the stored version no
	// longer matches the expected one.
	ErrConflict = errors.New("store: version conflict")

	// ErrCodeChanged is returned by RecordAttempt when the code it was
	// asked to count no longer is the stored code.
	ErrCodeChanged = errors.New("store: code changed")

	// ErrEmptyCode is returned by SetCode for blank input.
	ErrEmptyCode = errors.New("store: empty code")
)

// maxCASRetries bounds the read-modify-write loops below.
const maxCASRetries = 16

// Record is the shared relay state. The JSON names are the storage keys
// the loops have always used.
type Record struct {
	Code      string    `json:"invite_code"`
	Attempts  int       `json:"attempt_count"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Exhausted reports whether the current code has used its retry budget.
func (r Record) Exhausted(maxTries int) bool {
	return r.Attempts >= maxTries
}

// Store is the persistence contract. Load returns the zero Record (empty
// code, 0 attempts, version 0) before the first write.
type Store interface {
	Load(ctx context.Context) (Record, error)
	CompareAndSwap(ctx context.Context, expect int64, code string, attempts int) (Record, error)
}

// Subscriber is implemented by stores that can announce writes. The
// returned channel receives a value (coalesced) after each observed write
// and is closed when ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context) <-chan struct{}
}

// ObserveCode stores code and resets the attempt counter to 0 when code
// differs from the stored one. An unchanged code leaves the record alone,
// so re-scraping never resets the counter.
func ObserveCode(ctx context.Context, s Store, code string) (Record, bool, error) {
	return update(ctx, s, func(cur Record) (string, int, bool, error) {
		if cur.Code == code {
			return "", 0, false, nil
		}
		return code, 0, true, nil
	})
}

// RecordAttempt adds exactly one attempt for code. If the capture side has
// replaced the code in the meantime nothing is written and ErrCodeChanged
// is returned: the new code keeps its full budget.
func RecordAttempt(ctx context.Context, s Store, code string) (Record, error) {
	rec, _, err := update(ctx, s, func(cur Record) (string, int, bool, error) {
		if cur.Code != code {
			return "", 0, false, ErrCodeChanged
		}
		return cur.Code, cur.Attempts + 1, true, nil
	})
	return rec, err
}

// SetCode is the operator path to inject a code by hand. Unlike the capture
// loop it applies no minimum length, only a non-blank check.
func SetCode(ctx context.Context, s Store, code string) (Record, bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Record{}, false, ErrEmptyCode
	}
	return ObserveCode(ctx, s, code)
}

// Reset clears the code and the counter.
func Reset(ctx context.Context, s Store) (Record, error) {
	rec, _, err := update(ctx, s, func(cur Record) (string, int, bool, error) {
		if cur.Code == "" && cur.Attempts == 0 {
			return "", 0, false, nil
		}
		return "", 0, true, nil
	})
	return rec, err
}

// update runs one optimistic read-modify-write. mutate returns the next
// values and whether a write is needed.
func update(ctx context.Context, s Store, mutate func(Record) (string, int, bool, error)) (Record, bool, error) {
	for range maxCASRetries {
		cur, err := s.Load(ctx)
		if err != nil {
			return Record{}, false, err
		}
		code, attempts, write, err := mutate(cur)
		if err != nil {
			return cur, false, err
		}
		if !write {
			return cur, false, nil
		}
		next, err := s.CompareAndSwap(ctx, cur.Version, code, attempts)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return Record{}, false, err
		}
		return next, true, nil
	}
	return Record{}, false, ErrConflict
}
