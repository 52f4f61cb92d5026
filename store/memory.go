package store

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Store. It backs single-process runs started
// with --memory and the loop tests.
type Memory struct {
	mu   sync.Mutex
	rec  Record
	subs map[chan struct{}]struct{}
	now  func() time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{subs: make(map[chan struct{}]struct{}), now: time.Now}
}

// Load returns the current record.
func (m *Memory) Load(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec, nil
}

// CompareAndSwap writes {code, attempts} if the version still is expect.
func (m *Memory) CompareAndSwap(ctx context.Context, expect int64, code string, attempts int) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	if m.rec.Version != expect {
		m.mu.Unlock()
		return Record{}, ErrConflict
	}
	m.rec = Record{
		Code:      code,
		Attempts:  attempts,
		Version:   expect + 1,
		UpdatedAt: m.now().UTC(),
	}
	rec := m.rec
	for ch := range m.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	m.mu.Unlock()
	return rec, nil
}

// Subscribe implements Subscriber.
func (m *Memory) Subscribe(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, ch)
		m.mu.Unlock()
		close(ch)
	}()
	return ch
}
