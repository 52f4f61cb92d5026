package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/inviterelay/kit"
	"github.com/hazyhaar/inviterelay/observability"
	"github.com/hazyhaar/inviterelay/relay/event"
	"github.com/hazyhaar/inviterelay/relay/internal/sink"
	"github.com/hazyhaar/inviterelay/store"
)

// defaultEventLimit bounds Events when the caller passes no limit.
const defaultEventLimit = 50

// State is the outward view of the shared record. The first two JSON
// names are the storage keys both loops use.
type State struct {
	Code      string               `json:"invite_code"`
	Attempts  int                  `json:"attempt_count"`
	Version   int64                `json:"version"`
	UpdatedAt *time.Time           `json:"updated_at,omitempty"`
	MaxTries  int                  `json:"max_tries_per_code"`
	Exhausted bool                 `json:"exhausted"`
	Counters  map[event.Kind]int64 `json:"counters,omitempty"`
}

// Operator is the manual control surface shared by the status API, the
// MCP tools and the CLI.
type Operator struct {
	store    store.Store
	maxTries int
	events   observability.Reader
	counters *observability.Counters
	out      sink.Sink
	runID    string
	emit     *sink.Emitter
	logger   *slog.Logger
}

// OperatorOption configures an Operator.
type OperatorOption func(*Operator)

// WithEventReader sets where Events reads from.
func WithEventReader(r observability.Reader) OperatorOption {
	return func(o *Operator) { o.events = r }
}

// WithCounters attaches in-process counters to State.
func WithCounters(c *observability.Counters) OperatorOption {
	return func(o *Operator) { o.counters = c }
}

// WithOperatorSink sends manual_code and manual_reset events to s.
func WithOperatorSink(s sink.Sink, runID string) OperatorOption {
	return func(o *Operator) { o.out, o.runID = s, runID }
}

// WithOperatorLogger sets the logger.
func WithOperatorLogger(l *slog.Logger) OperatorOption {
	return func(o *Operator) { o.logger = l }
}

// NewOperator returns an Operator on st.
func NewOperator(st store.Store, maxTries int, opts ...OperatorOption) *Operator {
	o := &Operator{store: st, maxTries: maxTries, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.out != nil {
		o.emit = sink.NewEmitter(o.out, event.RoleOperator, o.runID, o.logger)
	}
	return o
}

// State loads the current record.
func (o *Operator) State(ctx context.Context) (State, error) {
	rec, err := o.store.Load(ctx)
	if err != nil {
		return State{}, err
	}
	return o.view(rec), nil
}

// Reset clears the code and the counter.
func (o *Operator) Reset(ctx context.Context) (State, error) {
	rec, err := store.Reset(ctx, o.store)
	if err != nil {
		return State{}, err
	}
	o.logger.Info("relay: state reset", "transport", kit.GetTransport(ctx))
	o.emit.Emit(ctx, event.Event{Kind: event.KindManualReset, Detail: kit.GetTransport(ctx)})
	return o.view(rec), nil
}

// SetCode injects a code by hand. A code equal to the stored one keeps its
// counter, like a capture rescrape.
func (o *Operator) SetCode(ctx context.Context, code string) (State, error) {
	rec, changed, err := store.SetCode(ctx, o.store, code)
	if err != nil {
		return State{}, err
	}
	if changed {
		o.logger.Info("relay: code set by operator", "code", rec.Code, "transport", kit.GetTransport(ctx))
		o.emit.Emit(ctx, event.Event{Kind: event.KindManualCode, Code: rec.Code, Detail: kit.GetTransport(ctx)})
	}
	return o.view(rec), nil
}

// Events returns recent events, newest first. Without a reader it
// returns an empty list.
func (o *Operator) Events(ctx context.Context, limit int) ([]event.Event, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if o.events == nil {
		return []event.Event{}, nil
	}
	evs, err := o.events.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if evs == nil {
		evs = []event.Event{}
	}
	return evs, nil
}

func (o *Operator) view(rec store.Record) State {
	s := State{
		Code:      rec.Code,
		Attempts:  rec.Attempts,
		Version:   rec.Version,
		MaxTries:  o.maxTries,
		Exhausted: rec.Code != "" && rec.Exhausted(o.maxTries),
	}
	if !rec.UpdatedAt.IsZero() {
		t := rec.UpdatedAt
		s.UpdatedAt = &t
	}
	if o.counters != nil {
		s.Counters = o.counters.Snapshot()
	}
	return s
}

// SetCodeRequest is the body of POST /code and the set_code tool input.
type SetCodeRequest struct {
	Code string `json:"code"`
}

// EventsRequest is the events tool input.
type EventsRequest struct {
	Limit int `json:"limit"`
}

// Endpoints are the operator operations as transport-neutral endpoints.
type Endpoints struct {
	State   kit.Endpoint
	Reset   kit.Endpoint
	SetCode kit.Endpoint
	Events  kit.Endpoint
}

// Endpoints wraps each operation with logging.
func (o *Operator) Endpoints() Endpoints {
	wrap := func(name string, e kit.Endpoint) kit.Endpoint {
		return kit.Chain(kit.Logging(o.logger, name))(e)
	}
	return Endpoints{
		State: wrap("state", func(ctx context.Context, _ any) (any, error) {
			return o.State(ctx)
		}),
		Reset: wrap("reset", func(ctx context.Context, _ any) (any, error) {
			return o.Reset(ctx)
		}),
		SetCode: wrap("set_code", func(ctx context.Context, req any) (any, error) {
			r, _ := req.(SetCodeRequest)
			return o.SetCode(ctx, r.Code)
		}),
		Events: wrap("events", func(ctx context.Context, req any) (any, error) {
			r, _ := req.(EventsRequest)
			return o.Events(ctx, r.Limit)
		}),
	}
}
