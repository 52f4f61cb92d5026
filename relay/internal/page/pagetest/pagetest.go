// Package pagetest provides an in-memory page.Page for loop tests.
package pagetest

import (
	"context"
	"strings"
	"sync"

	"github.com/hazyhaar/inviterelay/relay/internal/page"
)

// Page is a fake document. Elements are matched by the exact selector
// string they were added under.
type Page struct {
	mu      sync.Mutex
	url     string
	elems   []*Element
	queries map[string]int
}

// New returns an empty page at url.
func New(url string) *Page {
	return &Page{url: url, queries: make(map[string]int)}
}

func (p *Page) URL() string { return p.url }

// Add appends a visible element.
func (p *Page) Add(selector string, info page.Info) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	if info.Attrs == nil {
		info.Attrs = map[string]string{}
	}
	e := &Element{
		p:        p,
		selector: selector,
		info:     info,
		box:      page.Box{X: 10, Y: 20, Width: 120, Height: 40},
	}
	p.elems = append(p.elems, e)
	return e
}

// AddHidden appends an element that QueryAll skips until Show.
func (p *Page) AddHidden(selector string, info page.Info) *Element {
	e := p.Add(selector, info)
	p.mu.Lock()
	e.hidden = true
	p.mu.Unlock()
	return e
}

// Queries reports how often selector was queried.
func (p *Page) Queries(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries[selector]
}

func (p *Page) QueryAll(ctx context.Context, selector string) ([]page.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries[selector]++
	var out []page.Element
	for _, e := range p.elems {
		if e.selector == selector && !e.hidden && !e.detached {
			out = append(out, e)
		}
	}
	return out, nil
}

// Point is one dispatched event.
type Point struct {
	Type string
	X, Y float64
}

// Element is a fake element that records what was done to it.
type Element struct {
	p        *Page
	selector string
	info     page.Info
	box      page.Box
	hidden   bool
	detached bool
	value    string
	focused  bool
	events   []Point
	log      []string

	// OnClick runs after a "click" event is dispatched.
	OnClick func()
}

// Show makes a hidden element visible to QueryAll.
func (e *Element) Show() {
	e.p.mu.Lock()
	e.hidden = false
	e.p.mu.Unlock()
}

// Detach removes the element; later calls fail with page.ErrDetached.
func (e *Element) Detach() {
	e.p.mu.Lock()
	e.detached = true
	e.p.mu.Unlock()
}

// SetText replaces the element text.
func (e *Element) SetText(s string) {
	e.p.mu.Lock()
	e.info.Text = s
	e.p.mu.Unlock()
}

// SetBox replaces the bounding box.
func (e *Element) SetBox(b page.Box) {
	e.p.mu.Lock()
	e.box = b
	e.p.mu.Unlock()
}

// Value returns the last value set.
func (e *Element) Value() string {
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	return e.value
}

// Events returns the dispatched events in order.
func (e *Element) Events() []Point {
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	return append([]Point(nil), e.events...)
}

// Log returns every call in order: event types, "focus", "blur", "value=...".
func (e *Element) Log() []string {
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	return append([]string(nil), e.log...)
}

// Clicks counts dispatched click events.
func (e *Element) Clicks() int {
	n := 0
	for _, ev := range e.Events() {
		if ev.Type == "click" {
			n++
		}
	}
	return n
}

func (e *Element) Info(ctx context.Context) (page.Info, error) {
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	if e.detached {
		return page.Info{}, page.ErrDetached
	}
	return e.info, nil
}

func (e *Element) Box(ctx context.Context) (page.Box, error) {
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	if e.detached {
		return page.Box{}, page.ErrDetached
	}
	return e.box, nil
}

func (e *Element) Dispatch(ctx context.Context, eventType string, x, y float64) error {
	e.p.mu.Lock()
	if e.detached {
		e.p.mu.Unlock()
		return page.ErrDetached
	}
	e.events = append(e.events, Point{Type: eventType, X: x, Y: y})
	e.log = append(e.log, eventType)
	fn := e.OnClick
	e.p.mu.Unlock()
	if eventType == "click" && fn != nil {
		fn()
	}
	return nil
}

func (e *Element) Focus(ctx context.Context) error {
	return e.record("focus", func() { e.focused = true })
}

func (e *Element) Blur(ctx context.Context) error {
	return e.record("blur", func() { e.focused = false })
}

func (e *Element) SetValue(ctx context.Context, value string) error {
	return e.record("value="+value, func() { e.value = value })
}

// Focused reports whether the element currently has focus.
func (e *Element) Focused() bool {
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	return e.focused
}

func (e *Element) record(entry string, apply func()) error {
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	if e.detached {
		return page.ErrDetached
	}
	apply()
	e.log = append(e.log, entry)
	return nil
}

// Button is shorthand for a button Info.
func Button(text string, classes ...string) page.Info {
	return page.Info{Tag: "button", Text: text, Class: strings.Join(classes, " ")}
}

// Input is shorthand for an input Info with the given attributes.
func Input(placeholder string, attrs map[string]string) page.Info {
	if attrs == nil {
		attrs = map[string]string{}
	}
	if placeholder != "" {
		attrs["placeholder"] = placeholder
	}
	return page.Info{Tag: "input", Placeholder: placeholder, Attrs: attrs}
}
