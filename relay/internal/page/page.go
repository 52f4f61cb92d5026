// Package page is the narrow DOM surface the loops need: query elements,
// read their text and attributes, and drive them with synthetic events.
// The rod implementation talks to a live tab; Static serves a fetched HTML
// document read-only.
package page

import (
	"context"
	"errors"
	"strings"
)

// ErrReadOnly is returned by mutating Element methods on static pages.
var ErrReadOnly = errors.New("page: read-only page")

// ErrDetached is returned when an element left the document between the
// query and the call.
var ErrDetached = errors.New("page: element detached")

// Page is one document.
type Page interface {
	URL() string
	// QueryAll returns the elements matching a CSS selector in document
	// order. No match is an empty slice, not an error.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
}

// Element is one DOM element.
type Element interface {
	Info(ctx context.Context) (Info, error)
	Box(ctx context.Context) (Box, error)
	// Dispatch fires a bubbling pointer or mouse event of the given type
	// at viewport coordinates (x, y).
	Dispatch(ctx context.Context, eventType string, x, y float64) error
	Focus(ctx context.Context) error
	Blur(ctx context.Context) error
	// SetValue assigns an input value so that framework-controlled inputs
	// notice it, then fires an "input" event.
	SetValue(ctx context.Context, value string) error
}

// Info is a snapshot of what the predicates look at.
type Info struct {
	Tag         string            `json:"tag"`
	Text        string            `json:"text"`
	Class       string            `json:"class"`
	Placeholder string            `json:"placeholder"`
	Attrs       map[string]string `json:"attrs"`
}

// Attr returns an attribute value, "" when absent.
func (i Info) Attr(name string) string { return i.Attrs[name] }

// HasClass reports whether the class attribute contains sub.
func (i Info) HasClass(sub string) bool { return strings.Contains(i.Class, sub) }

// Box is a bounding client rect in CSS pixels.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Text returns the concatenation of the trimmed text of every element
// matching selector.
func Text(ctx context.Context, p Page, selector string) (string, error) {
	els, err := p.QueryAll(ctx, selector)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, el := range els {
		info, err := el.Info(ctx)
		if err != nil {
			if errors.Is(err, ErrDetached) {
				continue
			}
			return "", err
		}
		b.WriteString(strings.TrimSpace(info.Text))
	}
	return b.String(), nil
}
