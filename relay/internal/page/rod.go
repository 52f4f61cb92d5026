package page

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
)

// Rod adapts a live rod page.
type Rod struct {
	p *rod.Page
}

// NewRod wraps p.
func NewRod(p *rod.Page) *Rod { return &Rod{p: p} }

// URL returns the tab's current location.
func (r *Rod) URL() string {
	info, err := r.p.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// QueryAll runs querySelectorAll once. It does not wait for matches.
func (r *Rod) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := r.p.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("page: query %q: %w", selector, err)
	}
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el}
	}
	return out, nil
}

type rodElement struct {
	el *rod.Element
}

const infoJS = `() => {
	const attrs = {};
	for (const a of this.attributes) attrs[a.name] = a.value;
	return {
		tag: this.tagName.toLowerCase(),
		text: this.textContent || "",
		class: this.getAttribute("class") || "",
		placeholder: this.getAttribute("placeholder") || "",
		attrs: attrs,
	};
}`

func (e *rodElement) Info(ctx context.Context) (Info, error) {
	res, err := e.el.Context(ctx).Eval(infoJS)
	if err != nil {
		return Info{}, wrapRod("info", err)
	}
	var info Info
	if err := res.Value.Unmarshal(&info); err != nil {
		return Info{}, fmt.Errorf("page: decode info: %w", err)
	}
	return info, nil
}

func (e *rodElement) Box(ctx context.Context) (Box, error) {
	res, err := e.el.Context(ctx).Eval(`() => {
		const r = this.getBoundingClientRect();
		return {x: r.left, y: r.top, width: r.width, height: r.height};
	}`)
	if err != nil {
		return Box{}, wrapRod("box", err)
	}
	var b Box
	if err := res.Value.Unmarshal(&b); err != nil {
		return Box{}, fmt.Errorf("page: decode box: %w", err)
	}
	return b, nil
}

const dispatchJS = `(type, x, y) => {
	const down = type === "pointerdown" || type === "mousedown";
	const init = {
		bubbles: true, cancelable: true, composed: true, view: window,
		clientX: x, clientY: y, button: 0, buttons: down ? 1 : 0,
	};
	const ev = type.startsWith("pointer")
		? new PointerEvent(type, {...init, pointerId: 1, pointerType: "mouse", isPrimary: true})
		: new MouseEvent(type, init);
	this.dispatchEvent(ev);
}`

func (e *rodElement) Dispatch(ctx context.Context, eventType string, x, y float64) error {
	_, err := e.el.Context(ctx).Eval(dispatchJS, eventType, x, y)
	return wrapRod("dispatch "+eventType, err)
}

func (e *rodElement) Focus(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(`() => this.focus()`)
	return wrapRod("focus", err)
}

func (e *rodElement) Blur(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(`() => this.blur()`)
	return wrapRod("blur", err)
}

// setValueJS resets React's value tracker to the previous value so the
// synthetic input event is seen as a change.
const setValueJS = `(v) => {
	const last = this.value;
	this.value = v;
	const tracker = this._valueTracker;
	if (tracker) tracker.setValue(last);
	this.dispatchEvent(new Event("input", {bubbles: true}));
}`

func (e *rodElement) SetValue(ctx context.Context, value string) error {
	_, err := e.el.Context(ctx).Eval(setValueJS, value)
	return wrapRod("set value", err)
}

func wrapRod(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var objErr *rod.ObjectNotFoundError
	var cdpErr *cdp.Error
	if errors.As(err, &objErr) || (errors.As(err, &cdpErr) && cdpErr.Code == -32000) {
		return fmt.Errorf("page: %s: %w", op, ErrDetached)
	}
	return fmt.Errorf("page: %s: %w", op, err)
}
