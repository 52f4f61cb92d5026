package page

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// maxBody caps a fetched document.
const maxBody = 10 << 20

// Static is a parsed HTML document. Its elements are readable but cannot
// be clicked or typed into.
type Static struct {
	url string
	doc *goquery.Document
}

// ParseStatic builds a Static page from raw HTML.
func ParseStatic(pageURL string, html []byte) (*Static, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("page: parse %s: %w", pageURL, err)
	}
	return &Static{url: pageURL, doc: doc}, nil
}

func (s *Static) URL() string { return s.url }

// QueryAll evaluates selector with cascadia.
func (s *Static) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Element
	s.doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		out = append(out, staticElement{sel: sel})
	})
	return out, nil
}

type staticElement struct {
	sel *goquery.Selection
}

func (e staticElement) Info(context.Context) (Info, error) {
	info := Info{
		Tag:   strings.ToLower(goquery.NodeName(e.sel)),
		Text:  e.sel.Text(),
		Attrs: make(map[string]string),
	}
	if n := e.sel.Get(0); n != nil {
		for _, a := range n.Attr {
			info.Attrs[a.Key] = a.Val
		}
	}
	info.Class = info.Attrs["class"]
	info.Placeholder = info.Attrs["placeholder"]
	return info, nil
}

func (staticElement) Box(context.Context) (Box, error) { return Box{}, ErrReadOnly }

func (staticElement) Dispatch(context.Context, string, float64, float64) error {
	return ErrReadOnly
}

func (staticElement) Focus(context.Context) error           { return ErrReadOnly }
func (staticElement) Blur(context.Context) error            { return ErrReadOnly }
func (staticElement) SetValue(context.Context, string) error { return ErrReadOnly }

// Fetcher loads Static pages over HTTP.
type Fetcher struct {
	client *resty.Client
	logger *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) { f.client.SetHeader("User-Agent", ua) }
}

// WithTimeout sets the per-request timeout. Default: 30s.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.client.SetTimeout(d) }
}

// WithFetchLogger sets the logger.
func WithFetchLogger(l *slog.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher returns a Fetcher with browser-like headers.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	c := resty.New().
		SetTimeout(30*time.Second).
		SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36").
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-US,en;q=0.5")
	f := &Fetcher{client: c, logger: slog.Default()}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch GETs pageURL and parses it. Non-2xx responses are errors.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Static, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(pageURL)
	if err != nil {
		return nil, fmt.Errorf("page: fetch %s: %w", pageURL, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		return nil, fmt.Errorf("page: fetch %s: status %d", pageURL, resp.StatusCode())
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(io.LimitReader(body, maxBody)); err != nil {
		return nil, fmt.Errorf("page: read %s: %w", pageURL, err)
	}
	f.logger.Debug("page: fetched", "url", pageURL, "status", resp.StatusCode(), "size", buf.Len())
	return ParseStatic(pageURL, buf.Bytes())
}

// Remote is a Page bound to a URL. It downloads the document again once
// the last copy is older than its refresh interval, so a fast capture
// loop does not turn into a request per iteration.
type Remote struct {
	f       *Fetcher
	url     string
	refresh time.Duration
	now     func() time.Time

	mu      sync.Mutex
	doc     *Static
	fetched time.Time
}

// Remote returns a Page bound to pageURL that reuses a download for
// refresh. refresh <= 0 fetches on every query.
func (f *Fetcher) Remote(pageURL string, refresh time.Duration) *Remote {
	return &Remote{f: f, url: pageURL, refresh: refresh, now: time.Now}
}

func (r *Remote) URL() string { return r.url }

func (r *Remote) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	p, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	return p.QueryAll(ctx, selector)
}

func (r *Remote) current(ctx context.Context) (*Static, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc != nil && r.refresh > 0 && r.now().Sub(r.fetched) < r.refresh {
		return r.doc, nil
	}
	p, err := r.f.Fetch(ctx, r.url)
	if err != nil {
		return nil, err
	}
	r.doc, r.fetched = p, r.now()
	return p, nil
}
