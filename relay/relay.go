// CLAUDE:SUMMARY Relay orchestrator: opens the capture and submit sites, picks each page's loop by origin, reopens tabs after browser recycling.
// Package relay carries an invite code from one site to another. A capture
// loop scrapes the code on the source site and a submit loop enters it on
// the destination site, with a per-code retry limit. The loops share
// nothing but the store, so they can run as two tabs of one process or in
// two processes on one machine.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/inviterelay/idgen"
	"github.com/hazyhaar/inviterelay/observability"
	"github.com/hazyhaar/inviterelay/relay/event"
	"github.com/hazyhaar/inviterelay/relay/internal/browser"
	"github.com/hazyhaar/inviterelay/relay/internal/capture"
	"github.com/hazyhaar/inviterelay/relay/internal/clicker"
	"github.com/hazyhaar/inviterelay/relay/internal/config"
	"github.com/hazyhaar/inviterelay/relay/internal/finder"
	"github.com/hazyhaar/inviterelay/relay/internal/page"
	"github.com/hazyhaar/inviterelay/relay/internal/sink"
	"github.com/hazyhaar/inviterelay/relay/internal/submit"
	"github.com/hazyhaar/inviterelay/store"
)

// EventLog is a sink that can also be read back, such as
// observability.Journal.
type EventLog interface {
	Sink
	observability.Reader
}

// Relay is the top-level orchestrator. Create one per process.
type Relay struct {
	cfg      *Config
	store    store.Store
	origins  *Origins
	mgr      *browser.Manager
	fetcher  *page.Fetcher
	log      EventLog
	counters *observability.Counters
	router   *sink.Router
	runID    string
	logger   *slog.Logger

	open openFunc

	mu  sync.Mutex
	gen chan struct{} // closed on browser recycle
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// WithRunID overrides the generated run ID.
func WithRunID(id string) Option {
	return func(r *Relay) { r.runID = id }
}

// WithEventLog records events durably. Without it an in-memory ring
// backs the events API.
func WithEventLog(l EventLog) Option {
	return func(r *Relay) { r.log = l }
}

// New builds a Relay. The browser is not started until Run.
func New(cfg *Config, st store.Store, extra []Sink, opts ...Option) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Relay{
		cfg:      cfg,
		store:    st,
		counters: observability.NewCounters(),
		logger:   slog.Default(),
		gen:      make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	if r.runID == "" {
		r.runID = idgen.Prefixed("run_", idgen.NanoID(10))()
	}
	r.logger = r.logger.With("run_id", r.runID)
	if r.log == nil {
		r.log = observability.NewRing(512)
	}

	origins, err := NewOrigins(cfg.Sites)
	if err != nil {
		return nil, err
	}
	r.origins = origins

	fromCfg, err := sinksFromConfig(cfg.Sinks, r.logger)
	if err != nil {
		return nil, err
	}
	sinks := append([]Sink{r.counters, r.log}, extra...)
	r.router = sink.NewRouter(r.logger, append(sinks, fromCfg...)...)

	mode := browser.LevelHeadless
	if cfg.Browser.Stealth == "headful" {
		mode = browser.LevelHeadful
	}
	for _, s := range []config.SiteConfig{cfg.Sites.Capture, cfg.Sites.Submit} {
		if lvl, _ := browser.ParseLevel(s.StealthLevel); lvl == browser.LevelHeadful {
			mode = browser.LevelHeadful
		}
	}
	r.mgr = browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Bin:              cfg.Browser.Bin,
		UserDataDir:      cfg.Browser.UserDataDir,
		Mode:             mode,
		MemoryLimit:      cfg.Browser.MemoryLimit,
		RecycleInterval:  cfg.Browser.RecycleInterval,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		Logger:           r.logger,
	})
	r.fetcher = page.NewFetcher(page.WithFetchLogger(r.logger))
	r.open = r.openTab
	return r, nil
}

// RunID identifies this process in logs and events.
func (r *Relay) RunID() string { return r.runID }

// Operator returns the manual control surface bound to this relay's store
// and event log.
func (r *Relay) Operator() *Operator {
	return NewOperator(r.store, r.cfg.Loop.MaxTriesPerCode,
		WithEventReader(r.log),
		WithCounters(r.counters),
		WithOperatorSink(r.router, r.runID),
		WithOperatorLogger(r.logger),
	)
}

// Run opens one page per role and runs its loop until ctx ends. No roles
// means both. It returns after every loop stopped.
func (r *Relay) Run(ctx context.Context, roles ...event.Role) error {
	if len(roles) == 0 {
		roles = []event.Role{event.RoleCapture, event.RoleSubmit}
	}
	defer r.router.Close()

	if r.needsBrowser(roles) {
		if _, err := r.mgr.Start(ctx); err != nil {
			return fmt.Errorf("relay: start browser: %w", err)
		}
		defer r.mgr.Close()
		r.mgr.OnRecycle(func(*rod.Browser) { r.bumpGeneration() })
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, role := range roles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.runSite(ctx, role); err != nil {
				r.logger.Error("relay: site stopped", "role", role, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Attach picks the loop for pg by its origin and runs it until ctx ends.
// A page on neither site gets no loop and ErrNoRole.
func (r *Relay) Attach(ctx context.Context, pg page.Page) error {
	role, err := r.origins.RoleForURL(pg.URL())
	if err != nil {
		r.logger.Warn("relay: no loop for page", "url", pg.URL())
		return err
	}
	return r.runLoop(ctx, role, pg)
}

func (r *Relay) runLoop(ctx context.Context, role event.Role, pg page.Page) error {
	logger := r.logger.With("role", role)
	emit := sink.NewEmitter(r.router, role, r.runID, logger)

	switch role {
	case event.RoleCapture:
		return capture.New(capture.ConfigFrom(r.cfg), r.store, pg,
			capture.WithEmitter(emit),
			capture.WithLogger(logger),
		).Run(ctx)
	case event.RoleSubmit:
		scfg, err := submit.ConfigFrom(r.cfg)
		if err != nil {
			return err
		}
		f := finder.New(finder.PolicyFrom(r.cfg.Finder), logger)
		c := clicker.New(r.cfg.Click, clicker.WithLogger(logger))
		return submit.New(scfg, r.store, pg, f, c,
			submit.WithEmitter(emit),
			submit.WithLogger(logger),
		).Run(ctx)
	}
	return fmt.Errorf("relay: unknown role %q", role)
}

func (r *Relay) site(role event.Role) config.SiteConfig {
	if role == event.RoleCapture {
		return r.cfg.Sites.Capture
	}
	return r.cfg.Sites.Submit
}

func (r *Relay) needsBrowser(roles []event.Role) bool {
	for _, role := range roles {
		if lvl, _ := browser.ParseLevel(r.site(role).StealthLevel); lvl != browser.LevelHTTP {
			return true
		}
	}
	return false
}

// openFunc opens url at level and returns the page with its close
// function. Tests replace it to run without Chrome.
type openFunc func(ctx context.Context, url string, level browser.Level) (page.Page, func(), error)

func (r *Relay) openTab(ctx context.Context, url string, level browser.Level) (page.Page, func(), error) {
	tab, err := browser.OpenTab(ctx, r.mgr, url, level)
	if err != nil {
		return nil, nil, err
	}
	if err := tab.Settle(ctx, r.cfg.Loop.LoadDelay); err != nil {
		tab.Close()
		return nil, nil, err
	}
	return page.NewRod(tab.Page), func() { tab.Close() }, nil
}

// runSite keeps one page open for role. After a browser recycle the tab
// is gone, so it reopens the site and restarts the loop. A tab that
// landed on another origin, such as a login redirect, is reopened after
// load_delay.
func (r *Relay) runSite(ctx context.Context, role event.Role) error {
	site := r.site(role)
	level, err := browser.ParseLevel(site.StealthLevel)
	if err != nil {
		return err
	}

	if level == browser.LevelHTTP {
		r.logger.Info("relay: site over plain HTTP", "role", role, "url", site.URL, "fetch_interval", site.FetchInterval)
		return r.Attach(ctx, r.fetcher.Remote(site.URL, site.FetchInterval))
	}

	for {
		gen := r.generation()
		pg, closeTab, err := r.open(ctx, site.URL, level)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("relay: open %s: %w", site.URL, err)
		}
		r.logger.Info("relay: page ready", "role", role, "url", pg.URL(), "level", level)

		loopCtx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-gen:
				cancel()
			case <-loopCtx.Done():
			}
		}()
		err = r.Attach(loopCtx, pg)
		cancel()
		closeTab()

		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-gen:
			r.logger.Info("relay: reopening after browser recycle", "role", role)
			continue
		default:
		}
		if !errors.Is(err, ErrNoRole) {
			return err
		}
		wait := max(r.cfg.Loop.LoadDelay, minReopenDelay)
		r.logger.Warn("relay: tab left the site, reopening", "role", role, "url", pg.URL(), "in", wait)
		if err := clicker.Sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

// minReopenDelay spaces reopen attempts when load_delay is 0.
const minReopenDelay = 100 * time.Millisecond

func (r *Relay) generation() chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

func (r *Relay) bumpGeneration() {
	r.mu.Lock()
	close(r.gen)
	r.gen = make(chan struct{})
	r.mu.Unlock()
}
