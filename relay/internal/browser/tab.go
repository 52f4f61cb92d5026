package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
)

// navTimeout bounds Navigate plus WaitLoad.
const navTimeout = 30 * time.Second

// Tab is one stealth-patched page opened on a site.
type Tab struct {
	Page   *rod.Page
	URL    string
	Level  Level
	router *rod.HijackRouter
}

// OpenTab opens siteURL in a new stealth tab and waits for the load event.
// A load timeout is logged, not returned: the loops poll for their
// elements anyway.
func OpenTab(ctx context.Context, mgr *Manager, siteURL string, level Level) (*Tab, error) {
	if level == LevelHTTP {
		return nil, fmt.Errorf("browser: level %s needs no tab", level)
	}
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	t := &Tab{Page: page, URL: siteURL, Level: level}
	if blocked := mgr.cfg.ResourceBlocking; len(blocked) > 0 {
		t.router = blockResources(page, blocked)
	}

	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(siteURL); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", siteURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load", "url", siteURL, "error", err)
	}
	return t, nil
}

// Settle waits d after load so client-side rendering can finish. It
// returns early with ctx's error.
func (t *Tab) Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Close stops interception and closes the page.
func (t *Tab) Close() error {
	if t.router != nil {
		_ = t.router.Stop()
		t.router = nil
	}
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
