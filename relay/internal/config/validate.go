package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Loop.MaxAttempts < 0 {
		errs = append(errs, invalid("loop.max_attempts must be >= 0"))
	}
	if c.Loop.MaxTriesPerCode < 1 {
		errs = append(errs, invalid("loop.max_tries_per_code must be >= 1"))
	}
	if c.Loop.RetryInterval < 0 || c.Loop.LoadDelay < 0 {
		errs = append(errs, invalid("loop intervals must not be negative"))
	}

	if strings.TrimSpace(c.Capture.Selector) == "" {
		errs = append(errs, invalid("capture.selector is empty"))
	}
	if c.Capture.MinLen < 1 {
		errs = append(errs, invalid("capture.min_len must be >= 1"))
	}

	switch c.Submit.AttemptPolicy {
	case PolicyAlways, PolicySubmitted:
	default:
		errs = append(errs, invalid("submit.attempt_policy %q (want %s or %s)",
			c.Submit.AttemptPolicy, PolicyAlways, PolicySubmitted))
	}
	for name, p := range map[string]string{
		"enter_button_pattern":  c.Submit.EnterButtonPattern,
		"input_pattern":         c.Submit.InputPattern,
		"submit_button_pattern": c.Submit.SubmitButtonPattern,
	} {
		if p == "" {
			errs = append(errs, invalid("submit.%s is empty", name))
			continue
		}
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, invalid("submit.%s: %v", name, err))
		}
	}

	if c.Finder.Tries < 1 {
		errs = append(errs, invalid("finder.tries must be >= 1"))
	}
	if c.Finder.Interval < 0 || c.Finder.Timeout < 0 {
		errs = append(errs, invalid("finder durations must not be negative"))
	}
	switch c.Finder.Backoff {
	case BackoffConstant, BackoffExponential:
	default:
		errs = append(errs, invalid("finder.backoff %q", c.Finder.Backoff))
	}

	if c.Click.DelayMin < 0 || c.Click.DelayMax < c.Click.DelayMin {
		errs = append(errs, invalid("click delays: need 0 <= delay_min <= delay_max"))
	}
	if c.Click.PostDelay < 0 {
		errs = append(errs, invalid("click.post_delay must not be negative"))
	}

	errs = append(errs, validateSite("sites.capture", c.Sites.Capture, true)...)
	errs = append(errs, validateSite("sites.submit", c.Sites.Submit, false)...)

	switch c.Browser.Stealth {
	case "headless", "headful":
	default:
		errs = append(errs, invalid("browser.stealth %q", c.Browser.Stealth))
	}

	if !c.Store.Memory && c.Store.Path == "" {
		errs = append(errs, invalid("store.path is empty"))
	}

	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				errs = append(errs, invalid("sinks[%d]: webhook needs url", i))
			}
		default:
			errs = append(errs, invalid("sinks[%d]: unknown type %q", i, s.Type))
		}
	}

	return errors.Join(errs...)
}

// MinFetchInterval bounds how often a level 0 page downloads its URL.
const MinFetchInterval = 250 * time.Millisecond

func validateSite(name string, s SiteConfig, allowHTTP bool) []error {
	var errs []error
	u, err := url.Parse(s.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, invalid("%s.url %q is not an absolute http(s) URL", name, s.URL))
	}
	if len(s.Hosts) == 0 {
		errs = append(errs, invalid("%s.hosts is empty", name))
	}
	switch s.StealthLevel {
	case "1", "2":
	case "0":
		if !allowHTTP {
			errs = append(errs, invalid("%s.stealth_level 0 cannot click or type", name))
		}
		if s.FetchInterval < MinFetchInterval {
			errs = append(errs, invalid("%s.fetch_interval %s is below %s", name, s.FetchInterval, MinFetchInterval))
		}
	default:
		errs = append(errs, invalid("%s.stealth_level %q", name, s.StealthLevel))
	}
	return errs
}
