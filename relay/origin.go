package relay

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/hazyhaar/inviterelay/relay/event"
	"github.com/hazyhaar/inviterelay/relay/internal/config"
)

// ErrNoRole is returned for a page that belongs to neither site.
var ErrNoRole = errors.New("relay: page matches no site")

// Origins maps page hosts to loop roles.
type Origins struct {
	capture []string
	submit  []string
}

// NewOrigins validates the host patterns of both sites. A pattern must be
// a registrable domain or a subdomain of one, an IP address, or
// "localhost"; bare public suffixes such as "com" or "co.uk" are rejected.
func NewOrigins(sites config.SitesConfig) (*Origins, error) {
	capture, err := normalizeHosts(sites.Capture.Hosts)
	if err != nil {
		return nil, fmt.Errorf("relay: capture hosts: %w", err)
	}
	submit, err := normalizeHosts(sites.Submit.Hosts)
	if err != nil {
		return nil, fmt.Errorf("relay: submit hosts: %w", err)
	}
	return &Origins{capture: capture, submit: submit}, nil
}

func normalizeHosts(patterns []string) ([]string, error) {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		h := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(p)), ".")
		switch {
		case h == "":
			return nil, errors.New("empty host pattern")
		case h == "localhost", net.ParseIP(h) != nil:
		default:
			if _, err := publicsuffix.EffectiveTLDPlusOne(h); err != nil {
				return nil, fmt.Errorf("host pattern %q is a public suffix", p)
			}
		}
		out = append(out, h)
	}
	return out, nil
}

// Role returns the loop for host. Capture patterns are checked first.
func (o *Origins) Role(host string) (event.Role, error) {
	h := strings.TrimSuffix(strings.ToLower(host), ".")
	if hh, _, err := net.SplitHostPort(h); err == nil {
		h = hh
	}
	if matchAny(h, o.capture) {
		return event.RoleCapture, nil
	}
	if matchAny(h, o.submit) {
		return event.RoleSubmit, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoRole, host)
}

// RoleForURL is Role on the host of rawURL.
func (o *Origins) RoleForURL(rawURL string) (event.Role, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("relay: parse %q: %w", rawURL, err)
	}
	return o.Role(u.Hostname())
}

// matchAny reports whether host equals a pattern or is a subdomain of it.
func matchAny(host string, patterns []string) bool {
	for _, p := range patterns {
		if host == p || strings.HasSuffix(host, "."+p) {
			return true
		}
	}
	return false
}
