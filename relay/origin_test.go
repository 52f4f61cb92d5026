package relay

import (
	"errors"
	"testing"

	"github.com/hazyhaar/inviterelay/relay/event"
	"github.com/hazyhaar/inviterelay/relay/internal/config"
)

func TestOriginsRole(t *testing.T) {
	o, err := NewOrigins(config.Default().Sites)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		url  string
		want event.Role
		err  error
	}{
		{"https://formbiz.biz/", event.RoleCapture, nil},
		{"https://www.formbiz.biz/x?y=1", event.RoleCapture, nil},
		{"https://sora.chatgpt.com/explore", event.RoleSubmit, nil},
		{"https://SORA.chatgpt.com:443/", event.RoleSubmit, nil},
		{"https://chatgpt.com/", "", ErrNoRole},
		{"https://notformbiz.biz/", "", ErrNoRole},
		{"https://formbiz.biz.evil.test/", "", ErrNoRole},
	}
	for _, tt := range tests {
		got, err := o.RoleForURL(tt.url)
		if !errors.Is(err, tt.err) || got != tt.want {
			t.Errorf("RoleForURL(%q) = %q, %v; want %q, %v", tt.url, got, err, tt.want, tt.err)
		}
	}
}

func TestOriginsRejectPublicSuffix(t *testing.T) {
	for _, bad := range []string{"com", "co.uk", "github.io", ""} {
		sites := config.Default().Sites
		sites.Submit.Hosts = []string{bad}
		if _, err := NewOrigins(sites); err == nil {
			t.Errorf("pattern %q accepted", bad)
		}
	}
}

func TestOriginsLocalHosts(t *testing.T) {
	sites := config.Default().Sites
	sites.Capture.Hosts = []string{"127.0.0.1"}
	sites.Submit.Hosts = []string{"localhost"}
	o, err := NewOrigins(sites)
	if err != nil {
		t.Fatal(err)
	}
	if r, _ := o.RoleForURL("http://127.0.0.1:8080/"); r != event.RoleCapture {
		t.Errorf("ip role = %q", r)
	}
	if r, _ := o.RoleForURL("http://localhost:9/"); r != event.RoleSubmit {
		t.Errorf("localhost role = %q", r)
	}
}
