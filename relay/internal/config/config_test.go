package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Loop.MaxTriesPerCode != 5 {
		t.Errorf("max tries = %d, want 5", cfg.Loop.MaxTriesPerCode)
	}
	if cfg.Loop.RetryInterval != 20*time.Millisecond {
		t.Errorf("retry interval = %v", cfg.Loop.RetryInterval)
	}
	if cfg.Capture.MinLen != 6 {
		t.Errorf("min len = %d", cfg.Capture.MinLen)
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
loop:
  max_tries_per_code: 3
  retry_interval: 50ms
capture:
  min_len: 8
sites:
  submit:
    url: https://example.com/join
    hosts: [example.com]
sinks:
  - type: webhook
    url: http://localhost:9000/hook
    kinds: [exhausted]
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Loop.MaxTriesPerCode != 3 || cfg.Loop.RetryInterval != 50*time.Millisecond {
		t.Errorf("loop = %+v", cfg.Loop)
	}
	if cfg.Loop.LoadDelay != 1500*time.Millisecond {
		t.Errorf("load delay lost: %v", cfg.Loop.LoadDelay)
	}
	if cfg.Capture.MinLen != 8 {
		t.Errorf("min len = %d", cfg.Capture.MinLen)
	}
	if cfg.Sites.Submit.StealthLevel != "1" {
		t.Errorf("submit stealth level not refilled: %q", cfg.Sites.Submit.StealthLevel)
	}
	want := []SinkConfig{{Type: "webhook", URL: "http://localhost:9000/hook", Kinds: []string{"exhausted"}}}
	if diff := cmp.Diff(want, cfg.Sinks); diff != "" {
		t.Errorf("sinks (-want +got):\n%s", diff)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "loop:\n  max_tries_per_code: 3\n")
	t.Setenv("INVITERELAY_MAX_TRIES_PER_CODE", "7")
	t.Setenv("INVITERELAY_DEBUG", "false")
	t.Setenv("INVITERELAY_FIND_RETRY", "40ms")
	t.Setenv("INVITERELAY_ATTEMPT_POLICY", "submitted")
	t.Setenv("INVITERELAY_CAPTURE_FETCH_INTERVAL", "3s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Loop.MaxTriesPerCode != 7 {
		t.Errorf("max tries = %d, want 7", cfg.Loop.MaxTriesPerCode)
	}
	if cfg.Debug {
		t.Error("debug should be off")
	}
	if cfg.Finder.Interval != 40*time.Millisecond {
		t.Errorf("finder interval = %v", cfg.Finder.Interval)
	}
	if cfg.Submit.AttemptPolicy != PolicySubmitted {
		t.Errorf("policy = %q", cfg.Submit.AttemptPolicy)
	}
	if cfg.Sites.Capture.FetchInterval != 3*time.Second {
		t.Errorf("capture fetch interval = %v", cfg.Sites.Capture.FetchInterval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max tries", func(c *Config) { c.Loop.MaxTriesPerCode = 0 }},
		{"empty selector", func(c *Config) { c.Capture.Selector = " " }},
		{"zero min len", func(c *Config) { c.Capture.MinLen = 0 }},
		{"bad policy", func(c *Config) { c.Submit.AttemptPolicy = "sometimes" }},
		{"bad pattern", func(c *Config) { c.Submit.SubmitButtonPattern = "(" }},
		{"bad backoff", func(c *Config) { c.Finder.Backoff = "linear" }},
		{"zero tries", func(c *Config) { c.Finder.Tries = 0 }},
		{"inverted delays", func(c *Config) { c.Click.DelayMin = time.Second }},
		{"relative url", func(c *Config) { c.Sites.Capture.URL = "/x" }},
		{"no hosts", func(c *Config) { c.Sites.Submit.Hosts = nil }},
		{"http submit", func(c *Config) { c.Sites.Submit.StealthLevel = "0" }},
		{"http capture polled too fast", func(c *Config) {
			c.Sites.Capture.StealthLevel = "0"
			c.Sites.Capture.FetchInterval = 20 * time.Millisecond
		}},
		{"webhook no url", func(c *Config) { c.Sinks = []SinkConfig{{Type: "webhook"}} }},
		{"unknown sink", func(c *Config) { c.Sinks = []SinkConfig{{Type: "kafka"}} }},
		{"no store path", func(c *Config) { c.Store.Path = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestValidateAllowsHTTPCapture(t *testing.T) {
	cfg := Default()
	cfg.Sites.Capture.StealthLevel = "0"
	cfg.Store.Memory = true
	cfg.Store.Path = ""
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}
