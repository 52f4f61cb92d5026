// CLAUDE:SUMMARY Defines relay config structs, defaults, YAML loading and INVITERELAY_* env overrides.
// Package config handles relay configuration: built-in defaults, an
// optional YAML file, then INVITERELAY_* environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Attempt policies decide whether a submit iteration that did not reach
// the submit button still consumes one try.
const (
	PolicyAlways    = "always"
	PolicySubmitted = "submitted"
)

// Finder backoff strategies.
const (
	BackoffConstant    = "constant"
	BackoffExponential = "exponential"
)

// Config is the top-level relay configuration.
type Config struct {
	Debug    bool   `yaml:"debug" env:"INVITERELAY_DEBUG"`
	LogLevel string `yaml:"log_level" env:"INVITERELAY_LOG_LEVEL"`

	Loop    LoopConfig    `yaml:"loop"`
	Capture CaptureConfig `yaml:"capture"`
	Submit  SubmitConfig  `yaml:"submit"`
	Finder  FinderConfig  `yaml:"finder"`
	Click   ClickConfig   `yaml:"click"`
	Sites   SitesConfig   `yaml:"sites"`
	Browser BrowserConfig `yaml:"browser"`
	Store   StoreConfig   `yaml:"store"`
	Status  StatusConfig  `yaml:"status"`
	Sinks   []SinkConfig  `yaml:"sinks"`
}

// LoopConfig paces both loops.
type LoopConfig struct {
	// MaxAttempts caps loop iterations. 0 runs until cancelled.
	MaxAttempts     int           `yaml:"max_attempts" env:"INVITERELAY_MAX_ATTEMPTS"`
	MaxTriesPerCode int           `yaml:"max_tries_per_code" env:"INVITERELAY_MAX_TRIES_PER_CODE"`
	RetryInterval   time.Duration `yaml:"retry_interval" env:"INVITERELAY_RETRY_INTERVAL"`
	LoadDelay       time.Duration `yaml:"load_delay" env:"INVITERELAY_LOAD_DELAY"`
}

// CaptureConfig locates the code on the source page.
type CaptureConfig struct {
	Selector string `yaml:"selector" env:"INVITERELAY_COPY_SELECTOR"`
	MinLen   int    `yaml:"min_len" env:"INVITERELAY_COPY_MIN_LEN"`
}

// SubmitConfig locates the controls on the destination page.
type SubmitConfig struct {
	AttemptPolicy       string   `yaml:"attempt_policy" env:"INVITERELAY_ATTEMPT_POLICY"`
	EnterButtonPattern  string   `yaml:"enter_button_pattern"`
	InputPattern        string   `yaml:"input_pattern"`
	InputMarkerAttr     string   `yaml:"input_marker_attr"`
	SubmitButtonPattern string   `yaml:"submit_button_pattern"`
	SubmitButtonClasses []string `yaml:"submit_button_classes"`
}

// FinderConfig is the element polling budget.
type FinderConfig struct {
	Tries    int           `yaml:"tries" env:"INVITERELAY_INPUT_FIND_TRIES"`
	Interval time.Duration `yaml:"interval" env:"INVITERELAY_FIND_RETRY"`
	Backoff  string        `yaml:"backoff" env:"INVITERELAY_FIND_BACKOFF"`
	// Timeout bounds one lookup regardless of Tries. 0 = no bound.
	Timeout time.Duration `yaml:"timeout" env:"INVITERELAY_FIND_TIMEOUT"`
}

// ClickConfig shapes the simulated click.
type ClickConfig struct {
	DelayMin  time.Duration `yaml:"delay_min" env:"INVITERELAY_CLICK_DELAY_MIN"`
	DelayMax  time.Duration `yaml:"delay_max" env:"INVITERELAY_CLICK_DELAY_MAX"`
	PostDelay time.Duration `yaml:"post_delay" env:"INVITERELAY_POST_CLICK_DELAY"`
}

// SitesConfig names the two origins.
type SitesConfig struct {
	Capture SiteConfig `yaml:"capture" envPrefix:"INVITERELAY_CAPTURE_"`
	Submit  SiteConfig `yaml:"submit" envPrefix:"INVITERELAY_SUBMIT_"`
}

// SiteConfig is one origin: where to open it and which hosts belong to it.
type SiteConfig struct {
	URL          string   `yaml:"url"`
	Hosts        []string `yaml:"hosts"`
	StealthLevel string   `yaml:"stealth_level"` // 0 (HTTP, capture only) | 1 | 2
	// FetchInterval is how long a level 0 page reuses its last download.
	FetchInterval time.Duration `yaml:"fetch_interval" env:"FETCH_INTERVAL"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote" env:"INVITERELAY_BROWSER_REMOTE"`
	Bin              string        `yaml:"bin" env:"INVITERELAY_BROWSER_BIN"`
	UserDataDir      string        `yaml:"user_data_dir" env:"INVITERELAY_BROWSER_PROFILE"`
	Stealth          string        `yaml:"stealth" env:"INVITERELAY_BROWSER_STEALTH"` // headless | headful
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	XvfbDisplay      string        `yaml:"xvfb_display"`
}

// StoreConfig locates the shared state.
type StoreConfig struct {
	Path             string        `yaml:"path" env:"INVITERELAY_STORE"`
	Memory           bool          `yaml:"memory" env:"INVITERELAY_STORE_MEMORY"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	BusyTimeout      time.Duration `yaml:"busy_timeout" env:"INVITERELAY_STORE_BUSY_TIMEOUT"`
	JournalRetention time.Duration `yaml:"journal_retention"`
}

// StatusConfig enables the HTTP status API when Addr is set.
type StatusConfig struct {
	Addr string `yaml:"addr" env:"INVITERELAY_STATUS_ADDR"`
}

// SinkConfig defines an event output.
type SinkConfig struct {
	Type  string   `yaml:"type"` // stdout | webhook
	URL   string   `yaml:"url"`
	Kinds []string `yaml:"kinds"`
}

// Default returns the configuration the relay runs with when nothing is
// overridden.
func Default() *Config {
	return &Config{
		Debug:    true,
		LogLevel: "info",
		Loop: LoopConfig{
			MaxAttempts:     0,
			MaxTriesPerCode: 5,
			RetryInterval:   20 * time.Millisecond,
			LoadDelay:       1500 * time.Millisecond,
		},
		Capture: CaptureConfig{
			Selector: "button span.font-mono.text-2xl.font-bold.text-gray-900",
			MinLen:   6,
		},
		Submit: SubmitConfig{
			AttemptPolicy:       PolicyAlways,
			EnterButtonPattern:  `(?i)enter.*invite.*code`,
			InputPattern:        `(?i)code|invite|otp`,
			InputMarkerAttr:     "data-input-otp",
			SubmitButtonPattern: `(?i)join.*sora`,
			SubmitButtonClasses: []string{"bg-token-bg-inverse", "w-full"},
		},
		Finder: FinderConfig{
			Tries:    10,
			Interval: 20 * time.Millisecond,
			Backoff:  BackoffConstant,
		},
		Click: ClickConfig{
			DelayMin:  2 * time.Millisecond,
			DelayMax:  20 * time.Millisecond,
			PostDelay: 20 * time.Millisecond,
		},
		Sites: SitesConfig{
			Capture: SiteConfig{
				URL:           "https://formbiz.biz/",
				Hosts:         []string{"formbiz.biz"},
				StealthLevel:  "1",
				FetchInterval: time.Second,
			},
			Submit: SiteConfig{
				URL:           "https://sora.chatgpt.com/",
				Hosts:         []string{"sora.chatgpt.com"},
				StealthLevel:  "1",
				FetchInterval: time.Second,
			},
		},
		Browser: BrowserConfig{
			Stealth:          "headless",
			MemoryLimit:      1 << 30,
			RecycleInterval:  4 * time.Hour,
			ResourceBlocking: []string{"images", "fonts", "media"},
			XvfbDisplay:      ":99",
		},
		Store: StoreConfig{
			Path:             "data/inviterelay.db",
			PollInterval:     100 * time.Millisecond,
			BusyTimeout:      5 * time.Second,
			JournalRetention: 7 * 24 * time.Hour,
		},
	}
}

// LoadFile reads a YAML file over the defaults. It does not apply the
// environment; see Load.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Load builds the effective configuration: defaults, then the YAML file
// at path (skipped when path is empty), then the environment. The result
// is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays INVITERELAY_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	cfg.applyDefaults()
	return nil
}

// applyDefaults refills fields a YAML file may have blanked.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Sites.Capture.StealthLevel == "" {
		c.Sites.Capture.StealthLevel = d.Sites.Capture.StealthLevel
	}
	if c.Sites.Submit.StealthLevel == "" {
		c.Sites.Submit.StealthLevel = d.Sites.Submit.StealthLevel
	}
	if c.Sites.Capture.FetchInterval == 0 {
		c.Sites.Capture.FetchInterval = d.Sites.Capture.FetchInterval
	}
	if c.Sites.Submit.FetchInterval == 0 {
		c.Sites.Submit.FetchInterval = d.Sites.Submit.FetchInterval
	}
	if c.Submit.AttemptPolicy == "" {
		c.Submit.AttemptPolicy = PolicyAlways
	}
	if c.Finder.Backoff == "" {
		c.Finder.Backoff = BackoffConstant
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = d.Browser.Stealth
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = d.Browser.XvfbDisplay
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = d.Browser.MemoryLimit
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = d.Browser.RecycleInterval
	}
	if c.Store.PollInterval <= 0 {
		c.Store.PollInterval = d.Store.PollInterval
	}
	if c.Store.BusyTimeout <= 0 {
		c.Store.BusyTimeout = d.Store.BusyTimeout
	}
	if c.Store.JournalRetention <= 0 {
		c.Store.JournalRetention = d.Store.JournalRetention
	}
}
