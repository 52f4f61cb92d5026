package relay

import "github.com/hazyhaar/inviterelay/relay/internal/config"

// Config is the relay configuration.
type Config = config.Config

// Attempt policies.
const (
	PolicyAlways    = config.PolicyAlways
	PolicySubmitted = config.PolicySubmitted
)

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = config.ErrInvalid

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config { return config.Default() }

// LoadConfig reads defaults, then the YAML file at path (optional), then
// INVITERELAY_* variables, and validates the result.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }
