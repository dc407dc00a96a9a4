package identity

import (
	"errors"
	"os"
	"time"
)

// Config holds token verification settings.
type Config struct {
	// Secret is the HS256 signing key shared with the token issuer.
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	Leeway   time.Duration `yaml:"leeway"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// DefaultConfig returns the default auth configuration.
func DefaultConfig() Config {
	return Config{
		Leeway:   30 * time.Second,
		TokenTTL: 24 * time.Hour,
	}
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Leeway == 0 {
		c.Leeway = defaults.Leeway
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = defaults.TokenTTL
	}
}

// ApplyEnvOverrides reads JWT_SECRET.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Secret = v
	}
}

// ResolvePaths is a no-op; the auth section has no paths.
func (c *Config) ResolvePaths(_ string) {}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("auth.secret is required (or set JWT_SECRET)")
	}
	if c.Leeway < 0 {
		return errors.New("auth.leeway must not be negative")
	}
	if c.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	return nil
}
