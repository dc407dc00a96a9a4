// Package ratelimit throttles connection attempts per client.
package ratelimit

import (
	"fmt"
	"time"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	// Allow reports whether a request from key is within budget and consumes
	// one token when it is.
	Allow(key string) bool

	// Reset forgets all state held for key.
	Reset(key string)
}

// Stoppable is a Limiter that owns a background goroutine.
type Stoppable interface {
	Limiter
	Stop()
}

// Config holds the per-client budget.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Requests is the number of attempts allowed per Window.
	Requests int `yaml:"requests"`

	// Window is the interval over which Requests tokens are refilled.
	Window time.Duration `yaml:"window"`

	// Burst caps how many attempts may arrive back to back. Zero means Requests.
	Burst int `yaml:"burst"`

	// TrustProxy makes GetClientIP honour X-Forwarded-For and X-Real-IP.
	TrustProxy bool `yaml:"trust_proxy"`
}

// DefaultConfig allows a client 30 stream connects per minute.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Requests: 30,
		Window:   time.Minute,
	}
}

// ApplyDefaults fills zero values from DefaultConfig.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Requests == 0 {
		c.Requests = d.Requests
	}
	if c.Window == 0 {
		c.Window = d.Window
	}
}

// Validate rejects budgets that can never admit a request.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Requests <= 0 {
		return fmt.Errorf("ratelimit: requests must be positive, got %d", c.Requests)
	}
	if c.Window <= 0 {
		return fmt.Errorf("ratelimit: window must be positive, got %s", c.Window)
	}
	if c.Burst < 0 {
		return fmt.Errorf("ratelimit: burst must not be negative, got %d", c.Burst)
	}
	return nil
}

func (c Config) burst() int {
	if c.Burst > 0 {
		return c.Burst
	}
	return c.Requests
}
