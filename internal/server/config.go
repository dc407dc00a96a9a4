package server

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/saferoute/hazardwatch/internal/server/ratelimit"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds the graceful drain on Stop.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	CORS CORSConfig `yaml:"cors"`

	// RateLimit throttles stream connection attempts per client.
	RateLimit ratelimit.Config `yaml:"rate_limit"`
}

// CORSConfig controls cross-origin access to the REST and stream routes.
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	MaxAge           int      `yaml:"max_age"`
}

// DefaultConfig returns safe defaults for development.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		HTTPPort:        3000,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		CORS: CORSConfig{
			Enabled:        true,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Last-Event-ID"},
			MaxAge:         600,
		},
		RateLimit: ratelimit.DefaultConfig(),
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = defaults.HTTPPort
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaults.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = defaults.IdleTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = defaults.CORS.AllowedMethods
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = defaults.CORS.AllowedHeaders
	}
	if c.CORS.MaxAge == 0 {
		c.CORS.MaxAge = defaults.CORS.MaxAge
	}
	c.RateLimit.ApplyDefaults()
}

// ApplyEnvOverrides reads HAZARDWATCH_HTTP_PORT.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("HAZARDWATCH_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTPPort = port
		}
	}
}

// ResolvePaths is a no-op; the server config holds no paths.
func (c *Config) ResolvePaths(_ string) {}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("server: http_port out of range: %d", c.HTTPPort)
	}
	if c.CORS.AllowCredentials {
		for _, o := range c.CORS.AllowedOrigins {
			if o == "*" {
				return errors.New("server: cors allow_credentials cannot be combined with wildcard origin")
			}
		}
	}
	return c.RateLimit.Validate()
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}
