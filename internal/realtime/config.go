package realtime

import (
	"errors"
	"time"
)

// Config controls the streaming endpoints.
type Config struct {
	// DefaultRadiusMeters applies when a client omits radius.
	DefaultRadiusMeters int `yaml:"default_radius_meters"`

	QueueSize         int           `yaml:"queue_size"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`

	// MaxSessions caps concurrently open sessions; 0 means unlimited.
	MaxSessions int `yaml:"max_sessions"`

	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowDevOrigin bool     `yaml:"allow_dev_origin"`
}

// DefaultConfig returns the default stream configuration.
func DefaultConfig() Config {
	return Config{
		DefaultRadiusMeters: 5000,
		QueueSize:           64,
		HeartbeatInterval:   15 * time.Second,
		WriteTimeout:        10 * time.Second,
	}
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.DefaultRadiusMeters == 0 {
		c.DefaultRadiusMeters = defaults.DefaultRadiusMeters
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaults.QueueSize
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
}

// ApplyEnvOverrides is a no-op; the stream section has no env overrides.
func (c *Config) ApplyEnvOverrides() {}

// ResolvePaths is a no-op; the stream section has no paths.
func (c *Config) ResolvePaths(_ string) {}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if c.DefaultRadiusMeters <= 0 {
		return errors.New("stream.default_radius_meters must be positive")
	}
	if c.QueueSize <= 0 {
		return errors.New("stream.queue_size must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("stream.heartbeat_interval must be positive")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("stream.write_timeout must be positive")
	}
	if c.MaxSessions < 0 {
		return errors.New("stream.max_sessions must not be negative")
	}
	return nil
}
