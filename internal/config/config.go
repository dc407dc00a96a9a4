// Package config loads the hazardwatch configuration from YAML files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/saferoute/hazardwatch/internal/identity"
	"github.com/saferoute/hazardwatch/internal/realtime"
	"github.com/saferoute/hazardwatch/internal/server"
	"github.com/saferoute/hazardwatch/internal/storage/postgres"
	"gopkg.in/yaml.v3"
)

// DefaultDir is where Load looks for config files.
const DefaultDir = "config"

// Config holds the application configuration.
type Config struct {
	Server  server.Config `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`

	Database postgres.Config `yaml:"database"`
	Feed     FeedConfig      `yaml:"feed"`
	Stream   realtime.Config `yaml:"stream"`
	Auth     identity.Config `yaml:"auth"`
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		Server:   server.DefaultConfig(),
		Logging:  DefaultLoggingConfig(),
		Database: postgres.DefaultConfig(),
		Feed:     DefaultFeedConfig(),
		Stream:   realtime.DefaultConfig(),
		Auth:     identity.DefaultConfig(),
	}
}

// Load reads configuration.
// Order: defaults -> config.yml -> config.local.yml -> ApplyDefaults ->
// ApplyEnvOverrides -> ResolvePaths -> Validate, per section.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultDir
	}
	cfg := Default()

	for _, name := range []string{"config.yml", "config.local.yml"} {
		if err := loadFile(filepath.Join(configDir, name), cfg); err != nil {
			return nil, err
		}
	}

	if err := ApplyServiceConfigs(configDir, cfg.sections()...); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func (c *Config) sections() []ServiceConfig {
	return []ServiceConfig{
		&c.Server,
		&c.Logging,
		&c.Database,
		&c.Feed,
		&c.Stream,
		&c.Auth,
	}
}

// loadFile merges filename into cfg. A missing file is not an error.
func loadFile(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}
	return nil
}
