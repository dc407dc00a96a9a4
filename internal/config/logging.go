package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var (
	logLevels  = []string{"debug", "info", "warn", "warning", "error"}
	logFormats = []string{"text", "json"}
)

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level applies to every output that leaves its own level empty.
	Level   string     `yaml:"level"`
	Console LogOutput  `yaml:"console"`
	File    FileOutput `yaml:"file"`
}

// LogOutput is one log destination.
type LogOutput struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"` // text or json
}

// FileOutput writes hazardwatch.log, rotated by size, into Dir.
type FileOutput struct {
	LogOutput `yaml:",inline"`

	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`

	// ErrorFile adds errors.log holding only warn and above.
	ErrorFile bool `yaml:"error_file"`
}

func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:   "info",
		Console: LogOutput{Enabled: true, Format: "text"},
		File: FileOutput{
			LogOutput:  LogOutput{Enabled: true, Format: "json"},
			Dir:        "logs",
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 30,
			Compress:   true,
			ErrorFile:  true,
		},
	}
}

// ApplyDefaults fills empty levels, formats and rotation limits. Enabled
// flags are left alone; Load seeds them from DefaultLoggingConfig.
func (c *LoggingConfig) ApplyDefaults() {
	defaults := DefaultLoggingConfig()
	if c.Level == "" {
		c.Level = defaults.Level
	}
	c.Console.fill(c.Level, defaults.Console.Format)
	c.File.fill(c.Level, defaults.File.Format)

	if c.File.Dir == "" {
		c.File.Dir = defaults.File.Dir
	}
	if c.File.MaxSizeMB == 0 {
		c.File.MaxSizeMB = defaults.File.MaxSizeMB
	}
	if c.File.MaxBackups == 0 {
		c.File.MaxBackups = defaults.File.MaxBackups
	}
	if c.File.MaxAgeDays == 0 {
		c.File.MaxAgeDays = defaults.File.MaxAgeDays
	}
}

func (o *LogOutput) fill(level, format string) {
	if o.Level == "" {
		o.Level = level
	}
	if o.Format == "" {
		o.Format = format
	}
}

// ApplyEnvOverrides applies HAZARDWATCH_LOG_LEVEL to every output.
func (c *LoggingConfig) ApplyEnvOverrides() {
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("HAZARDWATCH_LOG_LEVEL"))); v != "" {
		c.Level = v
		c.Console.Level = v
		c.File.Level = v
	}
}

// ResolvePaths places a relative log dir next to the config directory.
// A dir starting with ".." is taken relative to the config directory itself.
func (c *LoggingConfig) ResolvePaths(configDir string) {
	dir := c.File.Dir
	if dir == "" || filepath.IsAbs(dir) {
		return
	}
	base := filepath.Dir(configDir)
	if strings.HasPrefix(dir, "..") {
		base = configDir
	}
	c.File.Dir = filepath.Clean(filepath.Join(base, dir))
}

func (c *LoggingConfig) Validate() error {
	if !slices.Contains(logLevels, c.Level) {
		return fmt.Errorf("logging.level: unknown level %q", c.Level)
	}
	if err := c.Console.validate("logging.console"); err != nil {
		return err
	}
	if !c.File.Enabled {
		return nil
	}
	if err := c.File.validate("logging.file"); err != nil {
		return err
	}
	if c.File.Dir == "" {
		return errors.New("logging.file.dir is required when file logging is enabled")
	}
	if c.File.MaxSizeMB < 0 || c.File.MaxBackups < 0 || c.File.MaxAgeDays < 0 {
		return errors.New("logging.file: rotation limits cannot be negative")
	}
	return nil
}

func (o LogOutput) validate(section string) error {
	if !o.Enabled {
		return nil
	}
	if !slices.Contains(logLevels, o.Level) {
		return fmt.Errorf("%s.level: unknown level %q", section, o.Level)
	}
	if !slices.Contains(logFormats, o.Format) {
		return fmt.Errorf("%s.format: must be text or json, got %q", section, o.Format)
	}
	return nil
}
