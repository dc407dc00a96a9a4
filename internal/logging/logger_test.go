package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/saferoute/hazardwatch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.LoggingConfig {
	t.Helper()
	cfg := config.DefaultLoggingConfig()
	cfg.File.Dir = t.TempDir()
	cfg.ApplyDefaults()
	return cfg
}

func TestNew_WritesMainAndErrorFiles(t *testing.T) {
	cfg := testConfig(t)
	var console bytes.Buffer

	out, err := New(cfg, &console)
	require.NoError(t, err)

	out.Logger.Info("session opened", "session", "42-1-abc")
	out.Logger.Warn("feed connection lost")
	out.Logger.Error("decode failed")
	require.NoError(t, out.Close())

	main, err := os.ReadFile(filepath.Join(cfg.File.Dir, MainLogFile))
	require.NoError(t, err)
	assert.Contains(t, string(main), "session opened")
	assert.Contains(t, string(main), "feed connection lost")
	assert.Contains(t, string(main), "decode failed")

	errs, err := os.ReadFile(filepath.Join(cfg.File.Dir, ErrorLogFile))
	require.NoError(t, err)
	assert.NotContains(t, string(errs), "session opened")
	assert.Contains(t, string(errs), "feed connection lost")
	assert.Contains(t, string(errs), "decode failed")

	assert.Contains(t, console.String(), "session opened")
}

func TestNew_WithoutErrorFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Console.Enabled = false
	cfg.File.ErrorFile = false

	out, err := New(cfg, nil)
	require.NoError(t, err)
	out.Logger.Error("decode failed")
	require.NoError(t, out.Close())

	assert.FileExists(t, filepath.Join(cfg.File.Dir, MainLogFile))
	assert.NoFileExists(t, filepath.Join(cfg.File.Dir, ErrorLogFile))
}

func TestNew_JSONFormat(t *testing.T) {
	cfg := testConfig(t)
	cfg.Console.Enabled = false
	cfg.File.Format = "json"

	out, err := New(cfg, nil)
	require.NoError(t, err)
	out.Logger.Info("test json", "key", "value")
	require.NoError(t, out.Close())

	content, err := os.ReadFile(filepath.Join(cfg.File.Dir, MainLogFile))
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"test json"`)
	assert.Contains(t, string(content), `"key":"value"`)
}

func TestNew_ConsoleOnly(t *testing.T) {
	cfg := testConfig(t)
	cfg.File.Enabled = false
	cfg.Console.Level = "warn"
	var console bytes.Buffer

	out, err := New(cfg, &console)
	require.NoError(t, err)
	out.Logger.Info("hidden")
	out.Logger.Warn("shown")
	require.NoError(t, out.Close())

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "shown")
	assert.NoFileExists(t, filepath.Join(cfg.File.Dir, MainLogFile))
}

func TestNew_NothingEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.File.Enabled = false
	cfg.Console.Enabled = false

	out, err := New(cfg, nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() { out.Logger.Info("dropped") })
}

func TestInstall_SetsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := testConfig(t)
	cfg.Console.Enabled = false

	out, err := Install(cfg)
	require.NoError(t, err)
	slog.Info("global test message")
	require.NoError(t, out.Close())

	content, err := os.ReadFile(filepath.Join(cfg.File.Dir, MainLogFile))
	require.NoError(t, err)
	assert.Contains(t, string(content), "global test message")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.level))
		})
	}
}

func TestFanoutAndMinLevel(t *testing.T) {
	var all, warn bytes.Buffer
	h := Fanout(
		slog.NewTextHandler(&all, &slog.HandlerOptions{Level: slog.LevelDebug}),
		MinLevel(slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelDebug}), slog.LevelWarn),
	)
	logger := slog.New(h).With("component", "test").WithGroup("g")

	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
	logger.Debug("debug line", "k", 1)
	logger.Error("error line", "k", 2)

	assert.Contains(t, all.String(), "debug line")
	assert.Contains(t, all.String(), "component=test")
	assert.Contains(t, all.String(), "g.k=2")
	assert.NotContains(t, warn.String(), "debug line")
	assert.Contains(t, warn.String(), "error line")
}
