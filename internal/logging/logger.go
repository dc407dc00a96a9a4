// Package logging configures the process-wide slog logger: an optional
// console handler, a rotating main log file and a rotating warn+ file.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/saferoute/hazardwatch/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// File names inside the file output's Dir.
const (
	MainLogFile  = "hazardwatch.log"
	ErrorLogFile = "errors.log"
)

// Output is a configured logger together with the files it owns.
type Output struct {
	Logger *slog.Logger
	files  []*lumberjack.Logger
}

// Install builds an Output from cfg and makes it the slog default.
func Install(cfg config.LoggingConfig) (*Output, error) {
	out, err := New(cfg, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	slog.SetDefault(out.Logger)
	slog.Info("Logging initialized",
		"level", cfg.Level,
		"console", cfg.Console.Enabled,
		"file", cfg.File.Enabled,
		"dir", cfg.File.Dir,
	)
	return out, nil
}

// New builds the handler tree described by cfg. Console output goes to
// console; file output is rotated by lumberjack.
func New(cfg config.LoggingConfig, console io.Writer) (*Output, error) {
	out := &Output{}
	var handlers []slog.Handler

	if cfg.Console.Enabled && console != nil {
		handlers = append(handlers, newHandler(console, cfg.Console.Format, ParseLevel(cfg.Console.Level)))
	}

	if file := cfg.File; file.Enabled {
		if err := os.MkdirAll(file.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		main := out.rotating(file, MainLogFile)
		handlers = append(handlers, newHandler(main, file.Format, ParseLevel(file.Level)))

		if file.ErrorFile {
			errs := out.rotating(file, ErrorLogFile)
			handlers = append(handlers, MinLevel(newHandler(errs, file.Format, slog.LevelWarn), slog.LevelWarn))
		}
	}

	switch len(handlers) {
	case 0:
		out.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	case 1:
		out.Logger = slog.New(handlers[0])
	default:
		out.Logger = slog.New(Fanout(handlers...))
	}
	return out, nil
}

// Close flushes and closes the log files.
func (o *Output) Close() error {
	var errs []error
	for _, f := range o.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close log file %s: %w", f.Filename, err))
		}
	}
	o.files = nil
	return errors.Join(errs...)
}

func (o *Output) rotating(file config.FileOutput, name string) *lumberjack.Logger {
	f := &lumberjack.Logger{
		Filename:   filepath.Join(file.Dir, name),
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
		Compress:   file.Compress,
	}
	o.files = append(o.files, f)
	return f
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything
// else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
