// Package logging provides structured logging for NetSentry. It wraps
// log/slog with project defaults and component-scoped loggers.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	Level string

	// Format is "json" or "text".
	Format string

	// Output is the log destination, defaulting to stderr.
	Output io.Writer
}

var (
	defaultLogger *slog.Logger
	once          sync.Once
)

// Init installs the default logger. Safe to call before any component
// starts; later calls replace the process-wide default.
func Init(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the default logger, initializing it if needed.
func Default() *slog.Logger {
	once.Do(func() {
		if defaultLogger == nil {
			Init(Config{})
		}
	})
	return defaultLogger
}

// Component returns a logger tagged with a component field.
func Component(name string) *slog.Logger {
	return Default().With("component", name)
}

// Err returns a log attribute for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
