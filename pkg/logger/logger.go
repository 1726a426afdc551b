// Package logger builds the service's slog loggers: JSON to stdout, optional
// Sentry fan-out, and per-call context attribute extraction for
// request-scoped values such as request IDs.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum level to emit: debug, info, warn, or error.
	// Defaults to info.
	Level string `yaml:"level"`

	// Sentry enables error fan-out when a DSN is set.
	Sentry SentryConfig `yaml:"sentry"`
}

// ParseLevel maps a config level string to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New creates a JSON logger writing to stdout at the configured level.
// Extractors inject context-scoped attributes into every record.
func New(cfg Config, extractors ...ContextExtractor) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	})
	return slog.New(NewHandler(handler, extractors...))
}

// NewDiscard creates a logger that drops everything. Used in tests and as a
// safe default for optional loggers.
func NewDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(127),
	}))
}
