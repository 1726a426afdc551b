package logger

import (
	"context"
	"log/slog"
	"os"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
)

// SentryConfig holds Sentry fan-out configuration. An empty DSN disables
// the integration entirely.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// NewWithSentry creates a logger writing JSON to stdout and, when a DSN is
// configured, fanning warnings and errors out to Sentry. Errors create
// Sentry issues; warnings are stored as logs. Sentry initialization failure
// falls back to stdout-only logging so the service still starts.
func NewWithSentry(cfg Config, extractors ...ContextExtractor) *slog.Logger {
	stdout := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	})

	if cfg.Sentry.DSN == "" {
		return slog.New(NewHandler(stdout, extractors...))
	}

	env := cfg.Sentry.Environment
	if env == "" {
		env = "production"
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.Sentry.DSN,
		Environment: env,
		EnableLogs:  true,
	}); err != nil {
		slog.New(stdout).Error("failed to initialize sentry", slog.String("error", err.Error()))
		return slog.New(NewHandler(stdout, extractors...))
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
	}.NewSentryHandler(context.Background())

	return slog.New(NewHandler(fanout{stdout, sentryHandler}, extractors...))
}

// fanout forwards records to every handler that accepts the level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, rec slog.Record) error {
	for _, h := range f {
		if h.Enabled(ctx, rec.Level) {
			if err := h.Handle(ctx, rec.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (f fanout) WithGroup(name string) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithGroup(name)
	}
	return next
}
