package logger

import (
	"context"
	"log/slog"
)

// ContextExtractor pulls one attribute out of a context. Returning false
// skips the attribute for that record.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

// extractHandler wraps a slog.Handler and appends context-extracted
// attributes to every record. Extraction runs per log call so
// request-scoped values stay fresh.
type extractHandler struct {
	next       slog.Handler
	extractors []ContextExtractor
}

// NewHandler wraps next with context attribute extraction. With no
// extractors the handler is returned unwrapped.
func NewHandler(next slog.Handler, extractors ...ContextExtractor) slog.Handler {
	clean := make([]ContextExtractor, 0, len(extractors))
	for _, ex := range extractors {
		if ex != nil {
			clean = append(clean, ex)
		}
	}
	if len(clean) == 0 {
		return next
	}
	return &extractHandler{next: next, extractors: clean}
}

func (h *extractHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *extractHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := rec.Clone()
	for _, ex := range h.extractors {
		if attr, ok := ex(ctx); ok {
			out.AddAttrs(attr)
		}
	}
	return h.next.Handle(ctx, out)
}

func (h *extractHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &extractHandler{next: h.next.WithAttrs(attrs), extractors: h.extractors}
}

func (h *extractHandler) WithGroup(name string) slog.Handler {
	return &extractHandler{next: h.next.WithGroup(name), extractors: h.extractors}
}
