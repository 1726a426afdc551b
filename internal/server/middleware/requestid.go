package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

// RequestIDKey is the context key for the request ID.
const RequestIDKey contextKey = "request_id"

// RequestID assigns a UUID v7 to each request, honoring a client-supplied
// X-Request-ID when present. The ID is set on both the response header and
// the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.Must(uuid.NewV7()).String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID extracts the request ID from the context, or "" if absent.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// RequestIDExtractor surfaces the request ID as a log attribute so every
// record emitted within a request carries it.
func RequestIDExtractor(ctx context.Context) (slog.Attr, bool) {
	id := GetRequestID(ctx)
	if id == "" {
		return slog.Attr{}, false
	}
	return slog.String("request_id", id), true
}
