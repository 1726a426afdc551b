package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/cdngate/pkg/apikey"
)

type contextKeyAuth string

// APIKeyRecordKey is the context key for the authenticated API key record.
const APIKeyRecordKey contextKeyAuth = "api_key_record"

// HeaderAPIKey is the header clients present their key in.
const HeaderAPIKey = "X-API-Key"

// Authenticate validates the X-API-Key header and counts the request
// against the key's rate-limit budget. Every admitted request gets
// X-RateLimit-Limit, X-RateLimit-Remaining, and X-RateLimit-Reset headers;
// an exhausted budget gets 429 with Retry-After. Unknown, inactive, or
// missing keys get 401; expired keys get 403.
func Authenticate(auth *apikey.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := auth.Authenticate(r.Context(), r.Header.Get(HeaderAPIKey), endpointID(r))
			if err != nil {
				writeAuthFailure(w, err)
				return
			}

			setRateLimitHeaders(w, res.RateLimit.Limit, res.RateLimit.Remaining, res.RateLimit.WindowEnd.Unix())

			ctx := context.WithValue(r.Context(), APIKeyRecordKey, res.Record)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAPIKey extracts the authenticated key record from the context, or nil.
func GetAPIKey(ctx context.Context) *apikey.Record {
	if rec, ok := ctx.Value(APIKeyRecordKey).(*apikey.Record); ok {
		return rec
	}
	return nil
}

// endpointID identifies the route for rate-limit bucketing. The matched
// route pattern keeps all requests to one endpoint in one bucket regardless
// of path parameters.
func endpointID(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return r.Method + " " + pattern
		}
	}
	return r.Method + " " + r.URL.Path
}

func setRateLimitHeaders(w http.ResponseWriter, limit, remaining int, reset int64) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
}

func writeAuthFailure(w http.ResponseWriter, err error) {
	var limited *apikey.RateLimitedError
	switch {
	case errors.As(err, &limited):
		setRateLimitHeaders(w, limited.Limit, 0, limited.WindowEnd.Unix())
		retry := int(limited.RetryAfter.Seconds())
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
	case errors.Is(err, apikey.ErrExpiredKey):
		writeError(w, http.StatusForbidden, "API key expired")
	case errors.Is(err, apikey.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Invalid or missing API key")
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "error",
		"message": message,
	})
}
