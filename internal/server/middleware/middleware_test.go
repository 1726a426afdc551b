package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cdngate/internal/server/middleware"
	"github.com/dmitrymomot/cdngate/pkg/apikey"
	"github.com/dmitrymomot/cdngate/pkg/ratelimit"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	t.Run("generates an id", func(t *testing.T) {
		t.Parallel()

		var seen string
		h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = middleware.GetRequestID(r.Context())
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotEmpty(t, seen)
		require.Equal(t, seen, rec.Header().Get("X-Request-ID"))
	})

	t.Run("honors a client-supplied id", func(t *testing.T) {
		t.Parallel()

		var seen string
		h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = middleware.GetRequestID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "client-id-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, "client-id-1", seen)
		require.Equal(t, "client-id-1", rec.Header().Get("X-Request-ID"))
	})
}

func TestRequestIDExtractor(t *testing.T) {
	t.Parallel()

	_, ok := middleware.RequestIDExtractor(context.Background())
	require.False(t, ok)

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	attr, ok := middleware.RequestIDExtractor(ctx)
	require.True(t, ok)
	require.Equal(t, "request_id", attr.Key)
	require.Equal(t, "req-1", attr.Value.String())
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	newHandler := func(t *testing.T, records ...*apikey.Record) http.Handler {
		t.Helper()
		limiter := ratelimit.NewMemory()
		t.Cleanup(func() { _ = limiter.Close() })
		auth := apikey.NewAuthenticator(apikey.NewMemoryStore(records...), limiter)
		return middleware.Authenticate(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := middleware.GetAPIKey(r.Context())
			require.NotNil(t, rec)
			w.WriteHeader(http.StatusOK)
		}))
	}

	t.Run("missing key", func(t *testing.T) {
		t.Parallel()
		h := newHandler(t)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired key", func(t *testing.T) {
		t.Parallel()
		past := time.Now().Add(-time.Minute)
		h := newHandler(t, &apikey.Record{Key: "k", Status: apikey.StatusActive, ExpiredAt: &past})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", "k")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("valid key sets headers and context", func(t *testing.T) {
		t.Parallel()
		h := newHandler(t, &apikey.Record{Key: "k", Status: apikey.StatusActive})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", "k")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
		require.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("rate limited", func(t *testing.T) {
		t.Parallel()
		limit := 1
		h := newHandler(t, &apikey.Record{Key: "k", Status: apikey.StatusActive, RateLimit: &limit})
		for i := 0; i < 2; i++ {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-API-Key", "k")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if i == 0 {
				require.Equal(t, http.StatusOK, rec.Code)
				continue
			}
			require.Equal(t, http.StatusTooManyRequests, rec.Code)
			require.NotEmpty(t, rec.Header().Get("Retry-After"))
			require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		}
	})
}
