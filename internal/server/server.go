package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/cdngate/internal/server/middleware"
	"github.com/dmitrymomot/cdngate/pkg/apikey"
	"github.com/dmitrymomot/cdngate/pkg/blob"
	"github.com/dmitrymomot/cdngate/pkg/filerecord"
	"github.com/dmitrymomot/cdngate/pkg/signedurl"
	"github.com/dmitrymomot/cdngate/pkg/uploader"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// MaxBodySize caps the request body before any profile limit applies.
	MaxBodySize int64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		MaxBodySize:     32 << 20,
	}
}

// Server is the HTTP surface: authenticated upload and delete endpoints,
// the public CDN read path, and signed private reads.
type Server struct {
	cfg     Config
	router  chi.Router
	uploads *uploader.Uploader
	records *filerecord.Manager
	blobs   blob.Store
	codec   *signedurl.Codec
	auth    *apikey.Authenticator
	logger  *slog.Logger

	readyChecks map[string]func(context.Context) error
}

// Option configures the Server.
type Option func(*Server)

// WithReadyCheck registers a named dependency probe for the readiness
// endpoint.
func WithReadyCheck(name string, check func(context.Context) error) Option {
	return func(s *Server) {
		if check != nil {
			s.readyChecks[name] = check
		}
	}
}

// New wires routes and middleware and returns a server ready to run.
func New(
	cfg Config,
	uploads *uploader.Uploader,
	records *filerecord.Manager,
	blobs blob.Store,
	codec *signedurl.Codec,
	auth *apikey.Authenticator,
	logger *slog.Logger,
	opts ...Option,
) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = DefaultConfig().CORSOrigins
	}

	s := &Server{
		cfg:         cfg,
		uploads:     uploads,
		records:     records,
		blobs:       blobs,
		codec:       codec,
		auth:        auth,
		logger:      logger,
		readyChecks: make(map[string]func(context.Context) error),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.HeaderAPIKey},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// Public CDN read path: no authentication, cacheable.
	r.Get("/cdn/{fileKey}", s.handleServePublic)

	r.Route("/api/v1", func(r chi.Router) {
		// Signed private reads authenticate through the signature itself.
		r.Get("/files/private/{fileKey}", s.handleServePrivate)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.auth))
			r.Post("/upload", s.handleUpload)
			r.Delete("/files/{fileKey}", s.handleDelete)
		})
	})

	s.router = r
}

// ServeHTTP makes the server usable as a handler, mainly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves until ctx is canceled, then drains connections within the
// shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           http.MaxBytesHandler(s.router, s.cfg.MaxBodySize),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server listening", slog.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz probes every registered dependency. Any failure makes the
// whole service not ready.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := make(map[string]string, len(s.readyChecks))
	ready := true
	for name, check := range s.readyChecks {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			ready = false
			continue
		}
		status[name] = "ok"
	}

	if !ready {
		s.logger.WarnContext(ctx, "readiness probe failed")
		respondEnvelope(w, http.StatusServiceUnavailable, envelope{Status: "error", Message: "not ready", Data: status})
		return
	}

	respondSuccess(w, http.StatusOK, status)
}
