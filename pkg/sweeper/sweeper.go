// Package sweeper schedules the background maintenance the hot path defers:
// removing expired files and pruning stale rate-limit windows.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/cdngate/pkg/blob"
	"github.com/dmitrymomot/cdngate/pkg/filerecord"
)

// Default schedules and batch size. The sweeps are maintenance work and run
// off the request path entirely.
const (
	DefaultExpirySchedule = "@every 10m"
	DefaultWindowSchedule = "@hourly"
	DefaultBatchSize      = 100
)

// ErrAlreadyRunning is returned by Start when the sweeper was started twice.
var ErrAlreadyRunning = errors.New("sweeper: already running")

// WindowCleaner removes stale rate-limit windows. Satisfied by the Postgres
// rate limiter; the memory limiter sweeps itself and the Redis limiter
// expires keys server-side.
type WindowCleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// Sweeper schedules background maintenance: soft-deleting expired file
// records together with their bytes, and pruning stale rate-limit windows.
type Sweeper struct {
	cron    *cron.Cron
	records *filerecord.Manager
	blobs   blob.Store
	cleaner WindowCleaner
	log     *slog.Logger

	expirySchedule string
	windowSchedule string
	batchSize      int
	jobTimeout     time.Duration

	running bool
}

// Option configures the Sweeper.
type Option func(*Sweeper)

// WithExpirySchedule overrides the expired-file sweep schedule.
func WithExpirySchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.expirySchedule = spec
		}
	}
}

// WithWindowSchedule overrides the rate-limit window cleanup schedule.
func WithWindowSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.windowSchedule = spec
		}
	}
}

// WithWindowCleaner registers a rate-limit backend that needs periodic
// cleanup. Without one, only the file sweep is scheduled.
func WithWindowCleaner(c WindowCleaner) Option {
	return func(s *Sweeper) {
		s.cleaner = c
	}
}

// WithBatchSize caps how many expired records one sweep pass handles.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLogger sets the logger for sweep reporting.
func WithLogger(log *slog.Logger) Option {
	return func(s *Sweeper) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a Sweeper over the given record manager and blob store.
func New(records *filerecord.Manager, blobs blob.Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		cron:           cron.New(),
		records:        records,
		blobs:          blobs,
		log:            slog.Default(),
		expirySchedule: DefaultExpirySchedule,
		windowSchedule: DefaultWindowSchedule,
		batchSize:      DefaultBatchSize,
		jobTimeout:     time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the jobs and starts the scheduler. Jobs run in their own
// goroutines managed by the scheduler.
func (s *Sweeper) Start() error {
	if s.running {
		return ErrAlreadyRunning
	}

	if _, err := s.cron.AddFunc(s.expirySchedule, s.job("expired files", s.SweepExpired)); err != nil {
		return err
	}
	if s.cleaner != nil {
		if _, err := s.cron.AddFunc(s.windowSchedule, s.job("rate-limit windows", s.CleanupWindows)); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.running = true
	return nil
}

// Stop stops the scheduler and waits for in-flight jobs to finish.
func (s *Sweeper) Stop() {
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
}

// SweepExpired soft-deletes expired file records and removes their bytes.
// It processes at most one batch per call; the schedule provides the loop.
func (s *Sweeper) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.records.ListExpired(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, rec := range expired {
		if err := s.records.SoftDelete(ctx, rec.FileKey); err != nil {
			if errors.Is(err, filerecord.ErrNotFound) {
				continue // raced with an explicit delete
			}
			return swept, err
		}
		if err := s.blobs.Delete(ctx, rec.StorageKey()); err != nil && !errors.Is(err, blob.ErrNotFound) {
			s.log.WarnContext(ctx, "failed to remove bytes for expired file",
				slog.String("file_key", rec.FileKey),
				slog.String("error", err.Error()))
		}
		swept++
	}

	return swept, nil
}

// CleanupWindows prunes rate-limit windows old enough that no in-flight
// request can still reference them.
func (s *Sweeper) CleanupWindows(ctx context.Context) (int, error) {
	if s.cleaner == nil {
		return 0, nil
	}
	n, err := s.cleaner.Cleanup(ctx)
	return int(n), err
}

// job wraps a sweep function with a timeout and result logging for the
// scheduler.
func (s *Sweeper) job(name string, fn func(context.Context) (int, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()

		n, err := fn(ctx)
		if err != nil {
			s.log.ErrorContext(ctx, "sweep failed",
				slog.String("job", name),
				slog.Int("swept", n),
				slog.String("error", err.Error()))
			return
		}
		if n > 0 {
			s.log.InfoContext(ctx, "sweep completed",
				slog.String("job", name),
				slog.Int("swept", n))
		}
	}
}
