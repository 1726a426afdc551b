package ratelimit

import (
	"context"
	"sync"
	"time"
)

// window is a live fixed window for one (principal, endpoint) pair.
type window struct {
	start time.Time
	count int
}

// Memory is an in-process fixed-window limiter.
//
// It keeps one live window per (principal, endpoint) pair in a mutex-guarded
// map. A background janitor removes windows older than twice the window size;
// it runs off the hot path and only takes the lock for the sweep itself.
type Memory struct {
	windows map[string]*window
	now     func() time.Time
	done    chan struct{}
	size    time.Duration
	mu      sync.Mutex
	closed  bool
}

// MemoryOption configures the Memory limiter.
type MemoryOption func(*Memory)

// WithWindow sets the fixed-window size. Default is one hour.
func WithWindow(size time.Duration) MemoryOption {
	return func(m *Memory) {
		if size > 0 {
			m.size = size
		}
	}
}

// WithClock sets the time source. Used by tests to control window rollover.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory creates an in-process limiter and starts its cleanup janitor.
// Call Close to stop the janitor.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		windows: make(map[string]*window),
		size:    DefaultWindow,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.janitor()

	return m
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, principal, endpoint string, limit int) (Result, error) {
	if limit <= 0 {
		return Result{}, ErrInvalidLimit
	}

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Result{}, ErrClosed
	}

	key := principal + "\x00" + endpoint

	w, ok := m.windows[key]
	if !ok || !now.Before(w.start.Add(m.size)) {
		// First request ever, or the window rolled over: this request
		// starts the new window and is admitted.
		w = &window{start: now}
		m.windows[key] = w
	}

	end := w.start.Add(m.size)

	if w.count >= limit {
		return Result{
			Limit:      limit,
			Remaining:  0,
			RetryAfter: clampRetry(end.Sub(now)),
			WindowEnd:  end,
		}, nil
	}

	w.count++

	return Result{
		Admitted:  true,
		Limit:     limit,
		Remaining: limit - w.count,
		WindowEnd: end,
	}, nil
}

// Close stops the janitor goroutine. Close is idempotent.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	close(m.done)

	return nil
}

// janitor periodically removes windows that ended more than one full window
// size ago. Stale windows cannot affect admission decisions (Allow discards
// them on sight), so this is purely a memory bound.
func (m *Memory) janitor() {
	ticker := time.NewTicker(m.size)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep removes windows older than twice the window size.
func (m *Memory) sweep() {
	cutoff := m.now().Add(-2 * m.size)

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, w := range m.windows {
		if w.start.Before(cutoff) {
			delete(m.windows, key)
		}
	}
}
