package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresDB is the subset of pgxpool.Pool the limiter needs.
type PostgresDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is a fixed-window limiter persisted in a rate_limit_windows table:
//
//	CREATE TABLE rate_limit_windows (
//	    principal     TEXT        NOT NULL,
//	    endpoint      TEXT        NOT NULL,
//	    request_count BIGINT      NOT NULL,
//	    window_start  TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (principal, endpoint)
//	);
//
// The counter is advanced with a single upsert that resets the window when it
// has rolled over and increments it otherwise, so two concurrent requests can
// never both observe the pre-increment count. Admission is judged from the
// post-increment value: exactly limit requests per window see count <= limit.
type Postgres struct {
	db   PostgresDB
	now  func() time.Time
	size time.Duration
}

// PostgresOption configures the Postgres limiter.
type PostgresOption func(*Postgres)

// WithPostgresWindow sets the fixed-window size. Default is one hour.
func WithPostgresWindow(size time.Duration) PostgresOption {
	return func(p *Postgres) {
		if size > 0 {
			p.size = size
		}
	}
}

// WithPostgresClock sets the time source. Used by tests.
func WithPostgresClock(now func() time.Time) PostgresOption {
	return func(p *Postgres) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPostgres creates a Postgres-backed limiter.
func NewPostgres(db PostgresDB, opts ...PostgresOption) *Postgres {
	p := &Postgres{
		db:   db,
		now:  time.Now,
		size: DefaultWindow,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

const allowQuery = `
INSERT INTO rate_limit_windows (principal, endpoint, request_count, window_start)
VALUES ($1, $2, 1, $3)
ON CONFLICT (principal, endpoint) DO UPDATE SET
	request_count = CASE
		WHEN rate_limit_windows.window_start <= $4 THEN 1
		ELSE rate_limit_windows.request_count + 1
	END,
	window_start = CASE
		WHEN rate_limit_windows.window_start <= $4 THEN $3
		ELSE rate_limit_windows.window_start
	END
RETURNING request_count, window_start`

// Allow implements Limiter.
func (p *Postgres) Allow(ctx context.Context, principal, endpoint string, limit int) (Result, error) {
	if limit <= 0 {
		return Result{}, ErrInvalidLimit
	}

	now := p.now()
	cutoff := now.Add(-p.size) // windows starting at or before this have rolled over

	var (
		count int64
		start time.Time
	)
	if err := p.db.QueryRow(ctx, allowQuery, principal, endpoint, now, cutoff).
		Scan(&count, &start); err != nil {
		return Result{}, fmt.Errorf("ratelimit: counter update failed: %w", err)
	}

	end := start.Add(p.size)
	admitted := count <= int64(limit)

	res := Result{
		Admitted:  admitted,
		Limit:     limit,
		Remaining: max(0, limit-int(count)),
		WindowEnd: end,
	}
	if !admitted {
		res.RetryAfter = clampRetry(end.Sub(now))
	}

	return res, nil
}

// Cleanup removes windows that ended more than one full window size ago.
// Meant to run as a periodic maintenance task, never on the request path.
func (p *Postgres) Cleanup(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-2 * p.size)

	tag, err := p.db.Exec(ctx,
		`DELETE FROM rate_limit_windows WHERE window_start < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ratelimit: cleanup failed: %w", err)
	}

	return tag.RowsAffected(), nil
}
