package apikey

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresDB is the subset of pgxpool.Pool the store needs.
type PostgresDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore persists API keys in a cdn_api_keys table:
//
//	CREATE TABLE cdn_api_keys (
//	    api_key     TEXT        PRIMARY KEY,
//	    status      TEXT        NOT NULL DEFAULT 'active',
//	    rate_limit  INTEGER,
//	    usage_count BIGINT      NOT NULL DEFAULT 0,
//	    expired_at  TIMESTAMPTZ,
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresStore struct {
	db PostgresDB
}

// NewPostgresStore creates a Postgres-backed store.
func NewPostgresStore(db PostgresDB) *PostgresStore {
	return &PostgresStore{db: db}
}

// FindActive implements Store.
func (s *PostgresStore) FindActive(ctx context.Context, key string) (*Record, error) {
	var rec Record
	err := s.db.QueryRow(ctx, `
		SELECT api_key, status, rate_limit, usage_count, expired_at, created_at
		FROM cdn_api_keys
		WHERE api_key = $1 AND status = $2`,
		key, StatusActive).
		Scan(&rec.Key, &rec.Status, &rec.RateLimit, &rec.UsageCount, &rec.ExpiredAt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("apikey: lookup failed: %w", err)
	}

	return &rec, nil
}

// IncrementUsage implements Store.
func (s *PostgresStore) IncrementUsage(ctx context.Context, key string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE cdn_api_keys SET usage_count = usage_count + 1
		WHERE api_key = $1`,
		key)
	if err != nil {
		return fmt.Errorf("apikey: usage update failed: %w", err)
	}
	return nil
}

// ResetUsage implements Store.
func (s *PostgresStore) ResetUsage(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `UPDATE cdn_api_keys SET usage_count = 0`)
	if err != nil {
		return fmt.Errorf("apikey: usage reset failed: %w", err)
	}
	return nil
}
