package filerecord

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
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore persists records in a cdn_files table:
//
//	CREATE TABLE cdn_files (
//	    file_key       TEXT        PRIMARY KEY,
//	    original_name  TEXT        NOT NULL DEFAULT '',
//	    stored_name    TEXT        NOT NULL,
//	    mime_type      TEXT        NOT NULL,
//	    relative_path  TEXT        NOT NULL,
//	    size           BIGINT      NOT NULL,
//	    is_public      BOOLEAN     NOT NULL,
//	    download_count BIGINT      NOT NULL DEFAULT 0,
//	    expired_at     TIMESTAMPTZ,
//	    deleted_at     TIMESTAMPTZ,
//	    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE INDEX cdn_files_expired_at_idx ON cdn_files (expired_at)
//	    WHERE expired_at IS NOT NULL AND deleted_at IS NULL;
type PostgresStore struct {
	db PostgresDB
}

// NewPostgresStore creates a Postgres-backed store.
func NewPostgresStore(db PostgresDB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `file_key, original_name, stored_name, mime_type, relative_path,
	size, is_public, download_count, expired_at, deleted_at, created_at`

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, rec *Record) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO cdn_files (file_key, original_name, stored_name, mime_type,
			relative_path, size, is_public, expired_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.FileKey, rec.OriginalName, rec.StoredName, rec.MIMEType,
		rec.RelativePath, rec.Size, rec.IsPublic, rec.ExpiredAt, rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrDuplicateKey
		}
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	return nil
}

// FindByKey implements Store. Soft-deleted records are invisible.
func (s *PostgresStore) FindByKey(ctx context.Context, fileKey string) (*Record, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM cdn_files
		WHERE file_key = $1 AND deleted_at IS NULL`,
		fileKey)

	return scanRecord(row)
}

// SoftDelete implements Store.
func (s *PostgresStore) SoftDelete(ctx context.Context, fileKey string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE cdn_files SET deleted_at = now()
		WHERE file_key = $1 AND deleted_at IS NULL`,
		fileKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// IncrementDownload implements Store.
func (s *PostgresStore) IncrementDownload(ctx context.Context, fileKey string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE cdn_files SET download_count = download_count + 1
		WHERE file_key = $1 AND deleted_at IS NULL`,
		fileKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	return nil
}

// ListExpired implements Store.
func (s *PostgresStore) ListExpired(ctx context.Context, limit int) ([]*Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM cdn_files
		WHERE expired_at IS NOT NULL AND expired_at <= now() AND deleted_at IS NULL
		ORDER BY expired_at
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("filerecord: expired lookup failed: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}

// scanRecord reads one record from a row.
func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.FileKey, &rec.OriginalName, &rec.StoredName, &rec.MIMEType,
		&rec.RelativePath, &rec.Size, &rec.IsPublic, &rec.DownloadCount,
		&rec.ExpiredAt, &rec.DeletedAt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("filerecord: scan failed: %w", err)
	}

	return &rec, nil
}
