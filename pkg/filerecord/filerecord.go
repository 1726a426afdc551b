package filerecord

import (
	"context"
	"errors"
	"path"
	"time"
)

// Errors.
var (
	// ErrNotFound covers unknown, soft-deleted, and expired records alike.
	// Callers cannot distinguish the three, which prevents probing for the
	// existence of files they cannot access.
	ErrNotFound = errors.New("filerecord: not found")

	ErrDuplicateKey  = errors.New("filerecord: file key already exists")
	ErrPersistFailed = errors.New("filerecord: failed to persist record")
)

// Record ties a logical file identity to its physical location and
// visibility. Records are soft-deleted, never removed, so a key can never be
// silently reused.
type Record struct {
	// FileKey is the globally unique opaque identifier minted at upload.
	FileKey string

	// OriginalName is the caller's filename, kept for download disposition.
	OriginalName string

	// StoredName is derived from FileKey plus the sniffed extension.
	StoredName string

	// MIMEType is the sniffed content type.
	MIMEType string

	// RelativePath locates the file under the storage root.
	RelativePath string

	// Size is the payload size in bytes.
	Size int64

	// DownloadCount is an advisory access counter.
	DownloadCount int64

	// IsPublic controls whether the file is served without a signature.
	IsPublic bool

	// ExpiredAt, when set, makes the record unreachable from that instant.
	ExpiredAt *time.Time

	// DeletedAt marks a soft-deleted record.
	DeletedAt *time.Time

	CreatedAt time.Time
}

// StorageKey is the blob key the record's bytes live under.
func (r *Record) StorageKey() string {
	return path.Join(r.RelativePath, r.StoredName)
}

// expired reports whether the record's expiry has passed at the given time.
func (r *Record) expired(now time.Time) bool {
	return r.ExpiredAt != nil && !r.ExpiredAt.After(now)
}

// Store persists file metadata records.
type Store interface {
	// Create persists a new record. Fails with ErrDuplicateKey when the file
	// key is taken, or an error wrapping ErrPersistFailed on storage faults.
	Create(ctx context.Context, rec *Record) error

	// FindByKey returns the record for a file key. Soft-deleted records are
	// invisible; expiry is the Manager's concern.
	FindByKey(ctx context.Context, fileKey string) (*Record, error)

	// SoftDelete marks a record deleted. The bytes stay; removing them is
	// the caller's follow-up side effect.
	SoftDelete(ctx context.Context, fileKey string) error

	// IncrementDownload advances the advisory download counter.
	// Best-effort: losing an increment is acceptable.
	IncrementDownload(ctx context.Context, fileKey string) error

	// ListExpired returns up to limit records whose expiry has passed and
	// that are not yet soft-deleted, for batch cleanup.
	ListExpired(ctx context.Context, limit int) ([]*Record, error)
}

// Manager applies access semantics on top of a Store: expired and deleted
// records become unreachable through every access path.
type Manager struct {
	store Store
	now   func() time.Time
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithClock sets the time source. Used by tests to control expiry.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a Manager over the given store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create persists a new record.
func (m *Manager) Create(ctx context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	return m.store.Create(ctx, rec)
}

// ResolveForAccess returns the record for a file key if it is still
// reachable. Unknown, soft-deleted, and expired records all return the same
// ErrNotFound. Visibility gating (IsPublic, or a verified signed link for
// private files) is the caller's responsibility before serving bytes.
func (m *Manager) ResolveForAccess(ctx context.Context, fileKey string) (*Record, error) {
	rec, err := m.store.FindByKey(ctx, fileKey)
	if err != nil {
		return nil, err
	}
	if rec.expired(m.now()) {
		return nil, ErrNotFound
	}
	return rec, nil
}

// SoftDelete marks a record deleted.
func (m *Manager) SoftDelete(ctx context.Context, fileKey string) error {
	return m.store.SoftDelete(ctx, fileKey)
}

// IncrementDownload advances the advisory download counter, ignoring
// storage faults.
func (m *Manager) IncrementDownload(ctx context.Context, fileKey string) {
	_ = m.store.IncrementDownload(ctx, fileKey)
}

// ListExpired exposes the store's expired-record feed for the sweeper.
func (m *Manager) ListExpired(ctx context.Context, limit int) ([]*Record, error) {
	return m.store.ListExpired(ctx, limit)
}
