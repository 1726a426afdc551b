package sweeper_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cdngate/pkg/blob"
	"github.com/dmitrymomot/cdngate/pkg/filerecord"
	"github.com/dmitrymomot/cdngate/pkg/sweeper"
)

type memBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	failDel bool
}

func newMemBlob() *memBlob {
	return &memBlob{objects: make(map[string][]byte)}
}

func (b *memBlob) Write(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[key] = data
	return nil
}

func (b *memBlob) Open(_ context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBlob) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failDel {
		return blob.ErrDeleteFailed
	}
	if _, ok := b.objects[key]; !ok {
		return blob.ErrNotFound
	}
	delete(b.objects, key)
	return nil
}

func seedRecord(t *testing.T, store *filerecord.MemoryStore, blobs *memBlob, key string, expiredAt *time.Time) *filerecord.Record {
	t.Helper()
	rec := &filerecord.Record{
		FileKey:      key,
		StoredName:   key + ".bin",
		RelativePath: "public/assets",
		MIMEType:     "application/octet-stream",
		Size:         4,
		IsPublic:     true,
		ExpiredAt:    expiredAt,
		CreatedAt:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Create(context.Background(), rec))
	require.NoError(t, blobs.Write(context.Background(), rec.StorageKey(), strings.NewReader("data"), 4, rec.MIMEType))
	return rec
}

func TestSweepExpired(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := filerecord.NewMemoryStore(filerecord.WithMemoryClock(clock))
	blobs := newMemBlob()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	expired := seedRecord(t, store, blobs, "expired", &past)
	alive := seedRecord(t, store, blobs, "alive", &future)
	forever := seedRecord(t, store, blobs, "forever", nil)

	mgr := filerecord.NewManager(store, filerecord.WithClock(clock))
	sw := sweeper.New(mgr, blobs)

	n, err := sw.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// The expired record is now soft-deleted and its bytes are gone.
	_, err = mgr.ResolveForAccess(context.Background(), expired.FileKey)
	require.ErrorIs(t, err, filerecord.ErrNotFound)
	_, err = blobs.Open(context.Background(), expired.StorageKey())
	require.ErrorIs(t, err, blob.ErrNotFound)

	// Live records and their bytes are untouched.
	for _, rec := range []*filerecord.Record{alive, forever} {
		_, err = mgr.ResolveForAccess(context.Background(), rec.FileKey)
		require.NoError(t, err)
		body, err := blobs.Open(context.Background(), rec.StorageKey())
		require.NoError(t, err)
		require.NoError(t, body.Close())
	}

	// A second pass finds nothing: swept records are soft-deleted and no
	// longer listed as expired.
	n, err = sw.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSweepExpiredBlobFailureTolerated(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := filerecord.NewMemoryStore(filerecord.WithMemoryClock(clock))
	blobs := newMemBlob()
	blobs.failDel = true

	past := now.Add(-time.Minute)
	seedRecord(t, store, blobs, "stuck", &past)

	mgr := filerecord.NewManager(store, filerecord.WithClock(clock))
	sw := sweeper.New(mgr, blobs)

	// The record is still swept even though its bytes could not be removed.
	n, err := sw.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = mgr.ResolveForAccess(context.Background(), "stuck")
	require.ErrorIs(t, err, filerecord.ErrNotFound)
}

func TestSweepExpiredBatchLimit(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := filerecord.NewMemoryStore(filerecord.WithMemoryClock(clock))
	blobs := newMemBlob()

	past := now.Add(-time.Minute)
	for _, key := range []string{"a", "b", "c"} {
		seedRecord(t, store, blobs, key, &past)
	}

	mgr := filerecord.NewManager(store, filerecord.WithClock(clock))
	sw := sweeper.New(mgr, blobs, sweeper.WithBatchSize(2))

	n, err := sw.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = sw.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

type countingCleaner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingCleaner) Cleanup(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 7, c.err
}

func TestCleanupWindows(t *testing.T) {
	t.Parallel()

	mgr := filerecord.NewManager(filerecord.NewMemoryStore())

	t.Run("delegates to the cleaner", func(t *testing.T) {
		t.Parallel()
		cleaner := &countingCleaner{}
		sw := sweeper.New(mgr, newMemBlob(), sweeper.WithWindowCleaner(cleaner))
		n, err := sw.CleanupWindows(context.Background())
		require.NoError(t, err)
		require.Equal(t, 7, n)
		require.Equal(t, 1, cleaner.calls)
	})

	t.Run("no cleaner registered", func(t *testing.T) {
		t.Parallel()
		sw := sweeper.New(mgr, newMemBlob())
		n, err := sw.CleanupWindows(context.Background())
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("propagates cleaner errors", func(t *testing.T) {
		t.Parallel()
		cleaner := &countingCleaner{err: errors.New("db offline")}
		sw := sweeper.New(mgr, newMemBlob(), sweeper.WithWindowCleaner(cleaner))
		_, err := sw.CleanupWindows(context.Background())
		require.Error(t, err)
	})
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	mgr := filerecord.NewManager(filerecord.NewMemoryStore())
	sw := sweeper.New(mgr, newMemBlob(),
		sweeper.WithWindowCleaner(&countingCleaner{}),
		sweeper.WithExpirySchedule("@every 1h"),
		sweeper.WithWindowSchedule("@every 1h"))

	require.NoError(t, sw.Start())
	require.ErrorIs(t, sw.Start(), sweeper.ErrAlreadyRunning)
	sw.Stop()
	sw.Stop() // idempotent
}

func TestStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	mgr := filerecord.NewManager(filerecord.NewMemoryStore())
	sw := sweeper.New(mgr, newMemBlob(), sweeper.WithExpirySchedule("not a schedule"))
	require.Error(t, sw.Start())
}
