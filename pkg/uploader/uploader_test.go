package uploader_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cdngate/pkg/admission"
	"github.com/dmitrymomot/cdngate/pkg/blob"
	"github.com/dmitrymomot/cdngate/pkg/filerecord"
	"github.com/dmitrymomot/cdngate/pkg/profile"
	"github.com/dmitrymomot/cdngate/pkg/signedurl"
	"github.com/dmitrymomot/cdngate/pkg/uploader"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func jpegPayload() []byte {
	data := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	return append(data, bytes.Repeat([]byte{0x42}, 256)...)
}

func pdfPayload() []byte {
	return append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte{0x42}, 256)...)
}

func testRegistry(t *testing.T) *profile.Registry {
	t.Helper()
	reg, err := profile.NewRegistry(map[string]profile.Profile{
		"avatars": {
			Public:      true,
			BaseFolder:  "avatars",
			MaxSize:     1 << 20,
			AllowedMIME: []string{"image/*"},
		},
		"docs": {
			Public:      false,
			BaseFolder:  "docs",
			MaxSize:     1 << 20,
			AllowedMIME: []string{"application/pdf"},
		},
	})
	require.NoError(t, err)
	return reg
}

// memBlob is an in-memory blob.Store that can be told to fail, and records
// every delete it receives.
type memBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	failPut bool
}

func newMemBlob() *memBlob {
	return &memBlob{objects: make(map[string][]byte)}
}

func (b *memBlob) Write(_ context.Context, key string, r io.Reader, size int64, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPut {
		return blob.ErrWriteFailed
	}
	if _, ok := b.objects[key]; ok {
		return blob.ErrAlreadyExists
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return blob.ErrWriteFailed
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
	b.deleted = append(b.deleted, key)
	if _, ok := b.objects[key]; !ok {
		return blob.ErrNotFound
	}
	delete(b.objects, key)
	return nil
}

func (b *memBlob) deletedKeys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.deleted...)
}

// failingRecordStore rejects every create while delegating reads to the
// wrapped store.
type failingRecordStore struct {
	filerecord.Store
}

func (s failingRecordStore) Create(context.Context, *filerecord.Record) error {
	return errors.New("storage offline")
}

func newUploader(t *testing.T, blobs blob.Store, records filerecord.Store) *uploader.Uploader {
	t.Helper()
	codec, err := signedurl.New(testSecret)
	require.NoError(t, err)
	ctrl := admission.New(testRegistry(t), admission.Config{})
	mgr := filerecord.NewManager(records)
	return uploader.New(ctrl, blobs, mgr, codec, "https://cdn.example.com/")
}

func TestUploadPublic(t *testing.T) {
	t.Parallel()

	blobs := newMemBlob()
	records := filerecord.NewMemoryStore()
	up := newUploader(t, blobs, records)

	res, err := up.Upload(context.Background(), "avatars", admission.Candidate{
		Source:       admission.BytesSource{Data: jpegPayload()},
		OriginalName: "me.jpg",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.FileKey)
	require.Equal(t, "https://cdn.example.com/cdn/"+res.FileKey, res.URL)

	rec, err := records.FindByKey(context.Background(), res.FileKey)
	require.NoError(t, err)
	require.True(t, rec.IsPublic)
	require.Equal(t, "image/jpeg", rec.MIMEType)
	require.Equal(t, "me.jpg", rec.OriginalName)
	require.False(t, rec.CreatedAt.IsZero())

	body, err := blobs.Open(context.Background(), rec.StorageKey())
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, jpegPayload(), data)
}

func TestUploadPrivateSignedURL(t *testing.T) {
	t.Parallel()

	blobs := newMemBlob()
	up := newUploader(t, blobs, filerecord.NewMemoryStore())

	res, err := up.Upload(context.Background(), "docs", admission.Candidate{
		Source:       admission.BytesSource{Data: pdfPayload()},
		OriginalName: "report.pdf",
	})
	require.NoError(t, err)

	parsed, err := url.Parse(res.URL)
	require.NoError(t, err)
	require.Equal(t, "/api/v1/files/private/"+res.FileKey, parsed.Path)

	codec, err := signedurl.New(testSecret)
	require.NoError(t, err)
	require.True(t, codec.VerifyQuery(res.FileKey, parsed.Query()))
}

func TestUploadRejectedLeavesNoBytes(t *testing.T) {
	t.Parallel()

	blobs := newMemBlob()
	up := newUploader(t, blobs, filerecord.NewMemoryStore())

	_, err := up.Upload(context.Background(), "docs", admission.Candidate{
		Source: admission.BytesSource{Data: jpegPayload()}, // docs only allows PDFs
	})
	require.ErrorIs(t, err, admission.ErrUnsupportedType)
	require.Empty(t, blobs.objects)
}

func TestUploadPersistFailureCleansUpBlob(t *testing.T) {
	t.Parallel()

	blobs := newMemBlob()
	records := failingRecordStore{filerecord.NewMemoryStore()}
	up := newUploader(t, blobs, records)

	_, err := up.Upload(context.Background(), "avatars", admission.Candidate{
		Source: admission.BytesSource{Data: jpegPayload()},
	})
	require.ErrorIs(t, err, filerecord.ErrPersistFailed)

	// The just-written blob must have been deleted again.
	require.Len(t, blobs.deletedKeys(), 1)
	require.Empty(t, blobs.objects)
	require.True(t, strings.HasPrefix(blobs.deletedKeys()[0], "public/avatars/"))
}

func TestUploadBlobWriteFailure(t *testing.T) {
	t.Parallel()

	blobs := newMemBlob()
	blobs.failPut = true
	records := filerecord.NewMemoryStore()
	up := newUploader(t, blobs, records)

	res, err := up.Upload(context.Background(), "avatars", admission.Candidate{
		Source: admission.BytesSource{Data: jpegPayload()},
	})
	require.ErrorIs(t, err, blob.ErrWriteFailed)
	require.Nil(t, res)
}

func TestDeleteSoftDeletesAndRemovesBytes(t *testing.T) {
	t.Parallel()

	blobs := newMemBlob()
	records := filerecord.NewMemoryStore()
	up := newUploader(t, blobs, records)

	res, err := up.Upload(context.Background(), "avatars", admission.Candidate{
		Source: admission.BytesSource{Data: jpegPayload()},
	})
	require.NoError(t, err)

	require.NoError(t, up.Delete(context.Background(), res.FileKey))

	// Record stays but is unreachable; bytes are gone.
	mgr := filerecord.NewManager(records)
	_, err = mgr.ResolveForAccess(context.Background(), res.FileKey)
	require.ErrorIs(t, err, filerecord.ErrNotFound)
	require.Empty(t, blobs.objects)

	// Deleting again reports not found, same as for a key that never existed.
	require.ErrorIs(t, up.Delete(context.Background(), res.FileKey), filerecord.ErrNotFound)
}

func TestDeleteUnknownKey(t *testing.T) {
	t.Parallel()

	up := newUploader(t, newMemBlob(), filerecord.NewMemoryStore())
	err := up.Delete(context.Background(), "no-such-key")
	require.ErrorIs(t, err, filerecord.ErrNotFound)
}
