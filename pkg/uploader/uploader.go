// Package uploader orchestrates the two-phase upload flow: admission,
// byte storage, and metadata persistence with compensating cleanup.
package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/cdngate/pkg/admission"
	"github.com/dmitrymomot/cdngate/pkg/blob"
	"github.com/dmitrymomot/cdngate/pkg/filerecord"
	"github.com/dmitrymomot/cdngate/pkg/signedurl"
)

// Result is a completed upload: the opaque file key and the URL the caller
// can fetch it from. Private files get a signed URL.
type Result struct {
	FileKey string
	URL     string
}

// Uploader ties admission, blob storage, and metadata persistence into one
// two-phase ingestion flow: bytes first, record second, with compensating
// blob deletion when the record cannot be persisted.
type Uploader struct {
	controller *admission.Controller
	blobs      blob.Store
	records    *filerecord.Manager
	codec      *signedurl.Codec
	log        *slog.Logger
	baseURL    string
	signTTL    time.Duration
}

// Option configures the Uploader.
type Option func(*Uploader)

// WithSignTTL sets the lifetime of signed URLs issued for private uploads.
func WithSignTTL(ttl time.Duration) Option {
	return func(u *Uploader) {
		if ttl > 0 {
			u.signTTL = ttl
		}
	}
}

// WithLogger sets the logger for best-effort failure reporting.
func WithLogger(log *slog.Logger) Option {
	return func(u *Uploader) {
		if log != nil {
			u.log = log
		}
	}
}

// New creates an Uploader. baseURL is the externally visible service root
// used to build result URLs.
func New(
	controller *admission.Controller,
	blobs blob.Store,
	records *filerecord.Manager,
	codec *signedurl.Codec,
	baseURL string,
	opts ...Option,
) *Uploader {
	u := &Uploader{
		controller: controller,
		blobs:      blobs,
		records:    records,
		codec:      codec,
		log:        slog.Default(),
		baseURL:    strings.TrimRight(baseURL, "/"),
		signTTL:    signedurl.DefaultTTL,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload admits the candidate against the named profile, writes its bytes,
// and persists the file record. If the record cannot be persisted the bytes
// are deleted again so no unreferenced storage is left behind; the blob
// cleanup itself is best-effort and only logged on failure.
func (u *Uploader) Upload(ctx context.Context, profileName string, cand admission.Candidate) (*Result, error) {
	adm, err := u.controller.Admit(ctx, profileName, cand)
	if err != nil {
		return nil, err
	}

	key := adm.StorageKey()
	if err := u.blobs.Write(ctx, key, bytes.NewReader(adm.Data), adm.Size, adm.MIMEType); err != nil {
		return nil, err
	}

	rec := &filerecord.Record{
		FileKey:      adm.FileKey,
		OriginalName: adm.OriginalName,
		StoredName:   adm.StoredName,
		MIMEType:     adm.MIMEType,
		RelativePath: adm.RelativePath,
		Size:         adm.Size,
		IsPublic:     adm.Public,
	}
	if err := u.records.Create(ctx, rec); err != nil {
		// The bytes are unreferenced without a record; delete them so a
		// failed upload cannot consume quota.
		if derr := u.blobs.Delete(ctx, key); derr != nil {
			u.log.ErrorContext(ctx, "failed to clean up orphaned blob",
				slog.String("key", key),
				slog.String("error", derr.Error()))
		}
		if errors.Is(err, filerecord.ErrPersistFailed) || errors.Is(err, filerecord.ErrDuplicateKey) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", filerecord.ErrPersistFailed, err)
	}

	return &Result{
		FileKey: adm.FileKey,
		URL:     u.fileURL(rec),
	}, nil
}

// Delete soft-deletes the record and then removes the bytes, best-effort.
// A blob that cannot be removed right away is picked up later by the
// expired-file sweep.
func (u *Uploader) Delete(ctx context.Context, fileKey string) error {
	rec, err := u.records.ResolveForAccess(ctx, fileKey)
	if err != nil {
		return err
	}

	if err := u.records.SoftDelete(ctx, fileKey); err != nil {
		return err
	}

	if err := u.blobs.Delete(ctx, rec.StorageKey()); err != nil && !errors.Is(err, blob.ErrNotFound) {
		u.log.WarnContext(ctx, "failed to remove bytes for deleted file",
			slog.String("file_key", fileKey),
			slog.String("error", err.Error()))
	}

	return nil
}

// fileURL builds the access URL for a record: a plain CDN URL for public
// files, a signed URL for private ones.
func (u *Uploader) fileURL(rec *filerecord.Record) string {
	if rec.IsPublic {
		return u.baseURL + "/cdn/" + rec.FileKey
	}

	link := u.codec.Sign(rec.FileKey, u.signTTL)
	return u.baseURL + "/api/v1/files/private/" + rec.FileKey + "?" + link.Query().Encode()
}
