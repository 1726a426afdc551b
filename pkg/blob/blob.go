package blob

import (
	"context"
	"errors"
	"io"
)

// Sentinel errors for blob operations.
var (
	ErrInvalidConfig = errors.New("blob: invalid configuration")
	ErrInvalidKey    = errors.New("blob: invalid storage key")
	ErrNotFound      = errors.New("blob: not found")
	ErrAlreadyExists = errors.New("blob: key already exists")
	ErrWriteFailed   = errors.New("blob: write failed")
	ErrDeleteFailed  = errors.New("blob: delete failed")
)

// Store is the byte sink the gatekeeper writes admitted uploads to and
// serves reads from. Keys are slash-separated relative paths produced by the
// admission controller; implementations must never let a key escape their
// configured root.
type Store interface {
	// Write stores the payload under key. Fails with ErrAlreadyExists if the
	// key is taken; file keys are unique so a collision means a logic error.
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Open returns a reader for the payload under key.
	// The caller closes the returned reader.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the payload under key. Deleting a missing key fails
	// with ErrNotFound.
	Delete(ctx context.Context, key string) error
}
