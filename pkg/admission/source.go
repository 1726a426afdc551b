package admission

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Source is where an upload's bytes come from: a local temp file from a
// direct upload, an in-memory payload, or a caller-supplied remote URL.
// All variants load through the same bounded read so one validation pipeline
// covers both upload paths.
type Source interface {
	// load returns the payload, reading at most maxSize bytes before
	// failing with ErrTooLarge.
	load(ctx context.Context, c *Controller, maxSize int64) ([]byte, error)
}

// LocalSource is a file already on local disk (e.g. a multipart temp file).
type LocalSource struct {
	Path string
}

// BytesSource is an in-memory payload.
type BytesSource struct {
	Data []byte
}

// RemoteSource is a caller-supplied URL to fetch the payload from.
type RemoteSource struct {
	URL string
}

func (s LocalSource) load(_ context.Context, _ *Controller, maxSize int64) ([]byte, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return nil, fmt.Errorf("admission: failed to stat source file: %w", err)
	}
	if info.Size() == 0 {
		return nil, ErrEmptyFile
	}
	if info.Size() > maxSize {
		return nil, ErrTooLarge
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("admission: failed to read source file: %w", err)
	}

	return data, nil
}

func (s BytesSource) load(_ context.Context, _ *Controller, maxSize int64) ([]byte, error) {
	if len(s.Data) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(s.Data)) > maxSize {
		return nil, ErrTooLarge
	}
	return s.Data, nil
}

func (s RemoteSource) load(ctx context.Context, c *Controller, maxSize int64) ([]byte, error) {
	return c.fetch(ctx, s.URL, maxSize)
}

// readCapped reads r to the end, failing with ErrTooLarge once more than
// maxSize bytes have arrived. The read aborts mid-stream instead of
// buffering an oversized payload.
func readCapped(r io.Reader, maxSize int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, ErrTooLarge
	}
	return data, nil
}
