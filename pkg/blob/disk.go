package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// dirPermission is the mode for auto-created storage directories.
const dirPermission = 0o755

// Disk stores blobs as files under a base directory, creating intermediate
// directories on demand. Every key is resolved against the base and checked
// for containment, so no key can address a path outside the root.
type Disk struct {
	base string
}

// NewDisk creates a disk store rooted at base. The directory is created if
// it does not exist.
func NewDisk(base string) (*Disk, error) {
	if base == "" {
		return nil, fmt.Errorf("%w: base directory required", ErrInvalidConfig)
	}

	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := os.MkdirAll(abs, dirPermission); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &Disk{base: abs}, nil
}

// Write implements Store.
func (d *Disk) Write(_ context.Context, key string, r io.Reader, size int64, _ string) error {
	path, err := d.resolve(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPermission); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
		}
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	written, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if size > 0 && written != size {
		_ = os.Remove(path)
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrWriteFailed, written, size)
	}

	return nil
}

// Open implements Store.
func (d *Disk) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := d.resolve(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("blob: open failed: %w", err)
	}

	return f, nil
}

// Delete implements Store.
func (d *Disk) Delete(_ context.Context, key string) error {
	path, err := d.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}

	return nil
}

// resolve maps a storage key to an absolute path under the base directory.
// Keys that are empty, absolute, or that would resolve outside the base are
// rejected with ErrInvalidKey.
func (d *Disk) resolve(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	path := filepath.Join(d.base, filepath.FromSlash(key))
	if path != d.base && !strings.HasPrefix(path, d.base+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes storage root", ErrInvalidKey, key)
	}

	return path, nil
}
