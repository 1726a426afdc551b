package admission

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/dmitrymomot/cdngate/pkg/profile"
)

// DefaultFetchTimeout bounds remote source fetches so a slow origin cannot
// tie up a worker.
const DefaultFetchTimeout = 5 * time.Second

// Candidate is an upload awaiting admission.
type Candidate struct {
	// Source supplies the payload bytes.
	Source Source

	// OriginalName is the caller's filename, kept for metadata only. It
	// never influences type detection or the storage path.
	OriginalName string

	// CustomFolder is an optional caller-supplied sub-folder. Honored only
	// when the controller allows custom folders, and only after passing the
	// traversal and whitelist checks.
	CustomFolder string
}

// Admission is the successful outcome: everything the caller needs to write
// the bytes and persist a file record.
type Admission struct {
	FileKey      string
	StoredName   string
	RelativePath string
	MIMEType     string
	OriginalName string
	Size         int64
	Public       bool
	Data         []byte
}

// StorageKey is the blob key the admitted payload should be written under.
func (a *Admission) StorageKey() string {
	return path.Join(a.RelativePath, a.StoredName)
}

// Config holds controller settings.
type Config struct {
	// AllowCustomFolder globally enables caller-supplied sub-folders.
	AllowCustomFolder bool

	// FetchTimeout bounds remote URL fetches (default 5s).
	FetchTimeout time.Duration
}

// applyDefaults fills in default values for empty config fields.
func (c *Config) applyDefaults() {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
}

// Controller resolves upload profiles and validates candidate uploads
// against them, producing the canonical storage location for admitted files.
type Controller struct {
	registry *profile.Registry
	client   *http.Client
	lookupIP LookupIPFunc
	now      func() time.Time
	cfg      Config
}

// Option configures the Controller.
type Option func(*Controller)

// WithHTTPClient sets the client used for remote source fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Controller) {
		if client != nil {
			c.client = client
		}
	}
}

// WithLookupIP sets the resolver used by the SSRF guard. Used by tests.
func WithLookupIP(fn LookupIPFunc) Option {
	return func(c *Controller) {
		if fn != nil {
			c.lookupIP = fn
		}
	}
}

// WithClock sets the time source for date-partitioned paths. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Controller over the given profile registry.
func New(registry *profile.Registry, cfg Config, opts ...Option) *Controller {
	cfg.applyDefaults()

	c := &Controller{
		registry: registry,
		client:   &http.Client{},
		lookupIP: defaultLookupIP,
		now:      time.Now,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Admit validates a candidate against the named profile. Gates run in order
// and the first failure wins: profile resolution, payload size, sniffed MIME
// type, custom-folder safety. Remote sources additionally pass the SSRF
// guard before any byte is fetched, and the fetch itself is bounded by the
// configured timeout and the profile's size ceiling.
func (c *Controller) Admit(ctx context.Context, profileName string, cand Candidate) (*Admission, error) {
	p, ok := c.registry.Get(profileName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, profileName)
	}

	if cand.Source == nil {
		return nil, ErrEmptyFile
	}

	data, err := cand.Source.load(ctx, c, p.MaxSize)
	if err != nil {
		return nil, err
	}

	mimeType := SniffMIME(data)
	if !matchesMIME(mimeType, p.AllowedMIME) {
		return nil, fmt.Errorf("%w: sniffed %q, profile %q allows %v",
			ErrUnsupportedType, mimeType, p.Name, p.AllowedMIME)
	}

	relPath := p.StoragePath(c.now())
	if c.cfg.AllowCustomFolder && cand.CustomFolder != "" {
		safe, err := profile.SafeFolder(cand.CustomFolder)
		if err != nil {
			return nil, err
		}
		if safe != "" {
			relPath = path.Join(relPath, safe)
		}
	}

	fileKey, err := newFileKey()
	if err != nil {
		return nil, err
	}

	return &Admission{
		FileKey:      fileKey,
		StoredName:   fileKey + ExtForMIME(mimeType),
		RelativePath: relPath,
		MIMEType:     mimeType,
		OriginalName: cand.OriginalName,
		Size:         int64(len(data)),
		Public:       p.Public,
		Data:         data,
	}, nil
}

// fetch downloads a remote source after the SSRF guard clears it. The read
// aborts mid-stream once the size ceiling is exceeded.
func (c *Controller) fetch(ctx context.Context, rawURL string, maxSize int64) ([]byte, error) {
	parsed, err := c.checkRemoteURL(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	// Declared length lets us reject early, but the capped read below is
	// the authoritative ceiling.
	if resp.ContentLength > maxSize {
		return nil, ErrTooLarge
	}

	data, err := readCapped(resp.Body, maxSize)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	return data, nil
}

// newFileKey generates an opaque, collision-resistant file identifier:
// 16 random bytes, hex encoded. Not derived from time or a counter, so keys
// cannot be enumerated and concurrent uploads cannot collide.
func newFileKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return hex.EncodeToString(buf), nil
}
