package signedurl

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"time"
)

// DefaultTTL is the default lifetime of a signed link.
const DefaultTTL = 5 * time.Minute

// Errors.
var (
	ErrNoSecret  = errors.New("signedurl: secret required")
	ErrBadSecret = errors.New("signedurl: secret must be 32+ bytes")
)

// Link is a time-boxed, tamper-evident capability to access one file.
// It is never persisted; it exists only inside a URL.
type Link struct {
	FileID    string
	Signature string
	ExpiresAt time.Time
}

// Query returns the link's query parameters (expires, signature).
func (l Link) Query() url.Values {
	return url.Values{
		"expires":   {strconv.FormatInt(l.ExpiresAt.Unix(), 10)},
		"signature": {l.Signature},
	}
}

// Codec signs and verifies time-boxed access links with HMAC-SHA256.
// It keeps no state beyond the shared secret, so sign and verify may run
// on different workers.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// Option configures the Codec.
type Option func(*Codec)

// WithClock sets the time source. Used by tests to control expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Codec. The secret must be at least 32 bytes.
func New(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if len(secret) < 32 {
		return nil, ErrBadSecret
	}

	c := &Codec{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Sign issues a link for fileID that expires after ttl.
// A non-positive ttl falls back to DefaultTTL.
func (c *Codec) Sign(fileID string, ttl time.Duration) Link {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	expiresAt := c.now().Add(ttl)

	return Link{
		FileID:    fileID,
		ExpiresAt: expiresAt,
		Signature: c.signature(fileID, expiresAt.Unix()),
	}
}

// Verify reports whether the presented signature is valid for fileID and has
// not expired. It fails closed: expiry, tampering, and malformed input all
// produce the same false result, so the caller cannot tell which check failed.
// The signature comparison is constant time.
func (c *Codec) Verify(fileID string, expiresAt int64, signature string) bool {
	if fileID == "" || signature == "" {
		return false
	}
	if expiresAt <= c.now().Unix() {
		return false
	}

	expected := c.signature(fileID, expiresAt)

	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyQuery verifies the expires and signature parameters of a request URL.
func (c *Codec) VerifyQuery(fileID string, q url.Values) bool {
	expiresAt, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil {
		return false
	}
	return c.Verify(fileID, expiresAt, q.Get("signature"))
}

// signature computes hex(HMAC-SHA256(fileID || expires, secret)).
func (c *Codec) signature(fileID string, expiresAt int64) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(fileID))
	mac.Write([]byte(strconv.FormatInt(expiresAt, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
