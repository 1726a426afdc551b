package signedurl_test

import (
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cdngate/pkg/signedurl"
)

const testSecret = "0123456789abcdef0123456789abcdef" // 32 bytes

func newTestCodec(t *testing.T, now time.Time) *signedurl.Codec {
	t.Helper()

	c, err := signedurl.New(testSecret, signedurl.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("requires a secret", func(t *testing.T) {
		t.Parallel()

		_, err := signedurl.New("")
		require.ErrorIs(t, err, signedurl.ErrNoSecret)
	})

	t.Run("rejects short secrets", func(t *testing.T) {
		t.Parallel()

		_, err := signedurl.New("too-short")
		require.ErrorIs(t, err, signedurl.ErrBadSecret)
	})
}

func TestSignVerify(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("round trip is valid before expiry", func(t *testing.T) {
		t.Parallel()

		c := newTestCodec(t, now)
		link := c.Sign("f1a2b3", 5*time.Minute)

		require.Equal(t, "f1a2b3", link.FileID)
		require.Equal(t, now.Add(5*time.Minute), link.ExpiresAt)
		require.True(t, c.Verify(link.FileID, link.ExpiresAt.Unix(), link.Signature))
	})

	t.Run("any altered byte fails verification", func(t *testing.T) {
		t.Parallel()

		c := newTestCodec(t, now)
		link := c.Sign("f1a2b3", 5*time.Minute)

		// Altered file ID.
		require.False(t, c.Verify("f1a2b4", link.ExpiresAt.Unix(), link.Signature))
		// Altered expiry.
		require.False(t, c.Verify(link.FileID, link.ExpiresAt.Unix()+1, link.Signature))
		// Altered signature.
		tampered := "0" + link.Signature[1:]
		if tampered == link.Signature {
			tampered = "1" + link.Signature[1:]
		}
		require.False(t, c.Verify(link.FileID, link.ExpiresAt.Unix(), tampered))
	})

	t.Run("correct signature fails once expired", func(t *testing.T) {
		t.Parallel()

		c := newTestCodec(t, now)
		link := c.Sign("f1a2b3", 5*time.Minute)

		expired, err := signedurl.New(testSecret, signedurl.WithClock(func() time.Time {
			return now.Add(5 * time.Minute) // now == expires counts as expired
		}))
		require.NoError(t, err)
		require.False(t, expired.Verify(link.FileID, link.ExpiresAt.Unix(), link.Signature))
	})

	t.Run("empty inputs fail closed", func(t *testing.T) {
		t.Parallel()

		c := newTestCodec(t, now)
		link := c.Sign("f1a2b3", 5*time.Minute)

		require.False(t, c.Verify("", link.ExpiresAt.Unix(), link.Signature))
		require.False(t, c.Verify(link.FileID, link.ExpiresAt.Unix(), ""))
	})

	t.Run("different secrets do not cross-verify", func(t *testing.T) {
		t.Parallel()

		c := newTestCodec(t, now)
		link := c.Sign("f1a2b3", 5*time.Minute)

		other, err := signedurl.New("fedcba9876543210fedcba9876543210",
			signedurl.WithClock(func() time.Time { return now }))
		require.NoError(t, err)
		require.False(t, other.Verify(link.FileID, link.ExpiresAt.Unix(), link.Signature))
	})

	t.Run("zero ttl falls back to default", func(t *testing.T) {
		t.Parallel()

		c := newTestCodec(t, now)
		link := c.Sign("f1a2b3", 0)
		require.Equal(t, now.Add(signedurl.DefaultTTL), link.ExpiresAt)
	})
}

func TestVerifyQuery(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newTestCodec(t, now)
	link := c.Sign("f1a2b3", 5*time.Minute)

	t.Run("valid query round trip", func(t *testing.T) {
		t.Parallel()

		require.True(t, c.VerifyQuery("f1a2b3", link.Query()))
	})

	t.Run("non-numeric expires fails", func(t *testing.T) {
		t.Parallel()

		q := url.Values{"expires": {"soon"}, "signature": {link.Signature}}
		require.False(t, c.VerifyQuery("f1a2b3", q))
	})

	t.Run("missing parameters fail", func(t *testing.T) {
		t.Parallel()

		require.False(t, c.VerifyQuery("f1a2b3", url.Values{}))
	})
}

func TestToken(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("round trip returns the file id", func(t *testing.T) {
		t.Parallel()

		c := newTestCodec(t, now)
		token, err := c.Token("f1a2b3", 5*time.Minute)
		require.NoError(t, err)

		fileID, ok := c.VerifyToken(token)
		require.True(t, ok)
		require.Equal(t, "f1a2b3", fileID)
	})

	t.Run("tokens are unique per issue", func(t *testing.T) {
		t.Parallel()

		c := newTestCodec(t, now)
		a, err := c.Token("f1a2b3", 5*time.Minute)
		require.NoError(t, err)
		b, err := c.Token("f1a2b3", 5*time.Minute)
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		t.Parallel()

		c := newTestCodec(t, now)
		token, err := c.Token("f1a2b3", 5*time.Minute)
		require.NoError(t, err)

		late, err := signedurl.New(testSecret, signedurl.WithClock(func() time.Time {
			return now.Add(6 * time.Minute)
		}))
		require.NoError(t, err)

		_, ok := late.VerifyToken(token)
		require.False(t, ok)
	})

	t.Run("malformed tokens are rejected identically", func(t *testing.T) {
		t.Parallel()

		c := newTestCodec(t, now)

		for _, token := range []string{
			"",
			"not base64!!",
			"bm90IGpzb24",      // valid base64, not JSON
			"e30",              // {} with no fields
			strconv.Quote(""),  // JSON but wrong shape
		} {
			_, ok := c.VerifyToken(token)
			require.False(t, ok, "token %q should be rejected", token)
		}
	})
}
