package signedurl

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrTokenEntropy is returned when the system entropy source fails.
var ErrTokenEntropy = errors.New("signedurl: failed to read random bytes")

// tokenPayload is the self-contained token body. The nonce makes every token
// unique even for the same file and expiry.
type tokenPayload struct {
	FileID  string `json:"file_id"`
	Expires int64  `json:"expires"`
	Nonce   string `json:"nonce"`
}

// Token issues a self-contained access token for fileID: a URL-safe encoding
// of {file_id, expires, nonce}. Unlike Sign it carries the file identity
// inside the blob, for places where a back-end signature lookup is
// undesirable. A non-positive ttl falls back to DefaultTTL.
func (c *Codec) Token(fileID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenEntropy, err)
	}

	payload, err := json.Marshal(tokenPayload{
		FileID:  fileID,
		Expires: c.now().Add(ttl).Unix(),
		Nonce:   hex.EncodeToString(nonce),
	})
	if err != nil {
		return "", fmt.Errorf("signedurl: token encoding failed: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// VerifyToken decodes and validates a self-contained token, returning the
// file ID it grants access to. Malformed encodings and expired payloads are
// indistinguishable: both return ok = false.
func (c *Codec) VerifyToken(token string) (string, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", false
	}

	var payload tokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", false
	}

	if payload.FileID == "" || payload.Expires <= c.now().Unix() {
		return "", false
	}

	return payload.FileID, true
}
