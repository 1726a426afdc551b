package admission

import "errors"

// Sentinel errors for admission gates. Each gate short-circuits with its own
// error so callers can map failures to machine-distinguishable reasons.
var (
	ErrUnknownProfile  = errors.New("admission: unknown upload profile")
	ErrEmptyFile       = errors.New("admission: file is empty")
	ErrTooLarge        = errors.New("admission: file exceeds profile size limit")
	ErrUnsupportedType = errors.New("admission: file type not allowed by profile")
	ErrInvalidURL      = errors.New("admission: invalid source URL")
	ErrSSRFBlocked     = errors.New("admission: source host resolves to a private address")
	ErrFetchFailed     = errors.New("admission: failed to fetch remote source")
	ErrKeyGeneration   = errors.New("admission: failed to generate file key")
)
