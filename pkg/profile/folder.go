package profile

import (
	"errors"
	"regexp"
	"strings"
)

// ErrUnsafeFolder is returned for custom sub-folders that fail the traversal
// check or the whitelist pattern.
var ErrUnsafeFolder = errors.New("profile: unsafe custom folder")

// folderPattern is the whitelist for caller-supplied sub-folders: lowercase
// letters, digits, slashes, underscores, and hyphens.
var folderPattern = regexp.MustCompile(`^[a-z0-9/_-]+$`)

// SafeFolder normalizes and validates a caller-supplied sub-folder.
// Leading and trailing slashes are stripped; any parent-directory segment or
// character outside the whitelist fails with ErrUnsafeFolder, so the result
// can never escape the profile's storage path.
func SafeFolder(folder string) (string, error) {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return "", nil
	}

	if strings.Contains(folder, "..") {
		return "", ErrUnsafeFolder
	}

	if !folderPattern.MatchString(folder) {
		return "", ErrUnsafeFolder
	}

	return folder, nil
}
