package profile

import (
	"fmt"
	"path"
	"time"
)

// Visibility roots under the storage base. Public files are served without a
// signature; private files only through a verified signed link.
const (
	PublicRoot  = "public"
	PrivateRoot = "private"
)

// Profile is a named, statically configured bundle of upload validation
// rules and storage-path policy. Profiles are immutable at runtime.
type Profile struct {
	// Name is the unique profile identifier callers reference on upload.
	Name string `yaml:"-"`

	// Public controls whether uploaded files are served without a signature.
	Public bool `yaml:"public"`

	// BaseFolder is the path segment under the visibility root.
	BaseFolder string `yaml:"base_folder"`

	// UseYear, UseMonth, and UseDay enable date partitioning of the storage
	// path. The date is always the admission time, never caller input.
	UseYear  bool `yaml:"use_year"`
	UseMonth bool `yaml:"use_month"`
	UseDay   bool `yaml:"use_day"`

	// MaxSize is the upload size ceiling in bytes.
	MaxSize int64 `yaml:"max_size"`

	// AllowedMIME lists acceptable content types. A wildcard subtype such as
	// "image/*" matches any subtype.
	AllowedMIME []string `yaml:"allowed_mime"`

	// AutoResize requests a post-upload resize for image profiles.
	AutoResize bool `yaml:"auto_resize"`
	ResizeW    int  `yaml:"resize_w"`
	ResizeH    int  `yaml:"resize_h"`
}

// validate checks a loaded profile for usable values.
func (p Profile) validate() error {
	if p.BaseFolder == "" {
		return fmt.Errorf("%w: profile %q has no base_folder", ErrInvalidProfile, p.Name)
	}
	if p.MaxSize <= 0 {
		return fmt.Errorf("%w: profile %q has no max_size", ErrInvalidProfile, p.Name)
	}
	if len(p.AllowedMIME) == 0 {
		return fmt.Errorf("%w: profile %q allows no MIME types", ErrInvalidProfile, p.Name)
	}
	return nil
}

// Root returns the visibility root segment for the profile.
func (p Profile) Root() string {
	if p.Public {
		return PublicRoot
	}
	return PrivateRoot
}

// StoragePath computes the canonical relative storage path for an upload
// admitted at the given time:
//
//	{root}/{base_folder}[/{YYYY}[/{MM}[/{DD}]]]
//
// Date segments come from the admission clock only, so request parameters
// can never steer the path.
func (p Profile) StoragePath(now time.Time) string {
	segments := []string{p.Root(), path.Clean("/" + p.BaseFolder)[1:]}

	if p.UseYear {
		segments = append(segments, fmt.Sprintf("%04d", now.Year()))
		if p.UseMonth {
			segments = append(segments, fmt.Sprintf("%02d", now.Month()))
			if p.UseDay {
				segments = append(segments, fmt.Sprintf("%02d", now.Day()))
			}
		}
	}

	return path.Join(segments...)
}
