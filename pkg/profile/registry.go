package profile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Errors.
var (
	ErrInvalidProfile = errors.New("profile: invalid profile")
	ErrNoProfiles     = errors.New("profile: no profiles configured")
)

// Registry maps profile names to their rules. It is loaded once from
// configuration and read-only afterwards, so lookups need no locking.
type Registry struct {
	profiles map[string]Profile
}

// Load reads a YAML document of named profiles:
//
//	profile_image:
//	  public: true
//	  base_folder: avatars/users
//	  use_year: true
//	  use_month: true
//	  use_day: true
//	  max_size: 2097152
//	  allowed_mime: [image/jpeg, image/png, image/webp]
func Load(r io.Reader) (*Registry, error) {
	var raw map[string]Profile
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("profile: failed to parse profiles: %w", err)
	}
	return NewRegistry(raw)
}

// LoadFile reads profiles from a YAML file.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("profile: failed to open %s: %w", path, err)
	}
	defer f.Close()

	return Load(f)
}

// NewRegistry builds a registry from already-decoded profiles.
func NewRegistry(profiles map[string]Profile) (*Registry, error) {
	if len(profiles) == 0 {
		return nil, ErrNoProfiles
	}

	m := make(map[string]Profile, len(profiles))
	for name, p := range profiles {
		p.Name = name
		if err := p.validate(); err != nil {
			return nil, err
		}
		m[name] = p
	}

	return &Registry{profiles: m}, nil
}

// Get returns the profile with the given name.
func (r *Registry) Get(name string) (Profile, bool) {
	p, ok := r.profiles[name]
	return p, ok
}

// Names returns the configured profile names, in no particular order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	return names
}
