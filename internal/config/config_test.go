package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cdngate/internal/config"
)

const validYAML = `
base_url: https://cdn.example.com
signing:
  secret: 0123456789abcdef0123456789abcdef
  ttl: 10m
server:
  addr: ":9090"
storage:
  driver: disk
  path: /var/lib/cdngate
database:
  driver: memory
rate_limit:
  window: 1h
  default_limit: 500
profiles:
  profile_image:
    public: true
    base_folder: avatars/users
    use_year: true
    use_month: true
    use_day: true
    max_size: 2097152
    allowed_mime: [image/jpeg, image/png]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	require.Equal(t, "https://cdn.example.com", cfg.BaseURL)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, 10*time.Minute, cfg.Signing.TTL.Std())
	require.Equal(t, config.StorageDisk, cfg.Storage.Driver)
	require.Equal(t, 500, cfg.RateLimit.DefaultLimit)
	require.Equal(t, config.BackendMemory, cfg.RateLimit.Backend) // defaulted

	p, ok := cfg.Profiles["profile_image"]
	require.True(t, ok)
	require.True(t, p.Public)
	require.EqualValues(t, 2097152, p.MaxSize)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing base_url",
			yaml: `
signing: {secret: 0123456789abcdef0123456789abcdef}
storage: {driver: disk, path: /tmp/x}
profiles: {p: {base_folder: p, max_size: 1, allowed_mime: [image/png]}}
`,
		},
		{
			name: "short signing secret",
			yaml: `
base_url: https://cdn.example.com
signing: {secret: too-short}
storage: {driver: disk, path: /tmp/x}
profiles: {p: {base_folder: p, max_size: 1, allowed_mime: [image/png]}}
`,
		},
		{
			name: "no profiles",
			yaml: `
base_url: https://cdn.example.com
signing: {secret: 0123456789abcdef0123456789abcdef}
storage: {driver: disk, path: /tmp/x}
`,
		},
		{
			name: "disk storage without path",
			yaml: `
base_url: https://cdn.example.com
signing: {secret: 0123456789abcdef0123456789abcdef}
storage: {driver: disk}
profiles: {p: {base_folder: p, max_size: 1, allowed_mime: [image/png]}}
`,
		},
		{
			name: "unknown storage driver",
			yaml: `
base_url: https://cdn.example.com
signing: {secret: 0123456789abcdef0123456789abcdef}
storage: {driver: tape}
profiles: {p: {base_folder: p, max_size: 1, allowed_mime: [image/png]}}
`,
		},
		{
			name: "postgres database without dsn",
			yaml: `
base_url: https://cdn.example.com
signing: {secret: 0123456789abcdef0123456789abcdef}
storage: {driver: disk, path: /tmp/x}
database: {driver: postgres}
profiles: {p: {base_folder: p, max_size: 1, allowed_mime: [image/png]}}
`,
		},
		{
			name: "redis limiter without addr",
			yaml: `
base_url: https://cdn.example.com
signing: {secret: 0123456789abcdef0123456789abcdef}
storage: {driver: disk, path: /tmp/x}
rate_limit: {backend: redis}
profiles: {p: {base_folder: p, max_size: 1, allowed_mime: [image/png]}}
`,
		},
		{
			name: "postgres limiter on memory database",
			yaml: `
base_url: https://cdn.example.com
signing: {secret: 0123456789abcdef0123456789abcdef}
storage: {driver: disk, path: /tmp/x}
rate_limit: {backend: postgres}
profiles: {p: {base_folder: p, max_size: 1, allowed_mime: [image/png]}}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.Load(writeConfig(t, tt.yaml))
			require.ErrorIs(t, err, config.ErrInvalid)
		})
	}
}
