// Package config loads the service configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/cdngate/pkg/blob"
	"github.com/dmitrymomot/cdngate/pkg/logger"
	"github.com/dmitrymomot/cdngate/pkg/profile"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s"
// or "1h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Storage drivers.
const (
	StorageDisk = "disk"
	StorageS3   = "s3"
)

// Backend drivers for API keys, file records, and rate-limit windows.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

var ErrInvalid = errors.New("config: invalid configuration")

// Config is the root configuration document.
type Config struct {
	// BaseURL is the externally visible service root used in result URLs.
	BaseURL string `yaml:"base_url"`

	Server Server        `yaml:"server"`
	Log    logger.Config `yaml:"log"`

	Signing   Signing            `yaml:"signing"`
	Storage   Storage            `yaml:"storage"`
	Database  Database           `yaml:"database"`
	Redis     Redis              `yaml:"redis"`
	RateLimit RateLimit          `yaml:"rate_limit"`
	Upload    Upload             `yaml:"upload"`
	Sweep     Sweep              `yaml:"sweep"`
	Profiles  map[string]profile.Profile `yaml:"profiles"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr            string   `yaml:"addr"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string `yaml:"cors_origins"`
	MaxBodySize     int64    `yaml:"max_body_size"`
}

// Signing configures the HMAC codec for temporary URLs.
type Signing struct {
	// Secret must be at least 32 bytes.
	Secret string `yaml:"secret"`

	// TTL is the lifetime of issued signed URLs.
	TTL Duration `yaml:"ttl"`
}

// Storage selects and configures the blob backend.
type Storage struct {
	Driver string        `yaml:"driver"`
	Path   string        `yaml:"path"` // disk driver
	S3     blob.S3Config `yaml:"s3"`
}

// Database selects the metadata backend: memory or postgres.
type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Redis configures the optional Redis connection.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RateLimit selects the limiter backend and window parameters.
type RateLimit struct {
	// Backend is memory, redis, or postgres. Defaults to the database
	// driver's natural companion: memory with memory, postgres with
	// postgres.
	Backend string `yaml:"backend"`

	// Window is the fixed-window size. Defaults to one hour.
	Window Duration `yaml:"window"`

	// DefaultLimit is the per-window budget for keys without their own.
	DefaultLimit int `yaml:"default_limit"`
}

// Upload configures admission behavior.
type Upload struct {
	AllowCustomFolder bool     `yaml:"allow_custom_folder"`
	FetchTimeout      Duration `yaml:"fetch_timeout"`
}

// Sweep configures background maintenance schedules.
type Sweep struct {
	ExpirySchedule string `yaml:"expiry_schedule"`
	WindowSchedule string `yaml:"window_schedule"`
	BatchSize      int    `yaml:"batch_size"`
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageDisk
	}
	if c.Database.Driver == "" {
		c.Database.Driver = BackendMemory
	}
	if c.RateLimit.Backend == "" {
		switch c.Database.Driver {
		case BackendPostgres:
			c.RateLimit.Backend = BackendPostgres
		default:
			c.RateLimit.Backend = BackendMemory
		}
	}
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base_url is required", ErrInvalid)
	}
	if len(c.Signing.Secret) < 32 {
		return fmt.Errorf("%w: signing.secret must be at least 32 bytes", ErrInvalid)
	}
	if len(c.Profiles) == 0 {
		return fmt.Errorf("%w: at least one upload profile is required", ErrInvalid)
	}

	switch c.Storage.Driver {
	case StorageDisk:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for the disk driver", ErrInvalid)
		}
	case StorageS3:
		// The S3 client validates its own config on construction.
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalid, c.Storage.Driver)
	}

	switch c.Database.Driver {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("%w: database.dsn is required for the postgres driver", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalid, c.Database.Driver)
	}

	switch c.RateLimit.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.Driver != BackendPostgres {
			return fmt.Errorf("%w: postgres rate limiting requires the postgres database driver", ErrInvalid)
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.addr is required for the redis rate-limit backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown rate-limit backend %q", ErrInvalid, c.RateLimit.Backend)
	}

	return nil
}
