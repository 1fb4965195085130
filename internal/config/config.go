// Package config loads the gallery configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Backend names accepted in storage.backend.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendGit    = "git"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendS3     = "s3"
)

// Backends lists the accepted backend names.
var Backends = []string{BackendMemory, BackendFile, BackendGit, BackendSQLite, BackendRedis, BackendS3}

// Config is the root configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	S3        S3Config        `yaml:"s3"`
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

// StorageConfig selects where the collection is persisted.
type StorageConfig struct {
	Backend       string `yaml:"backend"        env:"GALLERY_STORAGE_BACKEND"        env-default:"file"`
	Path          string `yaml:"path"           env:"GALLERY_STORAGE_PATH"           env-default:"./data"`
	Key           string `yaml:"key"            env:"GALLERY_STORAGE_KEY"            env-default:"galleryImages"`
	CapacityBytes int    `yaml:"capacity_bytes" env:"GALLERY_STORAGE_CAPACITY_BYTES" env-default:"4718592"`
	OnCorrupt     string `yaml:"on_corrupt"     env:"GALLERY_STORAGE_ON_CORRUPT"     env-default:"fail"`
}

// RedisConfig is used by the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"     env:"GALLERY_REDIS_ADDR"     env-default:"localhost:6379"`
	Password string `yaml:"password" env:"GALLERY_REDIS_PASSWORD"`
	DB       int    `yaml:"db"       env:"GALLERY_REDIS_DB"       env-default:"0"`
	Prefix   string `yaml:"prefix"   env:"GALLERY_REDIS_PREFIX"   env-default:"gallery:"`
}

// S3Config is used by the s3 backend.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"   env:"GALLERY_S3_ENDPOINT"   env-default:"localhost:9000"`
	AccessKey string `yaml:"access_key" env:"GALLERY_S3_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"GALLERY_S3_SECRET_KEY"`
	Bucket    string `yaml:"bucket"     env:"GALLERY_S3_BUCKET"     env-default:"gallery"`
	UseSSL    bool   `yaml:"use_ssl"    env:"GALLERY_S3_USE_SSL"    env-default:"false"`
	Prefix    string `yaml:"prefix"     env:"GALLERY_S3_PREFIX"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr              string        `yaml:"addr"                env:"GALLERY_SERVER_ADDR"                env-default:":8080"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"GALLERY_SERVER_READ_HEADER_TIMEOUT" env-default:"10s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"    env:"GALLERY_SERVER_SHUTDOWN_TIMEOUT"    env-default:"5s"`
	// MaxUploadBytes bounds multipart upload bodies.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" env:"GALLERY_SERVER_MAX_UPLOAD_BYTES" env-default:"10485760"`
}

// RateLimitConfig is a per-client token bucket on mutating requests.
// Requests <= 0 disables it.
type RateLimitConfig struct {
	Requests int           `yaml:"requests" env:"GALLERY_RATE_LIMIT_REQUESTS" env-default:"60"`
	Window   time.Duration `yaml:"window"   env:"GALLERY_RATE_LIMIT_WINDOW"   env-default:"1m"`
	Burst    int           `yaml:"burst"    env:"GALLERY_RATE_LIMIT_BURST"    env-default:"10"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" env:"GALLERY_LOG_LEVEL" env-default:"info"`
}

// Load reads configuration from the YAML file at path, then environment
// variables and validates it. Priority: ENV > YAML > defaults. An empty path
// loads from ENV and defaults only; a path that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// Read is Load without validation, for callers that override values before
// calling Validate.
func Read(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config: file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	return &cfg, nil
}

// Validate checks the values cleanenv cannot express with tags.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(Backends, c.Storage.Backend) {
		errs = append(errs, fmt.Errorf("storage.backend must be one of %s (got %q)", strings.Join(Backends, ", "), c.Storage.Backend))
	}
	if c.Storage.Key == "" {
		errs = append(errs, errors.New("storage.key must not be empty"))
	}
	if c.Storage.CapacityBytes <= 0 {
		errs = append(errs, fmt.Errorf("storage.capacity_bytes must be > 0 (got %d)", c.Storage.CapacityBytes))
	}
	switch c.Storage.OnCorrupt {
	case "fail", "reset":
	default:
		errs = append(errs, fmt.Errorf("storage.on_corrupt must be fail or reset (got %q)", c.Storage.OnCorrupt))
	}
	switch c.Storage.Backend {
	case BackendFile, BackendGit, BackendSQLite:
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required by the %s backend", c.Storage.Backend))
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required by the redis backend"))
		}
	case BackendS3:
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			errs = append(errs, errors.New("s3.endpoint and s3.bucket are required by the s3 backend"))
		}
	}
	if c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.window must be > 0 (got %s)", c.RateLimit.Window))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must be > 0 (got %d)", c.Server.MaxUploadBytes))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}
