package config

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Asset backends.
const (
	AssetBackendHTTP = "http"
	AssetBackendS3   = "s3"
)

// Config holds runtime settings for the sync client.
type Config struct {
	APIEndpoint  string
	Token        string
	DatabasePath string
	AssetDir     string

	EntrySyncInterval   time.Duration
	AssetSyncInterval   time.Duration
	OnlineCheckInterval time.Duration
	// CleanupSchedule is a cron spec, e.g. "@every 1h" or "0 0 3 * * *".
	CleanupSchedule string

	MaxConcurrentTransfers int
	RequestsPerSecond      float64
	RequestBurst           int
	HTTPTimeout            time.Duration
	MaxUploadBytes         int64

	AssetBackend   string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
	S3AccessKey    string
	S3SecretKey    string

	LogLevel string
	LogFile  string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIEndpoint = "http://127.0.0.1:8080"
	c.DatabasePath = "diary.db"
	c.AssetDir = "assets"
	c.EntrySyncInterval = 5 * time.Minute
	c.AssetSyncInterval = 2 * time.Minute
	c.OnlineCheckInterval = 30 * time.Second
	c.CleanupSchedule = "@every 1h"
	c.MaxConcurrentTransfers = 3
	c.RequestsPerSecond = 10
	c.RequestBurst = 5
	c.HTTPTimeout = 30 * time.Second
	c.MaxUploadBytes = 50 << 20
	c.AssetBackend = AssetBackendHTTP
	c.S3Region = "us-east-1"
	c.LogLevel = "info"
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	s3 := c.AssetBackend == AssetBackendS3
	return validation.ValidateStruct(c,
		validation.Field(&c.APIEndpoint, validation.Required, is.URL),
		validation.Field(&c.DatabasePath, validation.Required),
		validation.Field(&c.AssetDir, validation.Required),
		validation.Field(&c.EntrySyncInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.AssetSyncInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.OnlineCheckInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.CleanupSchedule, validation.Required),
		validation.Field(&c.MaxConcurrentTransfers, validation.Required, validation.Min(1), validation.Max(3)),
		validation.Field(&c.RequestsPerSecond, validation.Required, validation.Min(0.1)),
		validation.Field(&c.RequestBurst, validation.Required, validation.Min(1)),
		validation.Field(&c.HTTPTimeout, validation.Required),
		validation.Field(&c.MaxUploadBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.AssetBackend, validation.Required, validation.In(AssetBackendHTTP, AssetBackendS3)),
		validation.Field(&c.S3Bucket, validation.When(s3, validation.Required)),
		validation.Field(&c.S3Region, validation.When(s3, validation.Required)),
		validation.Field(&c.LogLevel, validation.Required, validation.In("debug", "info", "warn", "error")),
	)
}

// Load builds a Config from defaults, the optional config file named in
// args, the environment and finally the flags in args, then validates it.
func Load(args []string, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseFile(cfg, args); err != nil {
		return nil, err
	}
	applyEnv(cfg, getenv)
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadConfig is Load over the process arguments and environment. It panics
// on error.
func LoadConfig() *Config {
	cfg, err := Load(os.Args[1:], os.Getenv)
	if err != nil {
		panic(err)
	}
	return cfg
}
