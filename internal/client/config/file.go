package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/diarysync/internal/flagx"
	"github.com/dmitrijs2005/diarysync/internal/timex"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk DTO. Pointer fields distinguish "absent" from
// zero so a partial file only overrides what it names.
type fileConfig struct {
	APIEndpoint            *string         `json:"api_endpoint" yaml:"api_endpoint"`
	Token                  *string         `json:"token" yaml:"token"`
	DatabasePath           *string         `json:"database_path" yaml:"database_path"`
	AssetDir               *string         `json:"asset_dir" yaml:"asset_dir"`
	EntrySyncInterval      *timex.Duration `json:"entry_sync_interval" yaml:"entry_sync_interval"`
	AssetSyncInterval      *timex.Duration `json:"asset_sync_interval" yaml:"asset_sync_interval"`
	OnlineCheckInterval    *timex.Duration `json:"online_check_interval" yaml:"online_check_interval"`
	CleanupSchedule        *string         `json:"cleanup_schedule" yaml:"cleanup_schedule"`
	MaxConcurrentTransfers *int            `json:"max_concurrent_transfers" yaml:"max_concurrent_transfers"`
	RequestsPerSecond      *float64        `json:"requests_per_second" yaml:"requests_per_second"`
	RequestBurst           *int            `json:"request_burst" yaml:"request_burst"`
	HTTPTimeout            *timex.Duration `json:"http_timeout" yaml:"http_timeout"`
	MaxUploadBytes         *int64          `json:"max_upload_bytes" yaml:"max_upload_bytes"`
	AssetBackend           *string         `json:"asset_backend" yaml:"asset_backend"`
	S3Bucket               *string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region               *string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint         *string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	S3AccessKey            *string         `json:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey            *string         `json:"s3_secret_key" yaml:"s3_secret_key"`
	LogLevel               *string         `json:"log_level" yaml:"log_level"`
	LogFile                *string         `json:"log_file" yaml:"log_file"`
}

// parseFile overlays cfg with the file selected by -c/-config, if any.
func parseFile(cfg *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	expanded := []byte(os.ExpandEnv(string(data)))

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(expanded, &fc)
	default:
		err = json.Unmarshal(expanded, &fc)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}

func (fc *fileConfig) apply(cfg *Config) {
	setString(&cfg.APIEndpoint, fc.APIEndpoint)
	setString(&cfg.Token, fc.Token)
	setString(&cfg.DatabasePath, fc.DatabasePath)
	setString(&cfg.AssetDir, fc.AssetDir)
	setDuration(&cfg.EntrySyncInterval, fc.EntrySyncInterval)
	setDuration(&cfg.AssetSyncInterval, fc.AssetSyncInterval)
	setDuration(&cfg.OnlineCheckInterval, fc.OnlineCheckInterval)
	setString(&cfg.CleanupSchedule, fc.CleanupSchedule)
	if fc.MaxConcurrentTransfers != nil {
		cfg.MaxConcurrentTransfers = *fc.MaxConcurrentTransfers
	}
	if fc.RequestsPerSecond != nil {
		cfg.RequestsPerSecond = *fc.RequestsPerSecond
	}
	if fc.RequestBurst != nil {
		cfg.RequestBurst = *fc.RequestBurst
	}
	setDuration(&cfg.HTTPTimeout, fc.HTTPTimeout)
	if fc.MaxUploadBytes != nil {
		cfg.MaxUploadBytes = *fc.MaxUploadBytes
	}
	setString(&cfg.AssetBackend, fc.AssetBackend)
	setString(&cfg.S3Bucket, fc.S3Bucket)
	setString(&cfg.S3Region, fc.S3Region)
	setString(&cfg.S3BaseEndpoint, fc.S3BaseEndpoint)
	setString(&cfg.S3AccessKey, fc.S3AccessKey)
	setString(&cfg.S3SecretKey, fc.S3SecretKey)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFile, fc.LogFile)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
