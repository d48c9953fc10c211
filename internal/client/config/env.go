package config

// Environment variable names.
const (
	EnvAPIURL      = "DIARYSYNC_API_URL"
	EnvToken       = "DIARYSYNC_TOKEN"
	EnvDatabase    = "DIARYSYNC_DB"
	EnvAssetDir    = "DIARYSYNC_ASSET_DIR"
	EnvLogLevel    = "DIARYSYNC_LOG_LEVEL"
	EnvS3Bucket    = "DIARYSYNC_S3_BUCKET"
	EnvS3Region    = "DIARYSYNC_S3_REGION"
	EnvS3Endpoint  = "DIARYSYNC_S3_ENDPOINT"
	EnvS3AccessKey = "DIARYSYNC_S3_ACCESS_KEY"
	EnvS3SecretKey = "DIARYSYNC_S3_SECRET_KEY"
)

func applyEnv(cfg *Config, getenv func(string) string) {
	for name, dst := range map[string]*string{
		EnvAPIURL:      &cfg.APIEndpoint,
		EnvToken:       &cfg.Token,
		EnvDatabase:    &cfg.DatabasePath,
		EnvAssetDir:    &cfg.AssetDir,
		EnvLogLevel:    &cfg.LogLevel,
		EnvS3Bucket:    &cfg.S3Bucket,
		EnvS3Region:    &cfg.S3Region,
		EnvS3Endpoint:  &cfg.S3BaseEndpoint,
		EnvS3AccessKey: &cfg.S3AccessKey,
		EnvS3SecretKey: &cfg.S3SecretKey,
	} {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
}
