// Package config loads runtime configuration for the diary sync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with -c or -config. Files ending in
//     .yaml or .yml are parsed as YAML, anything else as JSON. ${VAR}
//     references are expanded from the environment before parsing.
//  3. Environment variables DIARYSYNC_API_URL, DIARYSYNC_TOKEN,
//     DIARYSYNC_DB, DIARYSYNC_ASSET_DIR, DIARYSYNC_LOG_LEVEL and the
//     DIARYSYNC_S3_* group.
//  4. Command-line flags, which override everything else.
//
// Supported flags
//
//	-a string   base URL of the journal API
//	-d string   path of the local SQLite database
//	-s string   directory for downloaded assets
//	-e int      entry sync interval (seconds)
//	-m int      asset sync interval (seconds)
//	-p int      max concurrent asset transfers (1..3)
//	-l string   log level (debug, info, warn, error)
//
// # File schema
//
// Intervals use timex.Duration, so they may be strings like "5m" or integer
// nanoseconds:
//
//	{
//	  "api_endpoint": "https://journal.example.com",
//	  "database_path": "diary.db",
//	  "entry_sync_interval": "5m",
//	  "asset_sync_interval": "2m",
//	  "asset_backend": "s3",
//	  "s3_bucket": "diary-assets"
//	}
//
// The loaded Config is validated with ozzo-validation before use.
package config
