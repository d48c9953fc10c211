package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/diarysync/internal/flagx"
)

// parseFlags populates Config fields from the flags it owns; other flags in
// args are filtered out with flagx.FilterArgs.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-s", "-e", "-m", "-p", "-l"})

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.APIEndpoint, "a", cfg.APIEndpoint, "base URL of the journal API")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path of the local database")
	fs.StringVar(&cfg.AssetDir, "s", cfg.AssetDir, "directory for downloaded assets")
	entry := fs.Int("e", int(cfg.EntrySyncInterval.Seconds()), "entry sync interval (in seconds)")
	asset := fs.Int("m", int(cfg.AssetSyncInterval.Seconds()), "asset sync interval (in seconds)")
	fs.IntVar(&cfg.MaxConcurrentTransfers, "p", cfg.MaxConcurrentTransfers, "max concurrent asset transfers")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "e":
			cfg.EntrySyncInterval = time.Duration(*entry) * time.Second
		case "m":
			cfg.AssetSyncInterval = time.Duration(*asset) * time.Second
		}
	})
	return nil
}
