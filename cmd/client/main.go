package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/dmitrijs2005/diarysync/internal/client/app"
	"github.com/dmitrijs2005/diarysync/internal/client/config"
	"github.com/dmitrijs2005/diarysync/internal/flagx"
	"github.com/dmitrijs2005/diarysync/internal/logging"
)

func main() {

	cfg := config.LoadConfig()

	logger, closer, err := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  10,
		MaxBackups: 3,
	})
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if flagx.Bool(os.Args[1:], "once") {
		err := a.RunOnce(ctx)
		s := a.Status()
		fmt.Printf("phase=%s watermark=%d pending_assets=%d failed_assets=%d\n",
			s.Phase, s.Watermark, s.PendingAssets, s.FailedAssets)
		if err != nil {
			logger.Error(ctx, "sync failed", "error", err)
			a.Close()
			os.Exit(1)
		}
		return
	}

	if err := a.Run(ctx); err != nil {
		logger.Error(ctx, "client stopped", "error", err)
	}
}
