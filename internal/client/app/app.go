// Package app wires the sync client together: storage, session, transport,
// the asset pipeline, the sync coordinator and the scheduler.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/diarysync/internal/client/assets"
	"github.com/dmitrijs2005/diarysync/internal/client/client"
	"github.com/dmitrijs2005/diarysync/internal/client/config"
	"github.com/dmitrijs2005/diarysync/internal/client/conflict"
	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/dmitrijs2005/diarysync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/diarysync/internal/client/scheduler"
	"github.com/dmitrijs2005/diarysync/internal/client/services"
	"github.com/dmitrijs2005/diarysync/internal/client/session"
	"github.com/dmitrijs2005/diarysync/internal/client/storage"
	"github.com/dmitrijs2005/diarysync/internal/clock"
	"github.com/dmitrijs2005/diarysync/internal/logging"
)

// assetTransport moves asset bytes to and from the backend.
type assetTransport interface {
	assets.Downloader
	assets.Uploader
}

type App struct {
	config    *config.Config
	log       logging.Logger
	store     *storage.Store
	api       *client.HTTPClient
	entries   services.EntryService
	sync      *services.SyncCoordinator
	assetPass *assets.Pass
	cleanup   *assets.CleanupService
	scheduler *scheduler.Scheduler
}

// NewApp opens the local database, recovers state left by an interrupted
// run and builds every component.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	store, err := storage.Open(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	a, err := build(ctx, c, store, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, c *config.Config, store *storage.Store, log logging.Logger) (*App, error) {
	if err := store.Recover(ctx); err != nil {
		return nil, fmt.Errorf("recovering interrupted state: %w", err)
	}

	clientID, err := store.Metadata.Ensure(ctx, metadata.KeyClientID, uuid.NewString)
	if err != nil {
		return nil, fmt.Errorf("loading client id: %w", err)
	}

	sess, err := session.NewTokenSession(c.Token)
	if err != nil {
		return nil, err
	}

	api, err := client.NewHTTPClient(c.APIEndpoint, sess,
		client.WithClientID(clientID),
		client.WithRateLimit(c.RequestsPerSecond, c.RequestBurst),
		client.WithTimeout(c.HTTPTimeout),
		client.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	var transport assetTransport = api
	if c.AssetBackend == config.AssetBackendS3 {
		transport, err = client.NewS3AssetTransport(ctx, client.S3Options{
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
	}

	files, err := assets.NewLocalStore(c.AssetDir)
	if err != nil {
		return nil, err
	}

	clk := clock.New()
	tracker := assets.NewTracker(store.Repositories, files, log)
	entries := services.NewEntryService(store, api, sess, tracker, files, clk, log)

	downloads := assets.NewDownloadManager(store.Assets, store.Downloads, transport, files, log)
	uploads := assets.NewUploadManager(store.Uploads, transport, c.MaxUploadBytes, entries.ReconcileUpload, log)
	retry := assets.NewRetryCoordinator(downloads, uploads, log)
	pass := assets.NewPass(downloads, uploads, retry, c.MaxConcurrentTransfers)
	cleanup := assets.NewCleanupService(store.Repositories, tracker, log)

	coordinator := services.NewSyncCoordinator(services.SyncDeps{
		Store:         store,
		Changes:       api,
		Session:       sess,
		Resolver:      conflict.NewResolver(clk),
		Tracker:       tracker,
		Downloads:     downloads,
		Outbox:        entries,
		Clock:         clk,
		Logger:        log,
		ClientID:      clientID,
		MaxConcurrent: c.MaxConcurrentTransfers,
	})

	sched := scheduler.New(coordinator, pass, cleanup, api, scheduler.Options{
		EntryInterval:       c.EntrySyncInterval,
		AssetInterval:       c.AssetSyncInterval,
		OnlineCheckInterval: c.OnlineCheckInterval,
		CleanupSchedule:     c.CleanupSchedule,
	}, log)

	return &App{
		config:    c,
		log:       log,
		store:     store,
		api:       api,
		entries:   entries,
		sync:      coordinator,
		assetPass: pass,
		cleanup:   cleanup,
		scheduler: sched,
	}, nil
}

// Entries exposes the local editing API.
func (a *App) Entries() services.EntryService {
	return a.entries
}

// Status returns the current sync status snapshot.
func (a *App) Status() models.SyncStatus {
	return a.sync.Status().Current()
}

// Run starts the background jobs and blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}

	updates := a.sync.Status().Subscribe()
	defer a.sync.Status().Unsubscribe(updates)

	for {
		select {
		case s, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			a.log.Debug(ctx, "sync status",
				"phase", s.Phase, "watermark", s.Watermark,
				"pending_assets", s.PendingAssets, "failed_assets", s.FailedAssets)
		case <-ctx.Done():
			a.scheduler.Stop()
			return nil
		}
	}
}

// RunOnce performs one entry pass, one asset pass and one cleanup, in that
// order. The asset pass and cleanup run even if the entry pass failed.
func (a *App) RunOnce(ctx context.Context) error {
	var errs []error

	if err := a.sync.PerformIncrementalSync(ctx); err != nil {
		errs = append(errs, fmt.Errorf("entry sync: %w", err))
	}
	if _, err := a.assetPass.Run(ctx); err != nil {
		errs = append(errs, fmt.Errorf("asset sync: %w", err))
	}
	if _, err := a.cleanup.Run(ctx); err != nil {
		errs = append(errs, fmt.Errorf("cleanup: %w", err))
	}
	return errors.Join(errs...)
}

// Close stops the scheduler and releases the database.
func (a *App) Close() error {
	a.scheduler.Stop()
	a.sync.Status().Close()
	return a.store.Close()
}
