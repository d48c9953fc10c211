// Package scheduler runs the background jobs of the sync client: periodic
// entry and asset passes, a cron-driven cleanup and a connectivity
// watcher. Each job is guarded by its own running flag; a tick that finds
// its job still running is skipped.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron"

	"github.com/dmitrijs2005/diarysync/internal/client/assets"
	"github.com/dmitrijs2005/diarysync/internal/logging"
)

// EntrySyncer runs an incremental entry pass.
type EntrySyncer interface {
	PerformIncrementalSync(ctx context.Context) error
}

// AssetSyncer runs an asset transfer pass.
type AssetSyncer interface {
	Run(ctx context.Context) (assets.PassResult, error)
}

// Cleaner runs the asset cleanup sweeps.
type Cleaner interface {
	Run(ctx context.Context) (assets.CleanupReport, error)
}

// Options are the scheduler timings.
type Options struct {
	EntryInterval       time.Duration
	AssetInterval       time.Duration
	OnlineCheckInterval time.Duration
	// CleanupSchedule is a robfig/cron spec.
	CleanupSchedule string
	// ProbeTimeout bounds one connectivity probe.
	ProbeTimeout time.Duration
}

// DefaultOptions returns the standard timings.
func DefaultOptions() Options {
	return Options{
		EntryInterval:       5 * time.Minute,
		AssetInterval:       2 * time.Minute,
		OnlineCheckInterval: 30 * time.Second,
		CleanupSchedule:     "@every 1h",
		ProbeTimeout:        3 * time.Second,
	}
}

type Scheduler struct {
	entries EntrySyncer
	assets  AssetSyncer
	cleaner Cleaner
	probe   Pinger
	opts    Options
	log     logging.Logger

	entryRunning   atomic.Bool
	assetRunning   atomic.Bool
	cleanupRunning atomic.Bool
	online         atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	cron   *cron.Cron
	wg     sync.WaitGroup
}

func New(entries EntrySyncer, assetPass AssetSyncer, cleaner Cleaner, probe Pinger, opts Options, log logging.Logger) *Scheduler {
	def := DefaultOptions()
	if opts.EntryInterval <= 0 {
		opts.EntryInterval = def.EntryInterval
	}
	if opts.AssetInterval <= 0 {
		opts.AssetInterval = def.AssetInterval
	}
	if opts.OnlineCheckInterval <= 0 {
		opts.OnlineCheckInterval = def.OnlineCheckInterval
	}
	if opts.CleanupSchedule == "" {
		opts.CleanupSchedule = def.CleanupSchedule
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = def.ProbeTimeout
	}
	return &Scheduler{
		entries: entries,
		assets:  assetPass,
		cleaner: cleaner,
		probe:   probe,
		opts:    opts,
		log:     log.With("component", "scheduler"),
	}
}

// Start launches every job and returns. The first connectivity probe runs
// immediately; going online triggers the first passes.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("scheduler already started")
	}

	ctx, cancel := context.WithCancel(ctx)

	c := cron.New()
	if err := c.AddFunc(s.opts.CleanupSchedule, func() { s.scheduledCleanup(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("invalid cleanup schedule %q: %w", s.opts.CleanupSchedule, err)
	}
	c.Start()

	s.cancel = cancel
	s.cron = c

	s.goLoop(ctx, s.opts.OnlineCheckInterval, true, s.checkOnline)
	s.goLoop(ctx, s.opts.EntryInterval, false, func(ctx context.Context) {
		if s.Online() {
			s.RunEntrySync(ctx)
		}
	})
	s.goLoop(ctx, s.opts.AssetInterval, false, func(ctx context.Context) {
		if s.Online() {
			s.RunAssetSync(ctx)
		}
	})

	s.log.Info(ctx, "scheduler started",
		"entry_interval", s.opts.EntryInterval,
		"asset_interval", s.opts.AssetInterval,
		"cleanup", s.opts.CleanupSchedule)
	return nil
}

// Stop cancels all jobs and waits for running ones to return. In-flight
// transfers stop at their next network call.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, c := s.cancel, s.cron
	s.cancel, s.cron = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	c.Stop()
	s.wg.Wait()
}

func (s *Scheduler) goLoop(ctx context.Context, every time.Duration, immediate bool, fn func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if immediate {
			fn(ctx)
		}

		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fn(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RunEntrySync runs an entry pass unless one is running. It reports
// whether the pass ran.
func (s *Scheduler) RunEntrySync(ctx context.Context) bool {
	if !s.entryRunning.CompareAndSwap(false, true) {
		s.log.Debug(ctx, "entry sync still running, tick skipped")
		return false
	}
	defer s.entryRunning.Store(false)

	if err := s.entries.PerformIncrementalSync(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn(ctx, "entry sync failed", "error", err)
	}
	return true
}

// RunAssetSync runs an asset pass unless one is running.
func (s *Scheduler) RunAssetSync(ctx context.Context) bool {
	if !s.assetRunning.CompareAndSwap(false, true) {
		s.log.Debug(ctx, "asset sync still running, tick skipped")
		return false
	}
	defer s.assetRunning.Store(false)

	res, err := s.assets.Run(ctx)
	if err != nil && ctx.Err() == nil {
		s.log.Warn(ctx, "asset sync failed", "error", err)
		return true
	}
	if res.Downloaded+res.Uploaded+res.Retry.Downloads+res.Retry.Uploads > 0 {
		s.log.Info(ctx, "asset sync finished",
			"downloaded", res.Downloaded, "uploaded", res.Uploaded,
			"retried", res.Retry.Downloads+res.Retry.Uploads, "abandoned", res.Retry.Abandoned)
	}
	return true
}

// scheduledCleanup is the cron job. cron.Stop does not wait for running
// jobs, so the job joins wg unless Stop has already begun.
func (s *Scheduler) scheduledCleanup(ctx context.Context) {
	s.mu.Lock()
	if s.cancel == nil || ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.RunCleanup(ctx)
}

// RunCleanup runs the cleanup sweeps unless they are running.
func (s *Scheduler) RunCleanup(ctx context.Context) bool {
	if !s.cleanupRunning.CompareAndSwap(false, true) {
		return false
	}
	defer s.cleanupRunning.Store(false)

	if _, err := s.cleaner.Run(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn(ctx, "asset cleanup failed", "error", err)
	}
	return true
}
