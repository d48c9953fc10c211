package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/diarysync/internal/client/assets"
	"github.com/dmitrijs2005/diarysync/internal/client/conflict"
	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/dmitrijs2005/diarysync/internal/client/session"
	"github.com/dmitrijs2005/diarysync/internal/client/status"
	"github.com/dmitrijs2005/diarysync/internal/client/storage"
	"github.com/dmitrijs2005/diarysync/internal/clock"
	"github.com/dmitrijs2005/diarysync/internal/logging"
)

// DefaultPageSize is the change log page size requested per pull.
const DefaultPageSize = 100

// ErrSyncInProgress is returned when a pass is already running.
var ErrSyncInProgress = errors.New("sync already in progress")

// ChangeSource reads the remote change log.
type ChangeSource interface {
	GetChanges(ctx context.Context, since int64, limit int) (*models.ChangePage, error)
}

// DownloadQueue processes queued asset downloads.
type DownloadQueue interface {
	ProcessPending(ctx context.Context, maxConcurrent int) (int, error)
}

// OutboxPusher sends queued local edits to the server.
type OutboxPusher interface {
	PushPending(ctx context.Context) (int, error)
}

// SyncDeps wires a SyncCoordinator.
type SyncDeps struct {
	Store     *storage.Store
	Changes   ChangeSource
	Session   session.Provider
	Resolver  *conflict.Resolver
	Tracker   *assets.Tracker
	Downloads DownloadQueue
	Outbox    OutboxPusher
	Status    *status.Publisher
	Clock     clock.Clock
	Logger    logging.Logger

	// ClientID identifies this install in change metadata. Changes tagged
	// with it are echoes of our own pushes.
	ClientID string

	// PageSize defaults to DefaultPageSize.
	PageSize int
	// MaxConcurrent bounds downloads kicked after a pass.
	MaxConcurrent int
}

// SyncCoordinator runs incremental sync passes: pull the change log from
// the watermark, apply it in id order, then hand off to asset downloads
// and the outbox.
type SyncCoordinator struct {
	store     *storage.Store
	changes   ChangeSource
	session   session.Provider
	resolver  *conflict.Resolver
	tracker   *assets.Tracker
	downloads DownloadQueue
	outbox    OutboxPusher
	status    *status.Publisher
	clock     clock.Clock
	log       logging.Logger
	clientID  string

	pageSize      int
	maxConcurrent int

	running atomic.Bool
}

func NewSyncCoordinator(d SyncDeps) *SyncCoordinator {
	if d.PageSize <= 0 {
		d.PageSize = DefaultPageSize
	}
	if d.MaxConcurrent <= 0 {
		d.MaxConcurrent = assets.DefaultMaxConcurrent
	}
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.Status == nil {
		d.Status = status.NewPublisher()
	}
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	return &SyncCoordinator{
		store:         d.Store,
		changes:       d.Changes,
		session:       d.Session,
		resolver:      d.Resolver,
		tracker:       d.Tracker,
		downloads:     d.Downloads,
		outbox:        d.Outbox,
		status:        d.Status,
		clock:         d.Clock,
		log:           d.Logger.With("component", "sync"),
		clientID:      d.ClientID,
		pageSize:      d.PageSize,
		maxConcurrent: d.MaxConcurrent,
	}
}

// Status returns the publisher the coordinator reports to.
func (c *SyncCoordinator) Status() *status.Publisher {
	return c.status
}

// PerformIncrementalSync runs one pass. A pull failure aborts the pass
// with the watermark at the last fully applied page.
func (c *SyncCoordinator) PerformIncrementalSync(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer c.running.Store(false)

	ctx = logging.WithFields(ctx, "pass", uuid.NewString()[:8])

	c.status.Update(func(s *models.SyncStatus) {
		s.Phase = models.PhaseSyncing
		s.LastError = ""
	})

	err := c.pass(ctx)
	c.publishResult(ctx, err)
	return err
}

func (c *SyncCoordinator) pass(ctx context.Context) error {
	userID, err := c.session.UserID(ctx)
	if err != nil {
		return err
	}

	st, err := c.store.SyncState.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := c.store.SyncState.SetInProgress(ctx, userID, true); err != nil {
		return err
	}
	defer func() {
		if err := c.store.SyncState.SetInProgress(context.WithoutCancel(ctx), userID, false); err != nil {
			c.log.Error(ctx, "failed to clear sync flag", "error", err)
		}
	}()

	watermark := st.LastAppliedChangeID
	applied := 0
	for {
		page, err := c.changes.GetChanges(ctx, watermark, c.pageSize)
		if err != nil {
			return fmt.Errorf("pull after %d: %w", watermark, err)
		}

		changes := slices.Clone(page.Changes)
		slices.SortFunc(changes, func(a, b models.SyncChange) int {
			switch {
			case a.ID < b.ID:
				return -1
			case a.ID > b.ID:
				return 1
			}
			return 0
		})

		pageMax := watermark
		for i := range changes {
			ch := &changes[i]
			if ch.ID <= pageMax {
				continue
			}
			if ch.UserID == "" {
				ch.UserID = userID
			}
			if ch.UserID != userID {
				c.log.Warn(ctx, "skipping change for another user", "change_id", ch.ID)
			} else if err := c.apply(ctx, ch); err != nil {
				return fmt.Errorf("applying change %d: %w", ch.ID, err)
			}
			pageMax = ch.ID
			applied++
		}

		progressed := pageMax > watermark
		if progressed {
			if err := c.store.SyncState.Advance(ctx, userID, pageMax, c.clock.Now()); err != nil {
				return err
			}
			watermark = pageMax
		}

		if !page.HasMore {
			break
		}
		if !progressed {
			c.log.Warn(ctx, "server reported more changes but sent none past the watermark", "since", watermark)
			break
		}
	}

	if applied > 0 {
		c.log.Info(ctx, "change log applied", "applied", applied, "watermark", watermark)
	}
	if err := c.store.SyncState.Advance(ctx, userID, watermark, c.clock.Now()); err != nil {
		return err
	}

	if c.downloads != nil {
		if _, err := c.downloads.ProcessPending(ctx, c.maxConcurrent); err != nil {
			c.log.Warn(ctx, "asset downloads after sync failed", "error", err)
		}
	}

	if c.outbox != nil {
		if _, err := c.outbox.PushPending(ctx); err != nil {
			return fmt.Errorf("push: %w", err)
		}
	}
	return nil
}

// apply materializes one remote change. Entry and conflict rows are written
// in one transaction; asset tracking follows the commit.
func (c *SyncCoordinator) apply(ctx context.Context, ch *models.SyncChange) error {
	if ch.Operation == models.OperationDeleted {
		return c.applyDelete(ctx, ch)
	}

	incoming, err := ch.ToEntry()
	if err != nil {
		return err
	}

	var before, after *models.DiaryEntry
	origin := assets.OriginRemote
	err = c.store.WithTx(ctx, func(ctx context.Context, tx *storage.Repositories) error {
		local, err := tx.Entries.Get(ctx, ch.Key())
		if err != nil {
			return err
		}
		if local != nil && local.LastAppliedChangeID != nil && *local.LastAppliedChangeID >= ch.ID {
			// Already materialized. Tracking may not have followed the
			// commit, so track the stored body again; tracking is
			// insert-once.
			after = local
			if local.NeedsSync {
				origin = assets.OriginLocal
			}
			return nil
		}

		if local != nil && local.NeedsSync && ch.FromClient(c.clientID) {
			// Echo of our own earlier push; the local edit is newer.
			return stampApplied(ctx, tx, local, ch.ID)
		}

		if local == nil || !local.NeedsSync {
			if local != nil {
				incoming.LocalVersion = local.LocalVersion
			}
			if err := tx.Entries.Upsert(ctx, incoming); err != nil {
				return err
			}
			before, after = local, incoming
			return nil
		}

		res := c.resolver.Resolve(local, ch)
		rec := &models.ConflictRecord{Key: ch.Key(), ChangeID: ch.ID, Winner: res.Decision, Message: res.Message}

		if res.Decision == models.KeepRemote {
			rec.Patch = conflict.Patch(res.Winner.Body, local.Body)
			if err := tx.Entries.Upsert(ctx, res.Winner); err != nil {
				return err
			}
			before, after = local, res.Winner
		} else {
			rec.Patch = conflict.Patch(local.Body, incoming.Body)
			if err := stampApplied(ctx, tx, local, ch.ID); err != nil {
				return err
			}
		}

		c.log.Info(ctx, "conflict resolved", "entry", ch.Key().String(), "change_id", ch.ID,
			"decision", res.Decision, "reason", res.Message, "error", res.Err)
		return tx.Conflicts.Record(ctx, rec)
	})
	if err != nil || after == nil {
		return err
	}

	if before == nil {
		err = c.tracker.EntryCreated(ctx, ch.Key(), after.Body, origin)
	} else {
		err = c.tracker.EntryUpdated(ctx, ch.Key(), before.Body, after.Body, origin)
	}
	if err != nil {
		c.log.Error(ctx, "asset tracking failed", "entry", ch.Key().String(), "error", err)
	}
	return nil
}

func (c *SyncCoordinator) applyDelete(ctx context.Context, ch *models.SyncChange) error {
	var removed *models.DiaryEntry
	err := c.store.WithTx(ctx, func(ctx context.Context, tx *storage.Repositories) error {
		local, err := tx.Entries.Get(ctx, ch.Key())
		if err != nil || local == nil {
			return err
		}

		if local.NeedsSync {
			if local.LastAppliedChangeID != nil && *local.LastAppliedChangeID >= ch.ID {
				return nil
			}
			if ch.FromClient(c.clientID) {
				return stampApplied(ctx, tx, local, ch.ID)
			}
			res := c.resolver.Resolve(local, ch)
			if err := stampApplied(ctx, tx, local, ch.ID); err != nil {
				return err
			}
			c.log.Info(ctx, "remote delete kept back", "entry", ch.Key().String(), "change_id", ch.ID, "error", res.Err)
			return tx.Conflicts.Record(ctx, &models.ConflictRecord{
				Key: ch.Key(), ChangeID: ch.ID, Winner: res.Decision, Message: res.Message,
			})
		}

		if _, err := tx.Entries.Delete(ctx, ch.Key()); err != nil {
			return err
		}
		removed = local
		return nil
	})
	if err != nil || removed == nil {
		return err
	}

	if err := c.tracker.EntryDeleted(ctx, ch.Key(), removed.Body); err != nil {
		c.log.Error(ctx, "asset cleanup failed", "entry", ch.Key().String(), "error", err)
	}
	return nil
}

func (c *SyncCoordinator) publishResult(ctx context.Context, passErr error) {
	snap := models.SyncStatus{Phase: models.PhaseIdle, LastSyncAt: c.status.Current().LastSyncAt}

	if userID, err := c.session.UserID(ctx); err == nil {
		if st, err := c.store.SyncState.Get(context.WithoutCancel(ctx), userID); err == nil {
			snap.Watermark = st.LastAppliedChangeID
			snap.LastSyncAt = st.LastSyncAt
		}
	}
	snap.PendingAssets, snap.FailedAssets = assetCounts(context.WithoutCancel(ctx), c.store)

	if passErr != nil {
		snap.Phase = models.PhaseError
		snap.LastError = passErr.Error()
		c.log.Warn(ctx, "sync pass failed", "error", passErr)
	}
	c.status.Publish(snap)
}

func assetCounts(ctx context.Context, store *storage.Store) (pending, failed int) {
	if d, err := store.Downloads.CountByStatus(ctx); err == nil {
		pending += d[models.QueuePending] + d[models.QueueDownloading]
	}
	if u, err := store.Uploads.CountByStatus(ctx); err == nil {
		pending += u[models.QueuePending] + u[models.QueueUploading]
		failed += u[models.QueueFailed]
	}
	if a, err := store.Assets.CountByStatus(ctx); err == nil {
		failed += a[models.AssetFailed]
	}
	return pending, failed
}

// stampApplied records that change id has been seen for a local entry that
// keeps its own content and stays dirty.
func stampApplied(ctx context.Context, tx *storage.Repositories, local *models.DiaryEntry, id int64) error {
	kept := *local
	kept.LastAppliedChangeID = &id
	return tx.Entries.Upsert(ctx, &kept)
}
