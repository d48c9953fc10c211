package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/diarysync/internal/client/assets"
	"github.com/dmitrijs2005/diarysync/internal/client/client"
	"github.com/dmitrijs2005/diarysync/internal/client/conflict"
	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/dmitrijs2005/diarysync/internal/client/session"
	"github.com/dmitrijs2005/diarysync/internal/client/storage"
	"github.com/dmitrijs2005/diarysync/internal/clock"
	"github.com/dmitrijs2005/diarysync/internal/logging"
)

var (
	// ErrEntryNotFound is returned for operations on a missing entry.
	ErrEntryNotFound = errors.New("entry not found")

	ErrConflictNotFound = errors.New("conflict not found")

	// ErrRestoreDiverged means the entry changed too much since the
	// conflict for its patch to apply cleanly.
	ErrRestoreDiverged = errors.New("entry diverged from conflict winner")
)

// EntryAPI is the remote side of entry edits.
type EntryAPI interface {
	PutEntry(ctx context.Context, e models.EntrySnapshot) (*models.StoredEntry, error)
	DeleteEntry(ctx context.Context, date string) error
}

// EntryService records local edits and pushes them to the server.
//
// Edits land in the local store immediately, flagged NeedsSync, with an
// outbox row per entry. PushPending drains the outbox; a push never loses
// an edit made while it was in flight.
type EntryService interface {
	Save(ctx context.Context, date, title, body string, tags []string) (*models.DiaryEntry, error)
	Delete(ctx context.Context, date string) error
	Get(ctx context.Context, date string) (*models.DiaryEntry, error)
	List(ctx context.Context) ([]*models.DiaryEntry, error)

	// PushPending sends outbox rows oldest first and returns how many were
	// completed. Only ErrUnauthorized and local storage errors are
	// returned; other failures are recorded on the row. A row the server
	// keeps rejecting with a non-transient error is dropped after
	// models.MaxRetries attempts; the entry stays NeedsSync.
	PushPending(ctx context.Context) (int, error)

	// Conflicts lists the resolved conflicts of an entry, oldest first.
	Conflicts(ctx context.Context, date string) ([]*models.ConflictRecord, error)

	// RestoreConflict brings back the losing side of a conflict as a new
	// local edit.
	RestoreConflict(ctx context.Context, date, conflictID string) (*models.DiaryEntry, error)

	// ReconcileUpload switches the owning entry from the local filename
	// to the one the backend assigned.
	ReconcileUpload(ctx context.Context, row *models.PendingAssetUpload) error
}

type entryService struct {
	store   *storage.Store
	remote  EntryAPI
	session session.Provider
	tracker *assets.Tracker
	files   *assets.LocalStore
	clock   clock.Clock
	log     logging.Logger
}

func NewEntryService(store *storage.Store, remote EntryAPI, sess session.Provider, tracker *assets.Tracker,
	files *assets.LocalStore, clk clock.Clock, log logging.Logger) EntryService {
	return &entryService{
		store:   store,
		remote:  remote,
		session: sess,
		tracker: tracker,
		files:   files,
		clock:   clk,
		log:     log.With("component", "entries"),
	}
}

func (s *entryService) key(ctx context.Context, date string) (models.EntryKey, error) {
	userID, err := s.session.UserID(ctx)
	if err != nil {
		return models.EntryKey{}, err
	}
	if err := models.ValidateDate(date); err != nil {
		return models.EntryKey{}, err
	}
	return models.EntryKey{UserID: userID, Date: date}, nil
}

func (s *entryService) Save(ctx context.Context, date, title, body string, tags []string) (*models.DiaryEntry, error) {
	key, err := s.key(ctx, date)
	if err != nil {
		return nil, err
	}

	var old, saved *models.DiaryEntry
	err = s.store.WithTx(ctx, func(ctx context.Context, tx *storage.Repositories) error {
		old, err = tx.Entries.Get(ctx, key)
		if err != nil {
			return err
		}

		saved = &models.DiaryEntry{
			UserID:       key.UserID,
			Date:         key.Date,
			Title:        title,
			Body:         body,
			Tags:         models.NormalizeTags(tags),
			IsLocalOnly:  true,
			NeedsSync:    true,
			LocalVersion: 1,
			UpdatedAt:    s.clock.Now().UTC(),
		}
		if old != nil {
			saved.IsLocalOnly = old.IsLocalOnly
			saved.LastAppliedChangeID = old.LastAppliedChangeID
			saved.LocalVersion = old.LocalVersion + 1
		}

		if err := tx.Entries.Upsert(ctx, saved); err != nil {
			return err
		}
		return tx.PendingChanges.Enqueue(ctx, key, models.PendingUpsert)
	})
	if err != nil {
		return nil, fmt.Errorf("saving entry %s: %w", date, err)
	}

	if old == nil {
		err = s.tracker.EntryCreated(ctx, key, body, assets.OriginLocal)
	} else {
		err = s.tracker.EntryUpdated(ctx, key, old.Body, body, assets.OriginLocal)
	}
	if err != nil {
		s.log.Warn(ctx, "asset tracking after save failed", "entry", key.String(), "error", err)
	}
	return saved, nil
}

func (s *entryService) Delete(ctx context.Context, date string) error {
	key, err := s.key(ctx, date)
	if err != nil {
		return err
	}

	var old *models.DiaryEntry
	err = s.store.WithTx(ctx, func(ctx context.Context, tx *storage.Repositories) error {
		old, err = tx.Entries.Get(ctx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return ErrEntryNotFound
		}
		if _, err := tx.Entries.Delete(ctx, key); err != nil {
			return err
		}
		return tx.PendingChanges.Enqueue(ctx, key, models.PendingDelete)
	})
	if err != nil {
		return fmt.Errorf("deleting entry %s: %w", date, err)
	}

	if err := s.tracker.EntryDeleted(ctx, key, old.Body); err != nil {
		s.log.Warn(ctx, "asset cleanup after delete failed", "entry", key.String(), "error", err)
	}
	return nil
}

func (s *entryService) Get(ctx context.Context, date string) (*models.DiaryEntry, error) {
	key, err := s.key(ctx, date)
	if err != nil {
		return nil, err
	}
	e, err := s.store.Entries.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrEntryNotFound
	}
	return e, nil
}

func (s *entryService) List(ctx context.Context) ([]*models.DiaryEntry, error) {
	userID, err := s.session.UserID(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.Entries.List(ctx, userID)
}

func (s *entryService) PushPending(ctx context.Context) (int, error) {
	userID, err := s.session.UserID(ctx)
	if err != nil {
		return 0, err
	}

	rows, err := s.store.PendingChanges.List(ctx, userID)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		err := s.push(ctx, row)
		if errors.Is(err, client.ErrUnauthorized) {
			return done, err
		}
		if err != nil {
			if !client.Retryable(err) && row.RetryCount+1 >= models.MaxRetries {
				s.log.Error(ctx, "push rejected, dropped from outbox", "entry", row.Key.String(),
					"op", row.Operation, "attempts", row.RetryCount+1, "error", err)
				if _, err := s.store.PendingChanges.Complete(ctx, row.ID, row.Seq); err != nil {
					return done, err
				}
				continue
			}
			s.log.Warn(ctx, "push failed", "entry", row.Key.String(), "op", row.Operation, "error", err)
			if err := s.store.PendingChanges.MarkFailed(ctx, row.ID, err.Error()); err != nil {
				return done, err
			}
			continue
		}

		ok, err := s.store.PendingChanges.Complete(ctx, row.ID, row.Seq)
		if err != nil {
			return done, err
		}
		if ok {
			done++
		}
	}
	return done, nil
}

func (s *entryService) push(ctx context.Context, row *models.PendingChange) error {
	if row.Operation == models.PendingDelete {
		return s.remote.DeleteEntry(ctx, row.Key.Date)
	}

	e, err := s.store.Entries.Get(ctx, row.Key)
	if err != nil {
		return err
	}
	if e == nil || !e.NeedsSync {
		// superseded by a delete or overwritten by a remote change
		return nil
	}

	if _, err := s.remote.PutEntry(ctx, models.EntrySnapshot{
		Date:  e.Date,
		Title: e.Title,
		Body:  e.Body,
		Tags:  e.Tags,
	}); err != nil {
		return err
	}

	if _, err := s.store.Entries.MarkSynced(ctx, row.Key, e.LocalVersion); err != nil {
		return err
	}
	return nil
}

func (s *entryService) Conflicts(ctx context.Context, date string) ([]*models.ConflictRecord, error) {
	key, err := s.key(ctx, date)
	if err != nil {
		return nil, err
	}
	return s.store.Conflicts.ListByKey(ctx, key)
}

func (s *entryService) RestoreConflict(ctx context.Context, date, conflictID string) (*models.DiaryEntry, error) {
	recs, err := s.Conflicts(ctx, date)
	if err != nil {
		return nil, err
	}
	idx := slices.IndexFunc(recs, func(r *models.ConflictRecord) bool { return r.ID == conflictID })
	if idx < 0 || recs[idx].Patch == "" {
		return nil, ErrConflictNotFound
	}

	e, err := s.Get(ctx, date)
	if err != nil {
		return nil, err
	}

	body, clean, err := conflict.ApplyPatch(e.Body, recs[idx].Patch)
	if err != nil {
		return nil, err
	}
	if !clean {
		return nil, ErrRestoreDiverged
	}

	s.log.Info(ctx, "restoring conflict loser", "entry", e.Key().String(), "conflict", conflictID)
	return s.Save(ctx, date, e.Title, body, e.Tags)
}

func (s *entryService) ReconcileUpload(ctx context.Context, row *models.PendingAssetUpload) error {
	from, to := row.Filename, row.BackendFilename
	if to == "" || to == from {
		return nil
	}

	path, err := s.files.Rename(from, to)
	if err != nil {
		return err
	}

	return s.store.WithTx(ctx, func(ctx context.Context, tx *storage.Repositories) error {
		if err := tx.Assets.Rename(ctx, from, to); err != nil {
			return err
		}
		if _, err := tx.Assets.MarkCompleted(ctx, to, path); err != nil {
			return err
		}

		e, err := tx.Entries.Get(ctx, row.Owner)
		if err != nil || e == nil {
			return err
		}
		body := assets.RewriteReference(e.Body, from, to)
		if body == e.Body {
			return nil
		}

		e.Body = body
		e.NeedsSync = true
		e.LocalVersion++
		e.UpdatedAt = s.clock.Now().UTC()
		if err := tx.Entries.Upsert(ctx, e); err != nil {
			return err
		}
		return tx.PendingChanges.Enqueue(ctx, row.Owner, models.PendingUpsert)
	})
}
