package assets

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/dmitrijs2005/diarysync/internal/client/storage"
	"github.com/dmitrijs2005/diarysync/internal/logging"
)

// Origin says where a body change came from.
type Origin int

const (
	// OriginRemote is a change applied from the server change log.
	OriginRemote Origin = iota
	// OriginLocal is an edit made on this device.
	OriginLocal
)

func (o Origin) String() string {
	if o == OriginLocal {
		return "local"
	}
	return "remote"
}

// Tracker keeps the tracked asset set in line with entry bodies.
type Tracker struct {
	repos *storage.Repositories
	files *LocalStore
	log   logging.Logger
}

func NewTracker(repos *storage.Repositories, files *LocalStore, log logging.Logger) *Tracker {
	return &Tracker{repos: repos, files: files, log: log.With("component", "asset-tracker")}
}

// EntryCreated tracks every asset body references.
func (t *Tracker) EntryCreated(ctx context.Context, key models.EntryKey, body string, origin Origin) error {
	return t.trackAll(ctx, key, ExtractReferences(body), origin)
}

// EntryUpdated forgets assets dropped from the body and tracks new ones.
func (t *Tracker) EntryUpdated(ctx context.Context, key models.EntryKey, oldBody, newBody string, origin Origin) error {
	removed, added := diffReferences(ExtractReferences(oldBody), ExtractReferences(newBody))

	var errs []error
	for _, name := range removed {
		if err := t.forget(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	if err := t.trackAll(ctx, key, added, origin); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// EntryDeleted forgets everything body references and everything still
// owned by key.
func (t *Tracker) EntryDeleted(ctx context.Context, key models.EntryKey, body string) error {
	var errs []error
	for _, name := range ExtractReferences(body) {
		if err := t.forget(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	if err := t.PurgeOwner(ctx, key); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// PurgeOwner removes every asset, file and queue row owned by key.
func (t *Tracker) PurgeOwner(ctx context.Context, key models.EntryKey) error {
	owned, err := t.repos.Assets.ListByOwner(ctx, key)
	if err != nil {
		return err
	}
	for _, a := range owned {
		if err := t.files.Remove(a.Filename); err != nil {
			t.log.Warn(ctx, "failed to remove asset file", "filename", a.Filename, "error", err)
		}
	}

	if _, err := t.repos.Downloads.DeleteByOwner(ctx, key); err != nil {
		return err
	}
	if _, err := t.repos.Uploads.DeleteByOwner(ctx, key); err != nil {
		return err
	}
	if _, err := t.repos.Assets.DeleteByOwner(ctx, key); err != nil {
		return err
	}
	return nil
}

func (t *Tracker) trackAll(ctx context.Context, key models.EntryKey, names []string, origin Origin) error {
	var errs []error
	for _, name := range names {
		if err := t.track(ctx, key, name, origin); err != nil {
			errs = append(errs, fmt.Errorf("tracking %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Tracker) track(ctx context.Context, key models.EntryKey, name string, origin Origin) error {
	created, err := t.repos.Assets.Track(ctx, &models.Asset{
		Filename: name,
		Owner:    key,
		Status:   models.AssetPending,
	})
	if err != nil || !created {
		return err
	}

	if !t.files.Exists(name) {
		_, err := t.repos.Downloads.Enqueue(ctx, name, key)
		if err == nil {
			t.log.Debug(ctx, "queued asset download", "filename", name, "entry", key.String())
		}
		return err
	}

	path, err := t.files.Path(name)
	if err != nil {
		return err
	}
	if _, err := t.repos.Assets.MarkCompleted(ctx, name, path); err != nil {
		return err
	}
	if origin == OriginLocal {
		_, err = t.repos.Uploads.Enqueue(ctx, path, name, key)
		if err == nil {
			t.log.Debug(ctx, "queued asset upload", "filename", name, "entry", key.String())
		}
	}
	return err
}

func (t *Tracker) forget(ctx context.Context, name string) error {
	if err := t.files.Remove(name); err != nil {
		t.log.Warn(ctx, "failed to remove asset file", "filename", name, "error", err)
	}
	if _, err := t.repos.Downloads.DeleteByFilename(ctx, name); err != nil {
		return err
	}
	if _, err := t.repos.Uploads.DeleteByFilename(ctx, name); err != nil {
		return err
	}
	_, err := t.repos.Assets.Delete(ctx, name)
	return err
}
