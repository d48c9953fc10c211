// Package assets persists tracked asset records. Ownership is by entry key
// only; nothing here enforces that the owning entry exists or still
// references the file.
package assets

import (
	"context"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
)

type Repository interface {
	Get(ctx context.Context, filename string) (*models.Asset, error)

	// Track inserts a. It is a no-op reporting false when the filename is
	// already tracked.
	Track(ctx context.Context, a *models.Asset) (bool, error)

	SetStatus(ctx context.Context, filename string, status models.AssetStatus) error

	// MarkCompleted records a finished download. It reports false when the
	// asset is no longer tracked.
	MarkCompleted(ctx context.Context, filename, localPath string) (bool, error)

	Rename(ctx context.Context, from, to string) error

	Delete(ctx context.Context, filename string) (bool, error)
	DeleteByOwner(ctx context.Context, key models.EntryKey) (int64, error)

	List(ctx context.Context) ([]*models.Asset, error)
	ListByOwner(ctx context.Context, key models.EntryKey) ([]*models.Asset, error)

	CountByStatus(ctx context.Context) (map[models.AssetStatus]int, error)
}
