// Package downloads persists the pending asset download queue.
//
// Row states move pending -> downloading on claim, then either the row is
// deleted (success) or it becomes failed with an incremented retry count.
// Claims are conditional updates, so two workers never own the same row.
package downloads

import (
	"context"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
)

type Repository interface {
	// Enqueue adds a row for filename unless one already exists.
	Enqueue(ctx context.Context, filename string, owner models.EntryKey) (bool, error)

	Get(ctx context.Context, id string) (*models.PendingAssetDownload, error)

	// ListPending returns up to limit pending rows, oldest first.
	ListPending(ctx context.Context, limit int) ([]*models.PendingAssetDownload, error)

	// ListFailed returns failed rows with fewer than maxRetries attempts.
	ListFailed(ctx context.Context, maxRetries int) ([]*models.PendingAssetDownload, error)

	// Claim moves the row from status from to downloading. It reports false
	// when the row is gone or in another state.
	Claim(ctx context.Context, id string, from models.QueueStatus) (bool, error)

	// MarkFailed records a failed attempt and returns the new retry count.
	MarkFailed(ctx context.Context, id, lastError string) (int, error)

	Delete(ctx context.Context, id string) error
	DeleteByFilename(ctx context.Context, filename string) (int64, error)
	DeleteByOwner(ctx context.Context, key models.EntryKey) (int64, error)
	DeleteExhausted(ctx context.Context, maxRetries int) (int64, error)
	DeleteCompleted(ctx context.Context) (int64, error)

	// ResetInFlight returns rows stuck in downloading to pending.
	ResetInFlight(ctx context.Context) (int64, error)

	CountByStatus(ctx context.Context) (map[models.QueueStatus]int, error)
}
