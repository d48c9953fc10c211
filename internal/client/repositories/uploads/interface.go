// Package uploads persists the pending asset upload queue. Unlike
// downloads, a successful upload keeps its row in completed state with the
// server-assigned filename until the cleanup sweep removes it.
package uploads

import (
	"context"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
)

type Repository interface {
	// Enqueue adds a row for filename unless one already exists.
	Enqueue(ctx context.Context, localPath, filename string, owner models.EntryKey) (bool, error)

	Get(ctx context.Context, id string) (*models.PendingAssetUpload, error)
	ListPending(ctx context.Context, limit int) ([]*models.PendingAssetUpload, error)
	ListFailed(ctx context.Context, maxRetries int) ([]*models.PendingAssetUpload, error)

	// Claim moves the row from status from to uploading.
	Claim(ctx context.Context, id string, from models.QueueStatus) (bool, error)

	MarkCompleted(ctx context.Context, id, backendFilename string) error

	// MarkFailed records a failed attempt and returns the new retry count.
	MarkFailed(ctx context.Context, id, lastError string) (int, error)

	Delete(ctx context.Context, id string) error
	DeleteByFilename(ctx context.Context, filename string) (int64, error)
	DeleteByOwner(ctx context.Context, key models.EntryKey) (int64, error)
	DeleteExhausted(ctx context.Context, maxRetries int) (int64, error)
	DeleteCompleted(ctx context.Context) (int64, error)
	ResetInFlight(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[models.QueueStatus]int, error)
}
