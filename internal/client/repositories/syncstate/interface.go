// Package syncstate persists the per-user sync watermark.
package syncstate

import (
	"context"
	"time"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
)

type Repository interface {
	// Get returns the state of a user, creating a zero row on first use.
	Get(ctx context.Context, userID string) (*models.SyncState, error)

	// Advance moves the watermark to changeID unless it is already further
	// and stamps the sync time. The stored watermark never decreases.
	Advance(ctx context.Context, userID string, changeID int64, at time.Time) error

	// SetInProgress stores the in-progress flag.
	SetInProgress(ctx context.Context, userID string, inProgress bool) error

	// ResetInProgress clears flags left behind by a crashed process.
	ResetInProgress(ctx context.Context) (int64, error)
}
