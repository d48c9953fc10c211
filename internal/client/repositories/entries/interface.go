package entries

import (
	"context"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
)

// Repository describes persistence operations for diary entries.
type Repository interface {
	// Get returns the entry for key, or nil when there is none.
	Get(ctx context.Context, key models.EntryKey) (*models.DiaryEntry, error)

	// Upsert inserts or fully replaces the entry with the same key.
	Upsert(ctx context.Context, e *models.DiaryEntry) error

	// Delete removes the entry and reports whether a row existed.
	Delete(ctx context.Context, key models.EntryKey) (bool, error)

	// List returns all entries of a user ordered by date.
	List(ctx context.Context, userID string) ([]*models.DiaryEntry, error)

	// ListPending returns entries of a user with NeedsSync set.
	ListPending(ctx context.Context, userID string) ([]*models.DiaryEntry, error)

	// MarkSynced clears NeedsSync and IsLocalOnly if the entry is still at
	// localVersion. It reports whether the row was updated.
	MarkSynced(ctx context.Context, key models.EntryKey, localVersion int64) (bool, error)
}
