// Package pendingchanges persists the outbox of local edits awaiting push.
// There is at most one row per entry key; re-enqueueing replaces the
// operation and bumps Seq.
package pendingchanges

import (
	"context"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
)

type Repository interface {
	Enqueue(ctx context.Context, key models.EntryKey, op models.PendingOperation) error
	List(ctx context.Context, userID string) ([]*models.PendingChange, error)
	MarkFailed(ctx context.Context, id, lastError string) error

	// Complete removes the row only if it was not re-enqueued since it was
	// read (seq unchanged). It reports whether the row was removed.
	Complete(ctx context.Context, id string, seq int64) (bool, error)

	Count(ctx context.Context, userID string) (int, error)
}
