package syncstate

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/dmitrijs2005/diarysync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, userID string) (*models.SyncState, error) {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_state (user_id) VALUES (?) ON CONFLICT(user_id) DO NOTHING`, userID); err != nil {
		return nil, fmt.Errorf("failed to init sync state: %w", err)
	}

	var (
		s          = models.SyncState{UserID: userID}
		lastSyncAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT last_applied_change_id, last_sync_at, sync_in_progress FROM sync_state WHERE user_id = ?`, userID).
		Scan(&s.LastAppliedChangeID, &lastSyncAt, &s.SyncInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	s.LastSyncAt = dbx.FromMillis(lastSyncAt)
	return &s, nil
}

func (r *SQLiteRepository) Advance(ctx context.Context, userID string, changeID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_state (user_id, last_applied_change_id, last_sync_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			last_applied_change_id = MAX(sync_state.last_applied_change_id, excluded.last_applied_change_id),
			last_sync_at = excluded.last_sync_at`,
		userID, changeID, dbx.Millis(at))
	if err != nil {
		return fmt.Errorf("failed to advance watermark: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SetInProgress(ctx context.Context, userID string, inProgress bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_state (user_id, sync_in_progress) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET sync_in_progress = excluded.sync_in_progress`,
		userID, inProgress)
	if err != nil {
		return fmt.Errorf("failed to set sync in progress: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ResetInProgress(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE sync_state SET sync_in_progress = 0 WHERE sync_in_progress = 1`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset sync flags: %w", err)
	}
	return res.RowsAffected()
}
