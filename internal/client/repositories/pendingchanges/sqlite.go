package pendingchanges

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/dmitrijs2005/diarysync/internal/dbx"
	"github.com/google/uuid"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, key models.EntryKey, op models.PendingOperation) error {
	now := dbx.Millis(time.Now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_changes (id, user_id, date, operation, seq, retry_count, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, 0, '', ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			operation = excluded.operation,
			seq = pending_changes.seq + 1,
			retry_count = 0,
			last_error = '',
			updated_at = excluded.updated_at`,
		uuid.NewString(), key.UserID, key.Date, op, now, now)
	if err != nil {
		return fmt.Errorf("failed to enqueue change for %s: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, userID string) ([]*models.PendingChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, date, operation, seq, retry_count, last_error, created_at, updated_at
		FROM pending_changes WHERE user_id = ? ORDER BY created_at, rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending changes: %w", err)
	}
	defer rows.Close()

	var result []*models.PendingChange
	for rows.Next() {
		var (
			c                    models.PendingChange
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&c.ID, &c.Key.UserID, &c.Key.Date, &c.Operation, &c.Seq, &c.RetryCount, &c.LastError,
			&createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending change: %w", err)
		}
		c.CreatedAt = dbx.FromMillis(createdAt)
		c.UpdatedAt = dbx.FromMillis(updatedAt)
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE pending_changes SET retry_count = retry_count + 1, last_error = ?, updated_at = ? WHERE id = ?`,
		lastError, dbx.Millis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to mark pending change failed: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Complete(ctx context.Context, id string, seq int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_changes WHERE id = ? AND seq = ?`, id, seq)
	if err != nil {
		return false, fmt.Errorf("failed to complete pending change: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra == 1, nil
}

func (r *SQLiteRepository) Count(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_changes WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending changes: %w", err)
	}
	return n, nil
}
