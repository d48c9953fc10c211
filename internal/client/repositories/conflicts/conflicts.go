// Package conflicts stores the audit trail of resolved sync conflicts.
package conflicts

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/dmitrijs2005/diarysync/internal/dbx"
	"github.com/google/uuid"
)

type Repository interface {
	Record(ctx context.Context, rec *models.ConflictRecord) error
	ListByKey(ctx context.Context, key models.EntryKey) ([]*models.ConflictRecord, error)
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts rec, assigning ID and CreatedAt when they are empty.
func (r *SQLiteRepository) Record(ctx context.Context, rec *models.ConflictRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conflict_log (id, user_id, date, change_id, winner, message, patch, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Key.UserID, rec.Key.Date, rec.ChangeID, rec.Winner, rec.Message, rec.Patch, dbx.Millis(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record conflict: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListByKey(ctx context.Context, key models.EntryKey) ([]*models.ConflictRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, date, change_id, winner, message, patch, created_at
		FROM conflict_log WHERE user_id = ? AND date = ? ORDER BY created_at, rowid`, key.UserID, key.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var result []*models.ConflictRecord
	for rows.Next() {
		var (
			c         models.ConflictRecord
			createdAt int64
		)
		if err := rows.Scan(&c.ID, &c.Key.UserID, &c.Key.Date, &c.ChangeID, &c.Winner, &c.Message, &c.Patch, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		c.CreatedAt = dbx.FromMillis(createdAt)
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
