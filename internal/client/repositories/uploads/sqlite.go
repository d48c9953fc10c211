package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/dmitrijs2005/diarysync/internal/dbx"
	"github.com/google/uuid"
)

const columns = `id, local_path, filename, user_id, entry_date, status, retry_count, last_error,
	backend_filename, created_at, updated_at`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func scanRow(s interface{ Scan(...any) error }) (*models.PendingAssetUpload, error) {
	var (
		u                    models.PendingAssetUpload
		createdAt, updatedAt int64
	)
	if err := s.Scan(&u.ID, &u.LocalPath, &u.Filename, &u.Owner.UserID, &u.Owner.Date, &u.Status, &u.RetryCount,
		&u.LastError, &u.BackendFilename, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = dbx.FromMillis(createdAt)
	u.UpdatedAt = dbx.FromMillis(updatedAt)
	return &u, nil
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, localPath, filename string, owner models.EntryKey) (bool, error) {
	now := dbx.Millis(time.Now())
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_asset_uploads (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, 0, '', '', ?, ?)
		ON CONFLICT(filename) DO NOTHING`,
		uuid.NewString(), localPath, filename, owner.UserID, owner.Date, models.QueuePending, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue upload %s: %w", filename, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra == 1, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.PendingAssetUpload, error) {
	u, err := scanRow(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM pending_asset_uploads WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload %s: %w", id, err)
	}
	return u, nil
}

func (r *SQLiteRepository) ListPending(ctx context.Context, limit int) ([]*models.PendingAssetUpload, error) {
	return r.query(ctx, `SELECT `+columns+` FROM pending_asset_uploads
		WHERE status = ? ORDER BY created_at, rowid LIMIT ?`, models.QueuePending, limit)
}

func (r *SQLiteRepository) ListFailed(ctx context.Context, maxRetries int) ([]*models.PendingAssetUpload, error) {
	return r.query(ctx, `SELECT `+columns+` FROM pending_asset_uploads
		WHERE status = ? AND retry_count < ? ORDER BY created_at, rowid`, models.QueueFailed, maxRetries)
}

func (r *SQLiteRepository) Claim(ctx context.Context, id string, from models.QueueStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE pending_asset_uploads SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.QueueUploading, dbx.Millis(time.Now()), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to claim upload %s: %w", id, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra == 1, nil
}

func (r *SQLiteRepository) MarkCompleted(ctx context.Context, id, backendFilename string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE pending_asset_uploads SET status = ?, backend_filename = ?, last_error = '', updated_at = ?
		WHERE id = ?`, models.QueueCompleted, backendFilename, dbx.Millis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to complete upload %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id, lastError string) (int, error) {
	_, err := r.db.ExecContext(ctx, `
		UPDATE pending_asset_uploads
		SET status = ?, retry_count = retry_count + 1, last_error = ?, updated_at = ?
		WHERE id = ?`, models.QueueFailed, lastError, dbx.Millis(time.Now()), id)
	if err != nil {
		return 0, fmt.Errorf("failed to mark upload %s failed: %w", id, err)
	}

	var count int
	err = r.db.QueryRowContext(ctx, `SELECT retry_count FROM pending_asset_uploads WHERE id = ?`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MaxRetries, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read retry count: %w", err)
	}
	return count, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_asset_uploads WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete upload %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByFilename(ctx context.Context, filename string) (int64, error) {
	return r.exec(ctx, `DELETE FROM pending_asset_uploads WHERE filename = ?`, filename)
}

func (r *SQLiteRepository) DeleteByOwner(ctx context.Context, key models.EntryKey) (int64, error) {
	return r.exec(ctx, `DELETE FROM pending_asset_uploads WHERE user_id = ? AND entry_date = ?`, key.UserID, key.Date)
}

func (r *SQLiteRepository) DeleteExhausted(ctx context.Context, maxRetries int) (int64, error) {
	return r.exec(ctx, `DELETE FROM pending_asset_uploads WHERE status = ? AND retry_count >= ?`,
		models.QueueFailed, maxRetries)
}

func (r *SQLiteRepository) DeleteCompleted(ctx context.Context) (int64, error) {
	return r.exec(ctx, `DELETE FROM pending_asset_uploads WHERE status = ?`, models.QueueCompleted)
}

func (r *SQLiteRepository) ResetInFlight(ctx context.Context) (int64, error) {
	return r.exec(ctx, `UPDATE pending_asset_uploads SET status = ? WHERE status = ?`,
		models.QueuePending, models.QueueUploading)
}

func (r *SQLiteRepository) CountByStatus(ctx context.Context) (map[models.QueueStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM pending_asset_uploads GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count uploads: %w", err)
	}
	defer rows.Close()

	result := make(map[models.QueueStatus]int)
	for rows.Next() {
		var (
			status models.QueueStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		result[status] = n
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("upload queue: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*models.PendingAssetUpload, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select uploads: %w", err)
	}
	defer rows.Close()

	var result []*models.PendingAssetUpload
	for rows.Next() {
		u, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
