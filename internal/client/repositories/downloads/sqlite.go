package downloads

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

const columns = `id, filename, user_id, entry_date, status, retry_count, last_error, created_at, updated_at`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func scanRow(s interface{ Scan(...any) error }) (*models.PendingAssetDownload, error) {
	var (
		d                    models.PendingAssetDownload
		createdAt, updatedAt int64
	)
	if err := s.Scan(&d.ID, &d.Filename, &d.Owner.UserID, &d.Owner.Date, &d.Status, &d.RetryCount, &d.LastError,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.CreatedAt = dbx.FromMillis(createdAt)
	d.UpdatedAt = dbx.FromMillis(updatedAt)
	return &d, nil
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, filename string, owner models.EntryKey) (bool, error) {
	now := dbx.Millis(time.Now())
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_asset_downloads (`+columns+`) VALUES (?, ?, ?, ?, ?, 0, '', ?, ?)
		ON CONFLICT(filename) DO NOTHING`,
		uuid.NewString(), filename, owner.UserID, owner.Date, models.QueuePending, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue download %s: %w", filename, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra == 1, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.PendingAssetDownload, error) {
	d, err := scanRow(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM pending_asset_downloads WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get download %s: %w", id, err)
	}
	return d, nil
}

func (r *SQLiteRepository) ListPending(ctx context.Context, limit int) ([]*models.PendingAssetDownload, error) {
	return r.query(ctx, `SELECT `+columns+` FROM pending_asset_downloads
		WHERE status = ? ORDER BY created_at, rowid LIMIT ?`, models.QueuePending, limit)
}

func (r *SQLiteRepository) ListFailed(ctx context.Context, maxRetries int) ([]*models.PendingAssetDownload, error) {
	return r.query(ctx, `SELECT `+columns+` FROM pending_asset_downloads
		WHERE status = ? AND retry_count < ? ORDER BY created_at, rowid`, models.QueueFailed, maxRetries)
}

func (r *SQLiteRepository) Claim(ctx context.Context, id string, from models.QueueStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE pending_asset_downloads SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.QueueDownloading, dbx.Millis(time.Now()), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to claim download %s: %w", id, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra == 1, nil
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id, lastError string) (int, error) {
	_, err := r.db.ExecContext(ctx, `
		UPDATE pending_asset_downloads
		SET status = ?, retry_count = retry_count + 1, last_error = ?, updated_at = ?
		WHERE id = ?`, models.QueueFailed, lastError, dbx.Millis(time.Now()), id)
	if err != nil {
		return 0, fmt.Errorf("failed to mark download %s failed: %w", id, err)
	}

	var count int
	err = r.db.QueryRowContext(ctx, `SELECT retry_count FROM pending_asset_downloads WHERE id = ?`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		// removed concurrently, treat as exhausted
		return models.MaxRetries, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read retry count: %w", err)
	}
	return count, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_asset_downloads WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete download %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByFilename(ctx context.Context, filename string) (int64, error) {
	return r.exec(ctx, `DELETE FROM pending_asset_downloads WHERE filename = ?`, filename)
}

func (r *SQLiteRepository) DeleteByOwner(ctx context.Context, key models.EntryKey) (int64, error) {
	return r.exec(ctx, `DELETE FROM pending_asset_downloads WHERE user_id = ? AND entry_date = ?`, key.UserID, key.Date)
}

func (r *SQLiteRepository) DeleteExhausted(ctx context.Context, maxRetries int) (int64, error) {
	return r.exec(ctx, `DELETE FROM pending_asset_downloads WHERE status = ? AND retry_count >= ?`,
		models.QueueFailed, maxRetries)
}

func (r *SQLiteRepository) DeleteCompleted(ctx context.Context) (int64, error) {
	return r.exec(ctx, `DELETE FROM pending_asset_downloads WHERE status = ?`, models.QueueCompleted)
}

func (r *SQLiteRepository) ResetInFlight(ctx context.Context) (int64, error) {
	return r.exec(ctx, `UPDATE pending_asset_downloads SET status = ? WHERE status = ?`,
		models.QueuePending, models.QueueDownloading)
}

func (r *SQLiteRepository) CountByStatus(ctx context.Context) (map[models.QueueStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM pending_asset_downloads GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count downloads: %w", err)
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
		return 0, fmt.Errorf("download queue: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*models.PendingAssetDownload, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select downloads: %w", err)
	}
	defer rows.Close()

	var result []*models.PendingAssetDownload
	for rows.Next() {
		d, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
