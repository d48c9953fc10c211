package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/dmitrijs2005/diarysync/internal/dbx"
)

const assetColumns = `filename, local_path, user_id, entry_date, downloaded, status, created_at, updated_at`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func scanAsset(s interface{ Scan(...any) error }) (*models.Asset, error) {
	var (
		a                    models.Asset
		localPath            sql.NullString
		createdAt, updatedAt int64
	)
	if err := s.Scan(&a.Filename, &localPath, &a.Owner.UserID, &a.Owner.Date, &a.Downloaded, &a.Status,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.LocalPath = localPath.String
	a.CreatedAt = dbx.FromMillis(createdAt)
	a.UpdatedAt = dbx.FromMillis(updatedAt)
	return &a, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, filename string) (*models.Asset, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE filename = ?`, filename)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %s: %w", filename, err)
	}
	return a, nil
}

func (r *SQLiteRepository) Track(ctx context.Context, a *models.Asset) (bool, error) {
	now := dbx.Millis(time.Now())
	var localPath sql.NullString
	if a.LocalPath != "" {
		localPath = sql.NullString{String: a.LocalPath, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO assets (`+assetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO NOTHING`,
		a.Filename, localPath, a.Owner.UserID, a.Owner.Date, a.Downloaded, a.Status, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to track asset %s: %w", a.Filename, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra == 1, nil
}

func (r *SQLiteRepository) SetStatus(ctx context.Context, filename string, status models.AssetStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE assets SET status = ?, updated_at = ? WHERE filename = ? AND downloaded = 0`,
		status, dbx.Millis(time.Now()), filename)
	if err != nil {
		return fmt.Errorf("failed to set asset status: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkCompleted(ctx context.Context, filename, localPath string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE assets SET local_path = ?, downloaded = 1, status = ?, updated_at = ? WHERE filename = ?`,
		localPath, models.AssetCompleted, dbx.Millis(time.Now()), filename)
	if err != nil {
		return false, fmt.Errorf("failed to complete asset: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra == 1, nil
}

func (r *SQLiteRepository) Rename(ctx context.Context, from, to string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE assets SET filename = ?, updated_at = ? WHERE filename = ?`, to, dbx.Millis(time.Now()), from)
	if err != nil {
		return fmt.Errorf("failed to rename asset %s: %w", from, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, filename string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE filename = ?`, filename)
	if err != nil {
		return false, fmt.Errorf("failed to delete asset: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra > 0, nil
}

func (r *SQLiteRepository) DeleteByOwner(ctx context.Context, key models.EntryKey) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE user_id = ? AND entry_date = ?`, key.UserID, key.Date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete assets of %s: %w", key, err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Asset, error) {
	return r.query(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY created_at, filename`)
}

func (r *SQLiteRepository) ListByOwner(ctx context.Context, key models.EntryKey) ([]*models.Asset, error) {
	return r.query(ctx, `SELECT `+assetColumns+` FROM assets WHERE user_id = ? AND entry_date = ? ORDER BY filename`,
		key.UserID, key.Date)
}

func (r *SQLiteRepository) CountByStatus(ctx context.Context) (map[models.AssetStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM assets GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count assets: %w", err)
	}
	defer rows.Close()

	result := make(map[models.AssetStatus]int)
	for rows.Next() {
		var (
			status models.AssetStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan asset count: %w", err)
		}
		result[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*models.Asset, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select assets: %w", err)
	}
	defer rows.Close()

	var result []*models.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
