package entries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/dmitrijs2005/diarysync/internal/dbx"
)

const entryColumns = `user_id, date, title, body, tags, is_local_only, needs_sync,
	last_applied_change_id, local_version, updated_at`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*models.DiaryEntry, error) {
	var (
		e         models.DiaryEntry
		tags      string
		applied   sql.NullInt64
		updatedAt int64
	)
	if err := s.Scan(&e.UserID, &e.Date, &e.Title, &e.Body, &tags, &e.IsLocalOnly, &e.NeedsSync,
		&applied, &e.LocalVersion, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags of %s/%s: %w", e.UserID, e.Date, err)
	}
	if applied.Valid {
		id := applied.Int64
		e.LastAppliedChangeID = &id
	}
	e.UpdatedAt = dbx.FromMillis(updatedAt)
	return &e, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, key models.EntryKey) (*models.DiaryEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE user_id = ? AND date = ?`, key.UserID, key.Date)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry %s: %w", key, err)
	}
	return e, nil
}

// Upsert writes every column. On conflict the existing row is replaced in place.
func (r *SQLiteRepository) Upsert(ctx context.Context, e *models.DiaryEntry) error {
	tags, err := json.Marshal(models.NormalizeTags(e.Tags))
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	var applied sql.NullInt64
	if e.LastAppliedChangeID != nil {
		applied = sql.NullInt64{Int64: *e.LastAppliedChangeID, Valid: true}
	}

	query := `INSERT INTO entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			tags = excluded.tags,
			is_local_only = excluded.is_local_only,
			needs_sync = excluded.needs_sync,
			last_applied_change_id = excluded.last_applied_change_id,
			local_version = excluded.local_version,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		e.UserID, e.Date, e.Title, e.Body, string(tags), e.IsLocalOnly, e.NeedsSync,
		applied, e.LocalVersion, dbx.Millis(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key models.EntryKey) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE user_id = ? AND date = ?`, key.UserID, key.Date)
	if err != nil {
		return false, fmt.Errorf("failed to delete entry: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra > 0, nil
}

func (r *SQLiteRepository) List(ctx context.Context, userID string) ([]*models.DiaryEntry, error) {
	return r.query(ctx, `SELECT `+entryColumns+` FROM entries WHERE user_id = ? ORDER BY date`, userID)
}

func (r *SQLiteRepository) ListPending(ctx context.Context, userID string) ([]*models.DiaryEntry, error) {
	return r.query(ctx, `SELECT `+entryColumns+` FROM entries WHERE user_id = ? AND needs_sync = 1 ORDER BY date`, userID)
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, key models.EntryKey, localVersion int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE entries SET needs_sync = 0, is_local_only = 0
		 WHERE user_id = ? AND date = ? AND local_version = ?`,
		key.UserID, key.Date, localVersion)
	if err != nil {
		return false, fmt.Errorf("failed to mark entry synced: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra == 1, nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*models.DiaryEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
	}
	defer rows.Close()

	var result []*models.DiaryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
