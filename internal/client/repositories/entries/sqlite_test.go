package entries

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/diarysync/internal/client/migrations"
	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "entries.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}

func TestUpsert_InsertAndReplace(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	key := models.EntryKey{UserID: "u1", Date: "2024-05-01"}

	changeID := int64(7)
	e := &models.DiaryEntry{
		UserID:              key.UserID,
		Date:                key.Date,
		Title:               "first",
		Body:                "hello",
		Tags:                []string{"b", "a", "b"},
		LastAppliedChangeID: &changeID,
		UpdatedAt:           time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, r.Upsert(ctx, e))

	got, err := r.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "first", got.Title)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
	require.NotNil(t, got.LastAppliedChangeID)
	assert.Equal(t, int64(7), *got.LastAppliedChangeID)
	assert.False(t, got.NeedsSync)
	assert.Equal(t, e.UpdatedAt, got.UpdatedAt)

	e.Title = "second"
	e.NeedsSync = true
	e.LastAppliedChangeID = nil
	require.NoError(t, r.Upsert(ctx, e))

	got, err = r.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Title)
	assert.True(t, got.NeedsSync)
	assert.Nil(t, got.LastAppliedChangeID)

	all, err := r.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGet_MissingReturnsNil(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	got, err := r.Get(context.Background(), models.EntryKey{UserID: "u1", Date: "2024-01-01"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDelete_ReportsExistence(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	key := models.EntryKey{UserID: "u1", Date: "2024-05-01"}

	require.NoError(t, r.Upsert(ctx, &models.DiaryEntry{UserID: key.UserID, Date: key.Date}))

	ok, err := r.Delete(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Delete(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListPending_AndMarkSynced(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, &models.DiaryEntry{UserID: "u1", Date: "2024-05-01", NeedsSync: true, IsLocalOnly: true, LocalVersion: 2}))
	require.NoError(t, r.Upsert(ctx, &models.DiaryEntry{UserID: "u1", Date: "2024-05-02"}))
	require.NoError(t, r.Upsert(ctx, &models.DiaryEntry{UserID: "u2", Date: "2024-05-01", NeedsSync: true}))

	pending, err := r.ListPending(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "2024-05-01", pending[0].Date)

	key := pending[0].Key()

	ok, err := r.MarkSynced(ctx, key, 1)
	require.NoError(t, err)
	assert.False(t, ok, "stale version must not clear the flag")

	ok, err = r.MarkSynced(ctx, key, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := r.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, got.NeedsSync)
	assert.False(t, got.IsLocalOnly)
}
