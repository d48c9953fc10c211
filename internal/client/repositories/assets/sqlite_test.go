package assets

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/diarysync/internal/client/migrations"
	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "assets.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}

var owner = models.EntryKey{UserID: "u1", Date: "2024-05-01"}

func TestTrack_IsInsertOnce(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	created, err := r.Track(ctx, &models.Asset{Filename: "a.jpg", Owner: owner, Status: models.AssetPending})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = r.Track(ctx, &models.Asset{Filename: "a.jpg", Owner: owner, Status: models.AssetFailed})
	require.NoError(t, err)
	assert.False(t, created)

	a, err := r.Get(ctx, "a.jpg")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, models.AssetPending, a.Status)
	assert.Equal(t, owner, a.Owner)
	assert.Empty(t, a.LocalPath)
	assert.False(t, a.Downloaded)
}

func TestMarkCompleted_SetsDownloadedInvariant(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	_, err := r.Track(ctx, &models.Asset{Filename: "a.jpg", Owner: owner, Status: models.AssetDownloading})
	require.NoError(t, err)

	ok, err := r.MarkCompleted(ctx, "a.jpg", "/tmp/a.jpg")
	require.NoError(t, err)
	assert.True(t, ok)

	a, err := r.Get(ctx, "a.jpg")
	require.NoError(t, err)
	assert.True(t, a.Downloaded)
	assert.Equal(t, "/tmp/a.jpg", a.LocalPath)
	assert.Equal(t, models.AssetCompleted, a.Status)

	// a downloaded asset keeps its completed status
	require.NoError(t, r.SetStatus(ctx, "a.jpg", models.AssetFailed))
	a, err = r.Get(ctx, "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, models.AssetCompleted, a.Status)

	ok, err = r.MarkCompleted(ctx, "missing.jpg", "/tmp/x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteAndCounts(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	other := models.EntryKey{UserID: "u1", Date: "2024-05-02"}

	for _, a := range []*models.Asset{
		{Filename: "a.jpg", Owner: owner, Status: models.AssetPending},
		{Filename: "b.png", Owner: owner, Status: models.AssetFailed},
		{Filename: "c.mp4", Owner: other, Status: models.AssetPending},
	} {
		_, err := r.Track(ctx, a)
		require.NoError(t, err)
	}

	counts, err := r.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.AssetPending])
	assert.Equal(t, 1, counts[models.AssetFailed])

	owned, err := r.ListByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, owned, 2)

	n, err := r.DeleteByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ok, err := r.Delete(ctx, "c.mp4")
	require.NoError(t, err)
	assert.True(t, ok)

	all, err := r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRename(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	_, err := r.Track(ctx, &models.Asset{Filename: "local.jpg", Owner: owner, Status: models.AssetCompleted})
	require.NoError(t, err)
	require.NoError(t, r.Rename(ctx, "local.jpg", "srv-1.jpg"))

	a, err := r.Get(ctx, "srv-1.jpg")
	require.NoError(t, err)
	require.NotNil(t, a)

	a, err = r.Get(ctx, "local.jpg")
	require.NoError(t, err)
	assert.Nil(t, a)
}
