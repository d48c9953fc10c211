package syncstate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/diarysync/internal/client/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "syncstate.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}

func TestGet_CreatesLazily(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	s, err := r.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, int64(0), s.LastAppliedChangeID)
	assert.True(t, s.LastSyncAt.IsZero())
	assert.False(t, s.SyncInProgress)
}

func TestAdvance_NeverDecreases(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, r.Advance(ctx, "u1", 10, at))
	require.NoError(t, r.Advance(ctx, "u1", 4, at.Add(time.Minute)))

	s, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), s.LastAppliedChangeID)
	assert.Equal(t, at.Add(time.Minute), s.LastSyncAt)

	require.NoError(t, r.Advance(ctx, "u1", 12, at))
	s, err = r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), s.LastAppliedChangeID)
}

func TestInProgressFlag(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.SetInProgress(ctx, "u1", true))
	s, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, s.SyncInProgress)

	n, err := r.ResetInProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	s, err = r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, s.SyncInProgress)
}
