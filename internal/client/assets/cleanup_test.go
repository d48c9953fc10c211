package assets

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
)

func (f *fixture) cleanup() *CleanupService {
	return NewCleanupService(f.store.Repositories, f.tracker(), f.log)
}

func TestSweepOrphans_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.tracker()

	live := &models.DiaryEntry{UserID: "u1", Date: "2024-05-01", Body: "![](keep.jpg)"}
	require.NoError(t, f.store.Entries.Upsert(ctx, live))

	// keep.jpg is referenced; stale.jpg is owned by live but not referenced;
	// ghost.jpg belongs to an entry that no longer exists
	require.NoError(t, tr.EntryCreated(ctx, live.Key(), "![](keep.jpg) ![](stale.jpg)", OriginRemote))
	ghostKey := models.EntryKey{UserID: "u1", Date: "2024-04-30"}
	require.NoError(t, tr.EntryCreated(ctx, ghostKey, "![](ghost.jpg)", OriginRemote))
	_, err := f.files.Write("ghost.jpg", strings.NewReader("g"))
	require.NoError(t, err)

	s := f.cleanup()
	n, err := s.SweepOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := f.store.Assets.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "keep.jpg", list[0].Filename)
	assert.False(t, f.files.Exists("ghost.jpg"))

	rows, err := f.store.Downloads.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "keep.jpg", rows[0].Filename)

	n, err = s.SweepOrphans(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCleanupRun_SecondRunReportsZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.files.Write("up.jpg", strings.NewReader("u"))
	require.NoError(t, err)
	e := &models.DiaryEntry{UserID: "u1", Date: "2024-05-01", Body: "![](up.jpg) ![](dead.jpg)"}
	require.NoError(t, f.store.Entries.Upsert(ctx, e))
	require.NoError(t, f.tracker().EntryCreated(ctx, e.Key(), e.Body, OriginLocal))

	ups, err := f.store.Uploads.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ups, 1)
	require.NoError(t, f.store.Uploads.MarkCompleted(ctx, ups[0].ID, "srv-up.jpg"))

	downs, err := f.store.Downloads.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, downs, 1)
	for i := 0; i < models.MaxRetries; i++ {
		_, err := f.store.Downloads.MarkFailed(ctx, downs[0].ID, "server error 500")
		require.NoError(t, err)
	}

	s := f.cleanup()
	rep, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, CleanupReport{Exhausted: 1, Completed: 1}, rep)

	rep, err = s.Run(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Empty())
}

func TestCleanupDeletedEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.tracker().EntryCreated(ctx, testKey, "![](a.jpg)", OriginRemote))
	s := f.cleanup()

	require.NoError(t, s.CleanupDeletedEntry(ctx, testKey))
	require.NoError(t, s.CleanupDeletedEntry(ctx, testKey))

	list, err := f.store.Assets.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
