package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
)

func (f *fixture) downloads(remote Downloader) *DownloadManager {
	return NewDownloadManager(f.store.Assets, f.store.Downloads, remote, f.files, f.log)
}

func TestProcessPending_DownloadsAndDeletesRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	remote := newFakeRemote()
	remote.files["a.jpg"] = []byte("A")
	remote.files["b.jpg"] = []byte("B")

	require.NoError(t, f.tracker().EntryCreated(ctx, testKey, "![](a.jpg) ![](b.jpg)", OriginRemote))

	n, err := f.downloads(remote).ProcessPending(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, name := range []string{"a.jpg", "b.jpg"} {
		a, err := f.store.Assets.Get(ctx, name)
		require.NoError(t, err)
		assert.True(t, a.Downloaded)
		assert.Equal(t, models.AssetCompleted, a.Status)

		b, err := os.ReadFile(a.LocalPath)
		require.NoError(t, err)
		assert.Equal(t, remote.files[name], b)
	}

	rows, err := f.store.Downloads.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestProcessPending_RespectsBatchSize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	remote := newFakeRemote()

	body := ""
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("f%d.png", i)
		remote.files[name] = []byte(name)
		body += "![](" + name + ")\n"
	}
	require.NoError(t, f.tracker().EntryCreated(ctx, testKey, body, OriginRemote))

	m := f.downloads(remote)
	n, err := m.ProcessPending(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	total, err := m.DrainPending(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 5, remote.callCount())
}

func TestProcessPending_RowRemovedAfterThreeFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	remote := newFakeRemote()
	remote.failWith = errors.New("server error 503 (Service Unavailable)")

	require.NoError(t, f.tracker().EntryCreated(ctx, testKey, "![](a.jpg)", OriginRemote))
	m := f.downloads(remote)

	n, err := m.ProcessPending(ctx, 3)
	require.NoError(t, err)
	require.Zero(t, n, "a failed transfer is not a success")

	for attempt := 2; attempt <= models.MaxRetries; attempt++ {
		failed, err := m.Failed(ctx)
		require.NoError(t, err)
		require.Len(t, failed, 1, "attempt %d", attempt)
		assert.Equal(t, attempt-1, failed[0].RetryCount)
		assert.Contains(t, failed[0].LastError, "503")

		ok, err := m.Retry(ctx, failed[0])
		require.NoError(t, err)
		require.False(t, ok)
	}

	counts, err := f.store.Downloads.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts[models.QueueFailed]+counts[models.QueuePending]+counts[models.QueueDownloading])

	a, err := f.store.Assets.Get(ctx, "a.jpg")
	require.NoError(t, err)
	require.NotNil(t, a, "asset record survives")
	assert.Equal(t, models.AssetFailed, a.Status)
	assert.Equal(t, 3, remote.callCount())
}

func TestProcessPending_CountsOnlySuccesses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	remote := newFakeRemote()
	remote.files["ok.jpg"] = []byte("ok")
	remote.files["bad.jpg"] = []byte("bad")
	remote.errs["bad.jpg"] = errors.New("server error 503 (Service Unavailable)")

	require.NoError(t, f.tracker().EntryCreated(ctx, testKey, "![](ok.jpg) ![](bad.jpg)", OriginRemote))
	m := f.downloads(remote)

	n, err := m.ProcessPending(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	failed, err := m.Failed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	ok, err := m.Retry(ctx, failed[0])
	require.NoError(t, err)
	assert.False(t, ok)

	delete(remote.errs, "bad.jpg")
	failed, err = m.Failed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	ok, err = m.Retry(ctx, failed[0])
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDrainPending_FailuresDoNotCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	remote := newFakeRemote()
	remote.failWith = errors.New("server error 503 (Service Unavailable)")

	require.NoError(t, f.tracker().EntryCreated(ctx, testKey, "![](a.jpg) ![](b.jpg) ![](c.jpg)", OriginRemote))

	n, err := f.downloads(remote).DrainPending(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, remote.callCount())
}

func TestRetry_SkipsRowNoLongerFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	remote := newFakeRemote()

	require.NoError(t, f.tracker().EntryCreated(ctx, testKey, "![](a.jpg)", OriginRemote))
	rows, err := f.store.Downloads.ListPending(ctx, 1)
	require.NoError(t, err)

	ok, err := f.downloads(remote).Retry(ctx, rows[0])
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, remote.callCount())
}

func TestRecoverStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.tracker().EntryCreated(ctx, testKey, "![](a.jpg)", OriginRemote))
	rows, err := f.store.Downloads.ListPending(ctx, 1)
	require.NoError(t, err)
	ok, err := f.store.Downloads.Claim(ctx, rows[0].ID, models.QueuePending)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := f.downloads(newFakeRemote()).RecoverStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err = f.store.Downloads.ListPending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
