package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/diarysync/internal/client/client"
	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/dmitrijs2005/diarysync/internal/logging"
)

type fakeEntryAPI struct {
	mu      sync.Mutex
	puts    []models.EntrySnapshot
	deletes []string
	err     error
	// onPut runs inside PutEntry, before it returns
	onPut func()
}

func (f *fakeEntryAPI) PutEntry(_ context.Context, e models.EntrySnapshot) (*models.StoredEntry, error) {
	f.mu.Lock()
	if f.err != nil {
		f.mu.Unlock()
		return nil, f.err
	}
	f.puts = append(f.puts, e)
	hook := f.onPut
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return &models.StoredEntry{EntrySnapshot: e}, nil
}

func (f *fakeEntryAPI) DeleteEntry(_ context.Context, date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deletes = append(f.deletes, date)
	return nil
}

func newEntryService(t *testing.T) (*syncFixture, *fakeEntryAPI, EntryService) {
	t.Helper()
	f := newSyncFixture(t, nil)
	api := &fakeEntryAPI{}
	svc := NewEntryService(f.store, api, staticSession{userID: testUser}, f.tracker, f.files, f.clock, logging.NewNop())
	return f, api, svc
}

func TestEntryService_SaveAndPush(t *testing.T) {
	f, api, svc := newEntryService(t)
	ctx := context.Background()

	e, err := svc.Save(ctx, "2024-05-01", "Title", "body", []string{"b", "a", "a"})
	require.NoError(t, err)
	assert.True(t, e.NeedsSync)
	assert.True(t, e.IsLocalOnly)
	assert.Equal(t, int64(1), e.LocalVersion)
	assert.Equal(t, []string{"a", "b"}, e.Tags)

	e, err = svc.Save(ctx, "2024-05-01", "Title", "body 2", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.LocalVersion)

	n, err := f.store.PendingChanges.Count(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "one outbox row per entry")

	done, err := svc.PushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	require.Len(t, api.puts, 1)
	assert.Equal(t, "body 2", api.puts[0].Body)

	got, err := svc.Get(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.False(t, got.NeedsSync)
	assert.False(t, got.IsLocalOnly)

	n, err = f.store.PendingChanges.Count(ctx, testUser)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEntryService_EditDuringPushIsNotLost(t *testing.T) {
	f, api, svc := newEntryService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, "2024-05-01", "T", "v1", nil)
	require.NoError(t, err)

	api.onPut = func() {
		api.onPut = nil
		_, err := svc.Save(ctx, "2024-05-01", "T", "v2", nil)
		require.NoError(t, err)
	}

	done, err := svc.PushPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, done)

	got, err := svc.Get(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.True(t, got.NeedsSync, "newer edit stays dirty")
	assert.Equal(t, "v2", got.Body)

	n, err := f.store.PendingChanges.Count(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	done, err = svc.PushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.Equal(t, "v2", api.puts[len(api.puts)-1].Body)
}

func TestEntryService_PushFailureIsRecorded(t *testing.T) {
	f, api, svc := newEntryService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, "2024-05-01", "T", "b", nil)
	require.NoError(t, err)

	api.err = &client.ServerError{StatusCode: 503}
	done, err := svc.PushPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, done)

	rows, err := f.store.PendingChanges.List(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].RetryCount)
	assert.Contains(t, rows[0].LastError, "503")

	api.err = client.ErrUnauthorized
	_, err = svc.PushPending(ctx)
	assert.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestEntryService_Delete(t *testing.T) {
	f, api, svc := newEntryService(t)
	ctx := context.Background()

	_, err := f.files.Write("pic.jpg", strings.NewReader("img"))
	require.NoError(t, err)
	_, err = svc.Save(ctx, "2024-05-01", "T", "![](pic.jpg)", nil)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "2024-05-01"))
	_, err = svc.Get(ctx, "2024-05-01")
	assert.ErrorIs(t, err, ErrEntryNotFound)
	assert.False(t, f.files.Exists("pic.jpg"))

	err = svc.Delete(ctx, "2024-05-01")
	assert.True(t, errors.Is(err, ErrEntryNotFound))

	done, err := svc.PushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.Equal(t, []string{"2024-05-01"}, api.deletes)
	assert.Empty(t, api.puts)
}

func TestEntryService_RejectsBadDate(t *testing.T) {
	_, _, svc := newEntryService(t)
	_, err := svc.Save(context.Background(), "May 1", "T", "b", nil)
	assert.Error(t, err)
}

func TestEntryService_ReconcileUpload(t *testing.T) {
	f, _, svc := newEntryService(t)
	ctx := context.Background()

	_, err := f.files.Write("local.jpg", strings.NewReader("img"))
	require.NoError(t, err)
	_, err = svc.Save(ctx, "2024-05-01", "T", "see ![me](local.jpg)", nil)
	require.NoError(t, err)
	_, err = svc.PushPending(ctx)
	require.NoError(t, err)

	ups, err := f.store.Uploads.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ups, 1)
	row := ups[0]
	row.BackendFilename = "srv-9.jpg"

	require.NoError(t, svc.ReconcileUpload(ctx, row))

	got, err := svc.Get(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, "see ![me](srv-9.jpg)", got.Body)
	assert.True(t, got.NeedsSync)

	a, err := f.store.Assets.Get(ctx, "srv-9.jpg")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.True(t, a.Downloaded)
	assert.True(t, f.files.Exists("srv-9.jpg"))
	assert.False(t, f.files.Exists("local.jpg"))

	old, err := f.store.Assets.Get(ctx, "local.jpg")
	require.NoError(t, err)
	assert.Nil(t, old)
}

func TestEntryService_PushRejectionHandling(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantRows int
	}{
		{"transient failures stay queued", &client.ServerError{StatusCode: 503}, 1},
		{"network failures stay queued", &client.NetworkError{Op: "PUT /items", Err: errors.New("reset")}, 1},
		{"permanent rejection is dropped", &client.ClientError{StatusCode: 422}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, api, svc := newEntryService(t)
			ctx := context.Background()

			_, err := svc.Save(ctx, "2024-05-01", "T", "b", nil)
			require.NoError(t, err)

			api.err = tt.err
			for i := 0; i < models.MaxRetries+1; i++ {
				_, err := svc.PushPending(ctx)
				require.NoError(t, err)
			}

			n, err := f.store.PendingChanges.Count(ctx, testUser)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRows, n)

			e, err := svc.Get(ctx, "2024-05-01")
			require.NoError(t, err)
			assert.True(t, e.NeedsSync, "the local edit is kept")
		})
	}
}

func TestEntryService_RestoreConflict(t *testing.T) {
	f, _, svc := newEntryService(t)
	ctx := context.Background()
	date := dateN(1)

	_, err := svc.Save(ctx, date, "mine", "my own words about the day", nil)
	require.NoError(t, err)

	ch := upsertChange(5, date, "their words about the day", f.clock.Now().Add(-time.Minute))
	require.NoError(t, f.sync.apply(ctx, &ch))

	e, err := svc.Get(ctx, date)
	require.NoError(t, err)
	require.Equal(t, "their words about the day", e.Body)

	recs, err := svc.Conflicts(ctx, date)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	_, err = svc.RestoreConflict(ctx, date, "no-such-conflict")
	assert.ErrorIs(t, err, ErrConflictNotFound)

	restored, err := svc.RestoreConflict(ctx, date, recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "my own words about the day", restored.Body)
	assert.True(t, restored.NeedsSync)

	n, err := f.store.PendingChanges.Count(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
