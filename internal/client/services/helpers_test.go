package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/diarysync/internal/client/assets"
	"github.com/dmitrijs2005/diarysync/internal/client/client"
	"github.com/dmitrijs2005/diarysync/internal/client/conflict"
	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/dmitrijs2005/diarysync/internal/client/storage"
	"github.com/dmitrijs2005/diarysync/internal/clock"
	"github.com/dmitrijs2005/diarysync/internal/logging"
)

const (
	testUser     = "u1"
	testClientID = "install-1"
)

type staticSession struct{ userID string }

func (s staticSession) Token(context.Context) (string, error) {
	if s.userID == "" {
		return "", client.ErrUnauthorized
	}
	return "tok", nil
}

func (s staticSession) UserID(context.Context) (string, error) {
	if s.userID == "" {
		return "", client.ErrUnauthorized
	}
	return s.userID, nil
}

// fakeChanges serves a fixed change log with since/limit paging.
type fakeChanges struct {
	mu      sync.Mutex
	log     []models.SyncChange
	calls   []int64
	failAt  int // 1-based call number that fails; 0 never
	failErr error
	// redeliver is prepended to every page
	redeliver []models.SyncChange
}

func (f *fakeChanges) GetChanges(_ context.Context, since int64, limit int) (*models.ChangePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, since)
	if f.failAt > 0 && len(f.calls) == f.failAt {
		return nil, f.failErr
	}

	page := &models.ChangePage{Changes: append([]models.SyncChange{}, f.redeliver...)}
	for _, ch := range f.log {
		if ch.ID <= since {
			continue
		}
		if len(page.Changes)-len(f.redeliver) == limit {
			page.HasMore = true
			break
		}
		page.Changes = append(page.Changes, ch)
	}
	if n := len(page.Changes); n > 0 {
		next := page.Changes[n-1].ID
		page.NextID = &next
	}
	return page, nil
}

func (f *fakeChanges) sinceCalls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64{}, f.calls...)
}

type countingDownloads struct {
	mu    sync.Mutex
	calls int
}

func (d *countingDownloads) ProcessPending(context.Context, int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return 0, nil
}

type countingOutbox struct {
	calls int
	err   error
}

func (o *countingOutbox) PushPending(context.Context) (int, error) {
	o.calls++
	return 0, o.err
}

func dateN(i int) string {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i).Format(models.DateLayout)
}

func upsertChange(id int64, date, body string, ts time.Time) models.SyncChange {
	return models.SyncChange{
		ID: id, UserID: testUser, Date: date, Operation: models.OperationUpdated, ServerTimestamp: ts,
		Entry: &models.EntrySnapshot{Date: date, Title: "t" + date, Body: body, Tags: []string{"x"}},
	}
}

func deleteChange(id int64, date string, ts time.Time) models.SyncChange {
	return models.SyncChange{ID: id, UserID: testUser, Date: date, Operation: models.OperationDeleted, ServerTimestamp: ts}
}

type syncFixture struct {
	store     *storage.Store
	files     *assets.LocalStore
	tracker   *assets.Tracker
	clock     *clock.Mock
	changes   *fakeChanges
	downloads *countingDownloads
	outbox    *countingOutbox
	sync      *SyncCoordinator
}

func newSyncFixture(t *testing.T, log []models.SyncChange) *syncFixture {
	t.Helper()
	dir := t.TempDir()

	st, err := storage.Open(context.Background(), filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	files, err := assets.NewLocalStore(filepath.Join(dir, "assets"))
	require.NoError(t, err)

	f := &syncFixture{
		store:     st,
		files:     files,
		clock:     clock.NewMock(),
		changes:   &fakeChanges{log: log},
		downloads: &countingDownloads{},
		outbox:    &countingOutbox{},
	}
	f.tracker = assets.NewTracker(st.Repositories, files, logging.NewNop())
	f.sync = NewSyncCoordinator(SyncDeps{
		Store:     st,
		Changes:   f.changes,
		Session:   staticSession{userID: testUser},
		Resolver:  conflict.NewResolver(f.clock),
		Tracker:   f.tracker,
		Downloads: f.downloads,
		Outbox:    f.outbox,
		Clock:     f.clock,
		Logger:    logging.NewNop(),
		ClientID:  testClientID,
	})
	return f
}

func (f *syncFixture) watermark(t *testing.T) int64 {
	t.Helper()
	st, err := f.store.SyncState.Get(context.Background(), testUser)
	require.NoError(t, err)
	return st.LastAppliedChangeID
}
