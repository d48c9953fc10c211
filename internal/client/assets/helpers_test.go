package assets

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/dmitrijs2005/diarysync/internal/client/storage"
	"github.com/dmitrijs2005/diarysync/internal/logging"
)

var testKey = models.EntryKey{UserID: "u1", Date: "2024-05-01"}

type fixture struct {
	store *storage.Store
	files *LocalStore
	log   logging.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	st, err := storage.Open(context.Background(), filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	files, err := NewLocalStore(filepath.Join(dir, "assets"))
	require.NoError(t, err)

	return &fixture{store: st, files: files, log: logging.NewNop()}
}

func (f *fixture) tracker() *Tracker {
	return NewTracker(f.store.Repositories, f.files, f.log)
}

// fakeRemote serves downloads from a map and records uploads.
type fakeRemote struct {
	mu       sync.Mutex
	files    map[string][]byte
	failWith error
	errs     map[string]error
	calls    int
	uploaded map[string][]byte
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{files: map[string][]byte{}, errs: map[string]error{}, uploaded: map[string][]byte{}}
}

func (r *fakeRemote) DownloadAsset(_ context.Context, filename string) (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failWith != nil {
		return nil, r.failWith
	}
	if err := r.errs[filename]; err != nil {
		return nil, err
	}
	b, ok := r.files[filename]
	if !ok {
		return nil, errors.New("client error 404 (Not Found)")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (r *fakeRemote) UploadAsset(_ context.Context, name string, body io.Reader) (string, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failWith != nil {
		return "", r.failWith
	}
	backend := "srv-" + name
	r.uploaded[backend] = b
	return backend, nil
}

func (r *fakeRemote) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
