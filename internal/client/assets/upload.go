package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/dmitrijs2005/diarysync/internal/client/repositories/uploads"
	"github.com/dmitrijs2005/diarysync/internal/logging"
)

var (
	// ErrFileTooLarge rejects an upload above the configured size cap.
	ErrFileTooLarge = errors.New("file too large")
	// ErrInvalidFile rejects an upload that is not a supported media file.
	ErrInvalidFile = errors.New("invalid file")
)

// Uploader sends asset bytes to the backend and returns the filename the
// backend assigned.
type Uploader interface {
	UploadAsset(ctx context.Context, name string, r io.Reader) (string, error)
}

// ReconcileFunc is called after an upload completes so the owning entry
// can switch to the backend filename.
type ReconcileFunc func(ctx context.Context, row *models.PendingAssetUpload) error

// UploadManager drains the upload queue.
type UploadManager struct {
	queue     uploads.Repository
	remote    Uploader
	maxBytes  int64
	reconcile ReconcileFunc
	log       logging.Logger
}

// NewUploadManager builds a manager. maxBytes <= 0 disables the size check;
// reconcile may be nil.
func NewUploadManager(q uploads.Repository, remote Uploader, maxBytes int64, reconcile ReconcileFunc, log logging.Logger) *UploadManager {
	return &UploadManager{
		queue:     q,
		remote:    remote,
		maxBytes:  maxBytes,
		reconcile: reconcile,
		log:       log.With("component", "uploads"),
	}
}

// ProcessPending claims up to maxConcurrent pending rows, oldest first, and
// uploads them in parallel. It returns how many transfers succeeded.
// Per-row failures end up in row state, not in the returned error.
func (m *UploadManager) ProcessPending(ctx context.Context, maxConcurrent int) (int, error) {
	_, ok, err := m.processBatch(ctx, maxConcurrent)
	return ok, err
}

func (m *UploadManager) processBatch(ctx context.Context, maxConcurrent int) (claimed, succeeded int, err error) {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	rows, err := m.queue.ListPending(ctx, maxConcurrent)
	if err != nil {
		return 0, 0, err
	}

	var (
		g  errgroup.Group
		ok atomic.Int32
	)
	g.SetLimit(maxConcurrent)

	for _, row := range rows {
		claimedRow, cerr := m.queue.Claim(ctx, row.ID, models.QueuePending)
		if cerr != nil {
			err = cerr
			break
		}
		if !claimedRow {
			continue
		}
		claimed++
		g.Go(func() error {
			if m.run(ctx, row) {
				ok.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return claimed, int(ok.Load()), err
}

// DrainPending runs batches until no pending row is left and returns the
// number of successful transfers.
func (m *UploadManager) DrainPending(ctx context.Context, maxConcurrent int) (int, error) {
	total := 0
	for {
		claimed, n, err := m.processBatch(ctx, maxConcurrent)
		total += n
		if err != nil || claimed == 0 {
			return total, err
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

func (m *UploadManager) Failed(ctx context.Context) ([]*models.PendingAssetUpload, error) {
	return m.queue.ListFailed(ctx, models.MaxRetries)
}

// Retry re-attempts a failed row. It reports whether the transfer
// succeeded; a row that is no longer failed is not attempted.
func (m *UploadManager) Retry(ctx context.Context, row *models.PendingAssetUpload) (bool, error) {
	ok, err := m.queue.Claim(ctx, row.ID, models.QueueFailed)
	if err != nil || !ok {
		return false, err
	}
	return m.run(ctx, row), nil
}

func (m *UploadManager) Abandon(ctx context.Context, row *models.PendingAssetUpload) error {
	return m.queue.Delete(ctx, row.ID)
}

func (m *UploadManager) RecoverStale(ctx context.Context) (int64, error) {
	return m.queue.ResetInFlight(ctx)
}

// run transfers one claimed row and reports whether the upload was
// accepted and recorded. A failing reconcile hook does not undo that.
func (m *UploadManager) run(ctx context.Context, row *models.PendingAssetUpload) bool {
	backend, err := m.upload(ctx, row)
	if err != nil {
		if ctx.Err() == nil {
			m.fail(ctx, row, err)
		}
		return false
	}

	if err := m.queue.MarkCompleted(ctx, row.ID, backend); err != nil {
		m.log.Error(ctx, "failed to record upload", "filename", row.Filename, "error", err)
		return false
	}
	row.Status = models.QueueCompleted
	row.BackendFilename = backend
	m.log.Debug(ctx, "asset uploaded", "filename", row.Filename, "backend_filename", backend)

	if m.reconcile != nil {
		if err := m.reconcile(ctx, row); err != nil {
			m.log.Error(ctx, "failed to reconcile uploaded asset", "filename", row.Filename, "error", err)
		}
	}
	return true
}

func (m *UploadManager) upload(ctx context.Context, row *models.PendingAssetUpload) (string, error) {
	if !AllowedExtension(row.Filename) {
		return "", fmt.Errorf("%w: unsupported type %s", ErrInvalidFile, row.Filename)
	}

	f, err := os.Open(row.LocalPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", err
	}
	if !fi.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", ErrInvalidFile, row.LocalPath)
	}
	if m.maxBytes > 0 && fi.Size() > m.maxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrFileTooLarge, fi.Size())
	}

	return m.remote.UploadAsset(ctx, row.Filename, f)
}

func (m *UploadManager) fail(ctx context.Context, row *models.PendingAssetUpload, cause error) {
	count, err := m.queue.MarkFailed(ctx, row.ID, cause.Error())
	if err != nil {
		m.log.Error(ctx, "failed to record upload failure", "filename", row.Filename, "error", err)
		return
	}
	if count >= models.MaxRetries {
		if err := m.queue.Delete(ctx, row.ID); err != nil {
			m.log.Error(ctx, "failed to drop exhausted upload", "filename", row.Filename, "error", err)
		}
		m.log.Warn(ctx, "asset upload abandoned", "filename", row.Filename, "attempts", count, "error", cause)
		return
	}
	m.log.Warn(ctx, "asset upload failed", "filename", row.Filename, "attempts", count, "error", cause)
}
