package assets

import (
	"context"
	"io"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/dmitrijs2005/diarysync/internal/client/repositories/assets"
	"github.com/dmitrijs2005/diarysync/internal/client/repositories/downloads"
	"github.com/dmitrijs2005/diarysync/internal/logging"
)

// DefaultMaxConcurrent bounds parallel transfers when callers pass zero.
const DefaultMaxConcurrent = 3

// Downloader fetches asset bytes from the backend.
type Downloader interface {
	DownloadAsset(ctx context.Context, filename string) (io.ReadCloser, error)
}

// DownloadManager drains the download queue into the local store.
type DownloadManager struct {
	assets assets.Repository
	queue  downloads.Repository
	remote Downloader
	files  *LocalStore
	log    logging.Logger
}

func NewDownloadManager(a assets.Repository, q downloads.Repository, remote Downloader, files *LocalStore, log logging.Logger) *DownloadManager {
	return &DownloadManager{
		assets: a,
		queue:  q,
		remote: remote,
		files:  files,
		log:    log.With("component", "downloads"),
	}
}

// ProcessPending claims up to maxConcurrent pending rows, oldest first, and
// downloads them in parallel. It returns how many transfers succeeded.
// Per-row failures end up in row state, not in the returned error.
func (m *DownloadManager) ProcessPending(ctx context.Context, maxConcurrent int) (int, error) {
	_, ok, err := m.processBatch(ctx, maxConcurrent)
	return ok, err
}

func (m *DownloadManager) processBatch(ctx context.Context, maxConcurrent int) (claimed, succeeded int, err error) {
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
func (m *DownloadManager) DrainPending(ctx context.Context, maxConcurrent int) (int, error) {
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

// Failed returns failed rows that still have attempts left.
func (m *DownloadManager) Failed(ctx context.Context) ([]*models.PendingAssetDownload, error) {
	return m.queue.ListFailed(ctx, models.MaxRetries)
}

// Retry re-attempts a failed row. It reports whether the transfer
// succeeded; a row that is no longer failed is not attempted.
func (m *DownloadManager) Retry(ctx context.Context, row *models.PendingAssetDownload) (bool, error) {
	ok, err := m.queue.Claim(ctx, row.ID, models.QueueFailed)
	if err != nil || !ok {
		return false, err
	}
	return m.run(ctx, row), nil
}

// Abandon drops a row for good. The asset stays failed.
func (m *DownloadManager) Abandon(ctx context.Context, row *models.PendingAssetDownload) error {
	if err := m.assets.SetStatus(ctx, row.Filename, models.AssetFailed); err != nil {
		return err
	}
	return m.queue.Delete(ctx, row.ID)
}

// RecoverStale returns rows left in downloading by a dead process to
// pending.
func (m *DownloadManager) RecoverStale(ctx context.Context) (int64, error) {
	return m.queue.ResetInFlight(ctx)
}

// run transfers one claimed row and reports whether it succeeded.
func (m *DownloadManager) run(ctx context.Context, row *models.PendingAssetDownload) bool {
	err := m.download(ctx, row)
	if err == nil {
		m.log.Debug(ctx, "asset downloaded", "filename", row.Filename)
		return true
	}
	if ctx.Err() != nil {
		// cancelled mid-transfer; RecoverStale picks the row up
		return false
	}
	m.fail(ctx, row, err)
	return false
}

func (m *DownloadManager) download(ctx context.Context, row *models.PendingAssetDownload) error {
	if err := m.assets.SetStatus(ctx, row.Filename, models.AssetDownloading); err != nil {
		return err
	}

	body, err := m.remote.DownloadAsset(ctx, row.Filename)
	if err != nil {
		return err
	}
	defer body.Close()

	path, err := m.files.Write(row.Filename, body)
	if err != nil {
		return err
	}

	tracked, err := m.assets.MarkCompleted(ctx, row.Filename, path)
	if err != nil {
		return err
	}
	if !tracked {
		// untracked while in flight
		_ = m.files.Remove(row.Filename)
	}
	return m.queue.Delete(ctx, row.ID)
}

func (m *DownloadManager) fail(ctx context.Context, row *models.PendingAssetDownload, cause error) {
	count, err := m.queue.MarkFailed(ctx, row.ID, cause.Error())
	if err != nil {
		m.log.Error(ctx, "failed to record download failure", "filename", row.Filename, "error", err)
		return
	}
	if err := m.assets.SetStatus(ctx, row.Filename, models.AssetFailed); err != nil {
		m.log.Error(ctx, "failed to mark asset failed", "filename", row.Filename, "error", err)
	}

	if count >= models.MaxRetries {
		if err := m.queue.Delete(ctx, row.ID); err != nil {
			m.log.Error(ctx, "failed to drop exhausted download", "filename", row.Filename, "error", err)
		}
		m.log.Warn(ctx, "asset download abandoned", "filename", row.Filename, "attempts", count, "error", cause)
		return
	}
	m.log.Warn(ctx, "asset download failed", "filename", row.Filename, "attempts", count, "error", cause)
}
