package assets

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/dmitrijs2005/diarysync/internal/logging"
)

// BaseRetryDelay is multiplied by 2*retryCount between attempts.
const BaseRetryDelay = time.Second

var permanentFailures = []string{
	"unauthorized",
	"forbidden",
	"not found",
	"invalid file",
	"file too large",
}

// ShouldRetry reports whether a row that failed with lastError after count
// attempts deserves another try.
func ShouldRetry(lastError string, count int) bool {
	if count >= models.MaxRetries {
		return false
	}
	msg := strings.ToLower(lastError)
	for _, p := range permanentFailures {
		if strings.Contains(msg, p) {
			return false
		}
	}
	return true
}

// Delay is the wait before the next attempt of a row that failed count
// times.
func Delay(count int) time.Duration {
	return BaseRetryDelay * 2 * time.Duration(count)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryResult counts successful re-attempts per queue and abandoned rows.
type RetryResult struct {
	Downloads int
	Uploads   int
	Abandoned int
}

// RetryCoordinator revisits failed queue rows.
type RetryCoordinator struct {
	downloads *DownloadManager
	uploads   *UploadManager
	sleep     SleepFunc
	log       logging.Logger
}

func NewRetryCoordinator(d *DownloadManager, u *UploadManager, log logging.Logger) *RetryCoordinator {
	return &RetryCoordinator{
		downloads: d,
		uploads:   u,
		sleep:     sleepCtx,
		log:       log.With("component", "asset-retry"),
	}
}

// WithSleep replaces the backoff sleeper.
func (c *RetryCoordinator) WithSleep(fn SleepFunc) *RetryCoordinator {
	c.sleep = fn
	return c
}

// PerformIntelligentRetry abandons rows whose last error is permanent and
// re-attempts the rest after their backoff delay. Rows are handled one at a
// time.
func (c *RetryCoordinator) PerformIntelligentRetry(ctx context.Context) (RetryResult, error) {
	var res RetryResult

	failedDownloads, err := c.downloads.Failed(ctx)
	if err != nil {
		return res, err
	}
	for _, row := range failedDownloads {
		if !ShouldRetry(row.LastError, row.RetryCount) {
			if err := c.downloads.Abandon(ctx, row); err != nil {
				return res, err
			}
			res.Abandoned++
			c.log.Info(ctx, "download abandoned", "filename", row.Filename, "error", row.LastError)
			continue
		}
		if err := c.sleep(ctx, Delay(row.RetryCount)); err != nil {
			return res, err
		}
		ok, err := c.downloads.Retry(ctx, row)
		if err != nil {
			return res, err
		}
		if ok {
			res.Downloads++
		}
	}

	failedUploads, err := c.uploads.Failed(ctx)
	if err != nil {
		return res, err
	}
	for _, row := range failedUploads {
		if !ShouldRetry(row.LastError, row.RetryCount) {
			if err := c.uploads.Abandon(ctx, row); err != nil {
				return res, err
			}
			res.Abandoned++
			c.log.Info(ctx, "upload abandoned", "filename", row.Filename, "error", row.LastError)
			continue
		}
		if err := c.sleep(ctx, Delay(row.RetryCount)); err != nil {
			return res, err
		}
		ok, err := c.uploads.Retry(ctx, row)
		if err != nil {
			return res, err
		}
		if ok {
			res.Uploads++
		}
	}

	return res, nil
}
