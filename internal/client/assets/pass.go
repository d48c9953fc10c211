package assets

import (
	"context"
	"errors"
)

// PassResult summarizes one asset sync pass.
type PassResult struct {
	Downloaded int
	Uploaded   int
	Retry      RetryResult
}

// Pass is the periodic asset job: drain downloads, drain uploads, then
// revisit failures.
type Pass struct {
	downloads     *DownloadManager
	uploads       *UploadManager
	retry         *RetryCoordinator
	maxConcurrent int
}

func NewPass(d *DownloadManager, u *UploadManager, r *RetryCoordinator, maxConcurrent int) *Pass {
	return &Pass{downloads: d, uploads: u, retry: r, maxConcurrent: maxConcurrent}
}

// Run performs the pass. A failing stage does not stop the later ones
// unless ctx is done.
func (p *Pass) Run(ctx context.Context) (PassResult, error) {
	var res PassResult
	var errs []error

	n, err := p.downloads.DrainPending(ctx, p.maxConcurrent)
	res.Downloaded = n
	if err != nil {
		errs = append(errs, err)
	}
	if ctx.Err() != nil {
		return res, errors.Join(errs...)
	}

	n, err = p.uploads.DrainPending(ctx, p.maxConcurrent)
	res.Uploaded = n
	if err != nil {
		errs = append(errs, err)
	}
	if ctx.Err() != nil {
		return res, errors.Join(errs...)
	}

	res.Retry, err = p.retry.PerformIntelligentRetry(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	return res, errors.Join(errs...)
}
