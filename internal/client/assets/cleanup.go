package assets

import (
	"context"
	"slices"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/dmitrijs2005/diarysync/internal/client/storage"
	"github.com/dmitrijs2005/diarysync/internal/logging"
)

// CleanupReport counts what a cleanup run removed.
type CleanupReport struct {
	Orphans   int
	Exhausted int64
	Completed int64
}

// Empty reports whether the run removed nothing.
func (r CleanupReport) Empty() bool {
	return r.Orphans == 0 && r.Exhausted == 0 && r.Completed == 0
}

// CleanupService removes assets and queue rows nothing needs any more.
// Every operation is idempotent.
type CleanupService struct {
	repos   *storage.Repositories
	tracker *Tracker
	log     logging.Logger
}

func NewCleanupService(repos *storage.Repositories, tracker *Tracker, log logging.Logger) *CleanupService {
	return &CleanupService{repos: repos, tracker: tracker, log: log.With("component", "asset-cleanup")}
}

// CleanupDeletedEntry removes everything owned by a deleted entry.
func (s *CleanupService) CleanupDeletedEntry(ctx context.Context, key models.EntryKey) error {
	return s.tracker.PurgeOwner(ctx, key)
}

// SweepOrphans removes assets whose owning entry is gone or whose body no
// longer references them.
func (s *CleanupService) SweepOrphans(ctx context.Context) (int, error) {
	tracked, err := s.repos.Assets.List(ctx)
	if err != nil {
		return 0, err
	}

	refs := map[models.EntryKey][]string{}
	removed := 0
	for _, a := range tracked {
		names, ok := refs[a.Owner]
		if !ok {
			e, err := s.repos.Entries.Get(ctx, a.Owner)
			if err != nil {
				return removed, err
			}
			if e != nil {
				names = ExtractReferences(e.Body)
			}
			refs[a.Owner] = names
		}

		if _, found := slices.BinarySearch(names, a.Filename); found {
			continue
		}
		if err := s.tracker.forget(ctx, a.Filename); err != nil {
			return removed, err
		}
		removed++
		s.log.Debug(ctx, "orphan asset removed", "filename", a.Filename, "entry", a.Owner.String())
	}
	return removed, nil
}

// SweepExhausted drops failed rows that reached the retry ceiling.
func (s *CleanupService) SweepExhausted(ctx context.Context) (int64, error) {
	d, err := s.repos.Downloads.DeleteExhausted(ctx, models.MaxRetries)
	if err != nil {
		return 0, err
	}
	u, err := s.repos.Uploads.DeleteExhausted(ctx, models.MaxRetries)
	if err != nil {
		return d, err
	}
	return d + u, nil
}

// SweepCompleted drops completed queue rows.
func (s *CleanupService) SweepCompleted(ctx context.Context) (int64, error) {
	d, err := s.repos.Downloads.DeleteCompleted(ctx)
	if err != nil {
		return 0, err
	}
	u, err := s.repos.Uploads.DeleteCompleted(ctx)
	if err != nil {
		return d, err
	}
	return d + u, nil
}

// Run performs every sweep.
func (s *CleanupService) Run(ctx context.Context) (CleanupReport, error) {
	var rep CleanupReport
	var err error

	if rep.Orphans, err = s.SweepOrphans(ctx); err != nil {
		return rep, err
	}
	if rep.Exhausted, err = s.SweepExhausted(ctx); err != nil {
		return rep, err
	}
	if rep.Completed, err = s.SweepCompleted(ctx); err != nil {
		return rep, err
	}

	if !rep.Empty() {
		s.log.Info(ctx, "asset cleanup finished",
			"orphans", rep.Orphans, "exhausted", rep.Exhausted, "completed", rep.Completed)
	}
	return rep, nil
}
