package scheduler

import (
	"context"
)

// Pinger probes the server. Any answer counts as reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Online reports the result of the latest probe.
func (s *Scheduler) Online() bool {
	return s.online.Load()
}

// checkOnline probes once. An offline to online transition triggers an
// entry pass and an asset pass.
func (s *Scheduler) checkOnline(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
	err := s.probe.Ping(pctx)
	cancel()

	if ctx.Err() != nil {
		return
	}

	online := err == nil
	was := s.online.Swap(online)
	switch {
	case online && !was:
		s.log.Info(ctx, "server reachable, syncing")
		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			s.RunEntrySync(ctx)
		}()
		go func() {
			defer s.wg.Done()
			s.RunAssetSync(ctx)
		}()
	case !online && was:
		s.log.Warn(ctx, "server unreachable, working offline", "error", err)
	}
}
