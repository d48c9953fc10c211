// Package conflict decides between a dirty local entry and an incoming
// remote change.
//
// The policy is recency based: a remote change stamped within RecentWindow
// of the local clock wins, anything older loses to the local edit. A remote
// deletion never removes a local edit. Timestamps from the future count as
// recent, so a server clock running ahead of the device favours the remote
// side.
package conflict

import (
	"errors"
	"fmt"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/dmitrijs2005/diarysync/internal/clock"
)

// RecentWindow is how fresh a remote change must be to override a local
// edit.
const RecentWindow = time.Hour

// ErrConflictDetected marks a resolution that overrode or kept back one
// side. It is informational and only logged.
var ErrConflictDetected = errors.New("sync conflict detected")

// Resolution is the outcome of Resolve. Winner is the entry to persist;
// for KeepLocal it is the local entry unchanged.
type Resolution struct {
	Decision models.Decision
	Winner   *models.DiaryEntry
	Message  string
	Err      error
}

type Resolver struct {
	clock clock.Clock
}

func NewResolver(c clock.Clock) *Resolver {
	return &Resolver{clock: c}
}

// Resolve picks a side. local must be the dirty local copy of the entry
// remote targets.
func (r *Resolver) Resolve(local *models.DiaryEntry, remote *models.SyncChange) Resolution {
	if remote.Operation == models.OperationDeleted {
		return Resolution{
			Decision: models.KeepLocal,
			Winner:   local,
			Message:  fmt.Sprintf("remote delete (change %d) ignored: local edit pending", remote.ID),
			Err:      ErrConflictDetected,
		}
	}

	age := r.clock.Now().Sub(remote.ServerTimestamp)
	if age <= RecentWindow {
		winner, err := remote.ToEntry()
		if err != nil {
			return Resolution{Decision: models.KeepLocal, Winner: local, Message: err.Error(), Err: err}
		}
		winner.LocalVersion = local.LocalVersion
		return Resolution{
			Decision: models.KeepRemote,
			Winner:   winner,
			Message:  fmt.Sprintf("remote change %d is recent (%s old), overriding local edit", remote.ID, age.Round(time.Second)),
			Err:      ErrConflictDetected,
		}
	}

	return Resolution{
		Decision: models.KeepLocal,
		Winner:   local,
		Message:  fmt.Sprintf("remote change %d is stale (%s old), keeping local edit", remote.ID, age.Round(time.Second)),
		Err:      ErrConflictDetected,
	}
}

// Patch returns a diff-match-patch text that turns winner into loser, so
// the overwritten body can be reconstructed from the stored winner.
func Patch(winner, loser string) string {
	dmp := diffmatchpatch.New()
	return dmp.PatchToText(dmp.PatchMake(winner, loser))
}

// ApplyPatch reverses Patch. It reports false if any hunk failed to apply.
func ApplyPatch(winner, patch string) (string, bool, error) {
	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(patch)
	if err != nil {
		return "", false, fmt.Errorf("parsing conflict patch: %w", err)
	}
	out, applied := dmp.PatchApply(patches, winner)
	for _, ok := range applied {
		if !ok {
			return out, false, nil
		}
	}
	return out, true, nil
}
