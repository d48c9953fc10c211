// Package status broadcasts sync status snapshots to observers.
package status

import (
	"sync"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
)

// Publisher holds the current SyncStatus and fans updates out to
// subscribers. Each subscriber channel has room for one snapshot; a slow
// reader only ever sees the latest one.
type Publisher struct {
	mu      sync.Mutex
	current models.SyncStatus
	subs    map[chan models.SyncStatus]struct{}
	closed  bool
}

func NewPublisher() *Publisher {
	return &Publisher{
		current: models.SyncStatus{Phase: models.PhaseIdle},
		subs:    make(map[chan models.SyncStatus]struct{}),
	}
}

// Current returns the latest snapshot.
func (p *Publisher) Current() models.SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Subscribe returns a channel primed with the current snapshot. The
// channel is closed by Unsubscribe or Close.
func (p *Publisher) Subscribe() <-chan models.SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan models.SyncStatus, 1)
	if p.closed {
		close(ch)
		return ch
	}
	ch <- p.current
	p.subs[ch] = struct{}{}
	return ch
}

func (p *Publisher) Unsubscribe(ch <-chan models.SyncStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for c := range p.subs {
		if c == ch {
			delete(p.subs, c)
			close(c)
			return
		}
	}
}

// Publish replaces the current snapshot and notifies subscribers without
// blocking.
func (p *Publisher) Publish(s models.SyncStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publishLocked(s)
}

// Update applies fn to a copy of the current snapshot and publishes it.
// fn runs under the publisher lock and must not call back into p.
func (p *Publisher) Update(fn func(*models.SyncStatus)) models.SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.current
	fn(&s)
	p.publishLocked(s)
	return s
}

func (p *Publisher) publishLocked(s models.SyncStatus) {
	if p.closed {
		return
	}
	p.current = s
	for ch := range p.subs {
		select {
		case ch <- s:
		default:
			// drop the stale snapshot
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for ch := range p.subs {
		close(ch)
	}
	p.subs = nil
}
