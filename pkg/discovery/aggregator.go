// Package discovery merges a transport's raw discovery stream into the
// single ordered device list the coordinator publishes.
package discovery

import (
	"context"
	"sync"

	"github.com/nearbeam/nearbeam/pkg/peer"
	"github.com/nearbeam/nearbeam/pkg/transport"
)

// Aggregator de-duplicates discovery events by peer identity while
// preserving first-sighting order. A repeated identity updates the stored
// entry in place without reordering; the list restarts empty on Reset for
// each new discovery run.
type Aggregator struct {
	mu    sync.Mutex
	order []string
	byID  map[string]peer.Peer
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{byID: make(map[string]peer.Peer)}
}

// Reset clears all discovered peers.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.order = a.order[:0]
	a.byID = make(map[string]peer.Peer)
}

// Add merges one sighting. It reports whether the device list changed,
// i.e. the identity is new or its attributes differ from the stored entry.
func (a *Aggregator) Add(p peer.Peer) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing, seen := a.byID[p.Identity]
	if !seen {
		a.order = append(a.order, p.Identity)
		a.byID[p.Identity] = p
		return true
	}
	if samePeer(existing, p) {
		return false
	}
	a.byID[p.Identity] = p
	return true
}

// Peers returns a snapshot of the device list in first-sighting order.
// The returned slice is owned by the caller.
func (a *Aggregator) Peers() []peer.Peer {
	a.mu.Lock()
	defer a.mu.Unlock()

	snapshot := make([]peer.Peer, 0, len(a.order))
	for _, id := range a.order {
		snapshot = append(snapshot, a.byID[id])
	}
	return snapshot
}

// Find returns the stored peer for an identity.
func (a *Aggregator) Find(identity string) (peer.Peer, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.byID[identity]
	return p, ok
}

// Run consumes a discovery stream until it closes or ctx is cancelled,
// invoking onUpdate with a fresh snapshot whenever the device list
// changes. A stream error terminates the run and is returned.
func (a *Aggregator) Run(ctx context.Context, events <-chan transport.Event, onUpdate func([]peer.Peer)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Err != nil {
				return ev.Err
			}
			if a.Add(ev.Peer) {
				onUpdate(a.Peers())
			}
		}
	}
}

// samePeer compares every attribute, not just identity. Identity equality
// decides de-duplication; attribute equality decides whether an update is
// worth re-emitting.
func samePeer(a, b peer.Peer) bool {
	return a.Identity == b.Identity &&
		a.DisplayName == b.DisplayName &&
		a.Medium == b.Medium &&
		a.Connected == b.Connected &&
		a.Port == b.Port &&
		a.Addr.Equal(b.Addr)
}
