// Package session provides a cached read view of one account's balance,
// kept current by the wallet's snapshot stream.
package session

import (
	"sync"

	"github.com/xraph/wallet/account"
	"github.com/xraph/wallet/id"
)

// Subscriber is the part of the wallet engine a view needs. The engine
// satisfies it directly.
type Subscriber interface {
	Subscribe(accountID string, fn func(account.Snapshot)) id.ObserverID
	Unsubscribe(subID id.ObserverID)
}

// View caches the latest balance snapshot for one account so callers on
// the request path can read balances without touching the store. Reads
// are non-blocking and may be one update behind the store.
type View struct {
	accountID string
	source    Subscriber
	subID     id.ObserverID

	mu      sync.RWMutex
	current account.Snapshot
	primed  bool
	closed  bool
}

// NewView subscribes to the account's snapshot stream. If seed is
// non-nil it becomes the initial cached snapshot, so callers see a
// balance before the first published update arrives.
func NewView(source Subscriber, accountID string, seed *account.Snapshot) *View {
	v := &View{accountID: accountID, source: source}
	if seed != nil {
		v.current = *seed
		v.primed = true
	}
	v.subID = source.Subscribe(accountID, v.absorb)
	return v
}

func (v *View) absorb(snap account.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if v.primed && snap.Version < v.current.Version {
		return
	}
	v.current = snap
	v.primed = true
}

// Snapshot returns the cached snapshot. The second return is false
// until the view has seen at least one snapshot.
func (v *View) Snapshot() (account.Snapshot, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current, v.primed
}

// Balance returns the cached balance of one pool. Zero when the view
// is not yet primed.
func (v *View) Balance(p account.Pool) int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.primed {
		return 0
	}
	return v.current.Balance(p).Int64()
}

// AccountID returns the account this view follows.
func (v *View) AccountID() string { return v.accountID }

// Close tears down the subscription. The last cached snapshot remains
// readable.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()
	v.source.Unsubscribe(v.subID)
}
