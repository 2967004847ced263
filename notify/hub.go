// Package notify delivers ordered balance snapshots to subscribers.
//
// Delivery is at-least-once per subscription: a subscriber may see the
// same snapshot twice after a republish, but never an older snapshot
// after a newer one for the same account.
package notify

import (
	"log/slog"
	"sync"

	"github.com/xraph/wallet/account"
	"github.com/xraph/wallet/id"
)

// Handler receives balance snapshots for one subscription. Handlers run
// on the subscription's own goroutine, so a slow handler delays only
// its own subscription.
type Handler func(snap account.Snapshot)

const defaultQueueDepth = 64

type subscription struct {
	id      id.ObserverID
	account string
	queue   chan account.Snapshot
	done    chan struct{}

	mu       sync.Mutex
	lastSeen int64
}

// Hub fans balance snapshots out to subscribers. Each subscription gets
// a dedicated FIFO queue and delivery goroutine; a version guard drops
// snapshots older than the last one queued for that subscription.
type Hub struct {
	mu     sync.RWMutex
	subs   map[id.ObserverID]*subscription
	closed bool
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewHub creates a hub. A nil logger falls back to slog.Default().
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[id.ObserverID]*subscription),
		logger: logger,
	}
}

// Subscribe registers a handler for one account's snapshots and returns
// the subscription ID used to unsubscribe.
func (h *Hub) Subscribe(accountID string, fn Handler) id.ObserverID {
	sub := &subscription{
		id:      id.NewObserverID(),
		account: accountID,
		queue:   make(chan account.Snapshot, defaultQueueDepth),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return sub.id
	}
	h.subs[sub.id] = sub
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case snap := <-sub.queue:
				fn(snap)
			case <-sub.done:
				// Drain what was queued before shutdown so the
				// subscriber's last view is the newest published.
				for {
					select {
					case snap := <-sub.queue:
						fn(snap)
					default:
						return
					}
				}
			}
		}
	}()

	return sub.id
}

// Unsubscribe removes a subscription. It is safe to call with an
// unknown or already-removed ID.
func (h *Hub) Unsubscribe(subID id.ObserverID) {
	h.mu.Lock()
	sub, ok := h.subs[subID]
	if ok {
		delete(h.subs, subID)
	}
	h.mu.Unlock()

	if ok {
		close(sub.done)
	}
}

// Publish enqueues a snapshot for every subscription on the snapshot's
// account. Snapshots whose version is older than the last queued one
// are dropped; equal versions are redelivered. If a subscription's
// queue is full the oldest pending snapshot is evicted, which preserves
// ordering while keeping Publish non-blocking.
func (h *Hub) Publish(snap account.Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}

	for _, sub := range h.subs {
		if sub.account != snap.AccountID {
			continue
		}

		sub.mu.Lock()
		if snap.Version < sub.lastSeen {
			sub.mu.Unlock()
			continue
		}
		sub.lastSeen = snap.Version

		for {
			select {
			case sub.queue <- snap:
			default:
				select {
				case <-sub.queue:
					h.logger.Warn("notify: subscription queue full, evicting oldest snapshot",
						"subscription", sub.id.String(),
						"account", snap.AccountID)
				default:
				}
				continue
			}
			break
		}
		sub.mu.Unlock()
	}
}

// SubscriberCount returns the number of active subscriptions for an
// account.
func (h *Hub) SubscriberCount(accountID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, sub := range h.subs {
		if sub.account == accountID {
			n++
		}
	}
	return n
}

// Close stops all subscriptions and waits for their delivery goroutines
// to drain. Publish after Close is a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[id.ObserverID]*subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
	h.wg.Wait()
}
