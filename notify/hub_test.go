package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/xraph/wallet/account"
	"github.com/xraph/wallet/types"
)

func snapshotAt(accountID string, version int64, builder types.Tokens) account.Snapshot {
	return account.Snapshot{
		AccountID: accountID,
		Pools:     map[account.Pool]types.Tokens{account.PoolBuilder: builder},
		Version:   version,
		At:        time.Now().UTC(),
	}
}

func TestHubDeliversInOrder(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	var mu sync.Mutex
	var versions []int64
	hub.Subscribe("acct-1", func(snap account.Snapshot) {
		mu.Lock()
		versions = append(versions, snap.Version)
		mu.Unlock()
	})

	for v := int64(1); v <= 5; v++ {
		hub.Publish(snapshotAt("acct-1", v, types.Tokens(1000*v)))
	}
	hub.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(versions) != 5 {
		t.Fatalf("delivered %d snapshots, want 5", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] < versions[i-1] {
			t.Fatalf("snapshot %d (version %d) delivered after version %d", i, versions[i], versions[i-1])
		}
	}
}

func TestHubDropsStaleSnapshots(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	var mu sync.Mutex
	var versions []int64
	hub.Subscribe("acct-1", func(snap account.Snapshot) {
		mu.Lock()
		versions = append(versions, snap.Version)
		mu.Unlock()
	})

	hub.Publish(snapshotAt("acct-1", 3, 900))
	hub.Publish(snapshotAt("acct-1", 2, 950)) // stale, must be dropped
	hub.Publish(snapshotAt("acct-1", 3, 900)) // redelivery of same version is allowed
	hub.Close()

	mu.Lock()
	defer mu.Unlock()
	for _, v := range versions {
		if v < 3 {
			t.Fatalf("stale snapshot version %d was delivered", v)
		}
	}
	if len(versions) == 0 {
		t.Fatal("no snapshots delivered")
	}
}

func TestHubRoutesByAccount(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	var mu sync.Mutex
	got := map[string]int{}
	for _, acct := range []string{"acct-1", "acct-2"} {
		acct := acct
		hub.Subscribe(acct, func(snap account.Snapshot) {
			mu.Lock()
			got[acct]++
			if snap.AccountID != acct {
				t.Errorf("subscription for %s received snapshot for %s", acct, snap.AccountID)
			}
			mu.Unlock()
		})
	}

	hub.Publish(snapshotAt("acct-1", 1, 100))
	hub.Publish(snapshotAt("acct-1", 2, 90))
	hub.Publish(snapshotAt("acct-2", 1, 100))
	hub.Close()

	mu.Lock()
	defer mu.Unlock()
	if got["acct-1"] != 2 || got["acct-2"] != 1 {
		t.Errorf("deliveries = %v, want acct-1:2 acct-2:1", got)
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	delivered := make(chan account.Snapshot, 8)
	subID := hub.Subscribe("acct-1", func(snap account.Snapshot) {
		delivered <- snap
	})

	hub.Publish(snapshotAt("acct-1", 1, 100))
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("first snapshot never delivered")
	}

	hub.Unsubscribe(subID)
	if n := hub.SubscriberCount("acct-1"); n != 0 {
		t.Fatalf("SubscriberCount = %d after unsubscribe, want 0", n)
	}

	hub.Publish(snapshotAt("acct-1", 2, 90))
	select {
	case snap := <-delivered:
		t.Fatalf("received snapshot version %d after unsubscribe", snap.Version)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	block := make(chan struct{})
	hub.Subscribe("acct-1", func(account.Snapshot) {
		<-block
	})

	done := make(chan struct{})
	go func() {
		for v := int64(1); v <= int64(defaultQueueDepth)*3; v++ {
			hub.Publish(snapshotAt("acct-1", v, 100))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	close(block)
}

func TestHubCloseIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	hub.Subscribe("acct-1", func(account.Snapshot) {})
	hub.Close()
	hub.Close()
	hub.Publish(snapshotAt("acct-1", 1, 100)) // must not panic
}
