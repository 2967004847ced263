package wallet_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/wallet"
	"github.com/xraph/wallet/account"
	"github.com/xraph/wallet/meter"
	"github.com/xraph/wallet/rate"
	"github.com/xraph/wallet/store"
	"github.com/xraph/wallet/store/memory"
	"github.com/xraph/wallet/types"
)

func newTestWallet(t *testing.T, opts ...wallet.Option) *wallet.Wallet {
	t.Helper()

	opts = append([]wallet.Option{
		wallet.WithMeterConfig(10, 20*time.Millisecond),
	}, opts...)
	w := wallet.New(memory.New(), opts...)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		_ = w.Stop()
	})
	return w
}

func TestCreateAccountSeedsGrant(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	acct, err := w.CreateAccount(ctx, "user-1")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if acct.Balance(account.PoolBuilder) != account.InitialBuilderGrant {
		t.Errorf("builder = %d, want %d", acct.Balance(account.PoolBuilder), account.InitialBuilderGrant)
	}
	if acct.Balance(account.PoolClaude) != 0 || acct.Balance(account.PoolGPT) != 0 {
		t.Error("native pools must start empty")
	}

	if _, err := w.CreateAccount(ctx, "user-1"); !errors.Is(err, wallet.ErrAccountExists) {
		t.Errorf("duplicate CreateAccount() error = %v, want ErrAccountExists", err)
	}
}

func TestCreateAccountGeneratesID(t *testing.T) {
	w := newTestWallet(t)

	acct, err := w.CreateAccount(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if acct.ID == "" {
		t.Fatal("expected a generated account ID")
	}
}

func TestConsumeFromNativePool(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	if _, err := w.CreateAccount(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Credit(ctx, "user-1", account.PoolClaude, 1000); err != nil {
		t.Fatal(err)
	}

	res, err := w.Consume(ctx, wallet.ConsumeRequest{
		AccountID:  "user-1",
		ModelID:    "claude-sonnet-4",
		TokensUsed: 600,
	})
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if res.Plan.SourcePool != account.PoolClaude || res.Plan.DebitedAmount != 600 {
		t.Errorf("plan = %+v, want claude/600", res.Plan)
	}
	if got := res.Snapshot.Balance(account.PoolClaude); got != 400 {
		t.Errorf("claude after = %d, want 400", got)
	}
	if got := res.Snapshot.Balance(account.PoolBuilder); got != account.InitialBuilderGrant {
		t.Errorf("builder after = %d, want untouched grant", got)
	}
	if res.Snapshot.TotalUsage != 600 {
		t.Errorf("TotalUsage = %d, want 600", res.Snapshot.TotalUsage)
	}
	if res.Snapshot.LastUsedAt == nil {
		t.Error("LastUsedAt not set")
	}
}

func TestConsumeFallsBackToBuilder(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	if _, err := w.CreateAccount(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}

	// Empty gpt pool, so the builder pool pays at the 15x multiplier.
	res, err := w.Consume(ctx, wallet.ConsumeRequest{
		AccountID:  "user-1",
		ModelID:    "gpt-4o",
		TokensUsed: 1000,
	})
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if res.Plan.SourcePool != account.PoolBuilder {
		t.Errorf("SourcePool = %q, want builder", res.Plan.SourcePool)
	}
	if want := types.Tokens(15000); res.Plan.DebitedAmount != want {
		t.Errorf("DebitedAmount = %d, want %d", res.Plan.DebitedAmount, want)
	}
	if got, want := res.Snapshot.Balance(account.PoolBuilder), account.InitialBuilderGrant-15000; got != want {
		t.Errorf("builder after = %d, want %d", got, want)
	}
}

func TestConsumeRejections(t *testing.T) {
	w := newTestWallet(t, wallet.WithInitialGrant(100))
	ctx := context.Background()

	if _, err := w.CreateAccount(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		req     wallet.ConsumeRequest
		wantErr error
	}{
		{"unknown model", wallet.ConsumeRequest{AccountID: "user-1", ModelID: "palm-2", TokensUsed: 1}, wallet.ErrUnknownModel},
		{"zero amount", wallet.ConsumeRequest{AccountID: "user-1", ModelID: "gpt-4o", TokensUsed: 0}, wallet.ErrInvalidAmount},
		{"insufficient", wallet.ConsumeRequest{AccountID: "user-1", ModelID: "gpt-4o", TokensUsed: 1000}, wallet.ErrInsufficientBalance},
		{"missing account", wallet.ConsumeRequest{AccountID: "ghost", ModelID: "gpt-4o", TokensUsed: 1}, wallet.ErrAccountNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := w.Consume(ctx, tt.req); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Consume() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// A rejected request must not change the balance.
	snap, err := w.Balance(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Balance(account.PoolBuilder) != 100 {
		t.Errorf("builder = %d after rejections, want 100", snap.Balance(account.PoolBuilder))
	}
	if snap.TotalUsage != 0 {
		t.Errorf("TotalUsage = %d after rejections, want 0", snap.TotalUsage)
	}
}

func TestConsumeIdempotency(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	if _, err := w.CreateAccount(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Credit(ctx, "user-1", account.PoolGPT, 1000); err != nil {
		t.Fatal(err)
	}

	req := wallet.ConsumeRequest{
		AccountID:      "user-1",
		ModelID:        "gpt-4o",
		TokensUsed:     300,
		IdempotencyKey: "req-abc",
	}

	first, err := w.Consume(ctx, req)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if first.Duplicate {
		t.Fatal("first delivery marked duplicate")
	}

	second, err := w.Consume(ctx, req)
	if err != nil {
		t.Fatalf("redelivered Consume() error = %v", err)
	}
	if !second.Duplicate {
		t.Fatal("redelivery not marked duplicate")
	}
	if second.Plan.DebitedAmount != first.Plan.DebitedAmount {
		t.Errorf("replayed debit = %d, want %d", second.Plan.DebitedAmount, first.Plan.DebitedAmount)
	}

	snap, _ := w.Balance(ctx, "user-1")
	if got := snap.Balance(account.PoolGPT); got != 700 {
		t.Errorf("gpt balance = %d after redelivery, want 700 (single debit)", got)
	}
}

func TestConcurrentConsumeNeverOverspends(t *testing.T) {
	w := newTestWallet(t, wallet.WithInitialGrant(0))
	ctx := context.Background()

	if _, err := w.CreateAccount(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}
	// Exactly enough gpt tokens for 10 of the 20 requests.
	if _, err := w.Credit(ctx, "user-1", account.PoolGPT, 1000); err != nil {
		t.Fatal(err)
	}

	const requests = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied, rejected := 0, 0

	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Consume(ctx, wallet.ConsumeRequest{
				AccountID:  "user-1",
				ModelID:    "gpt-4o",
				TokensUsed: 100,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied++
			case errors.Is(err, wallet.ErrInsufficientBalance):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if applied != 10 || rejected != 10 {
		t.Errorf("applied = %d rejected = %d, want 10/10", applied, rejected)
	}

	snap, _ := w.Balance(ctx, "user-1")
	if got := snap.Balance(account.PoolGPT); got != 0 {
		t.Errorf("gpt balance = %d, want 0", got)
	}
	if snap.TotalUsage != 1000 {
		t.Errorf("TotalUsage = %d, want 1000", snap.TotalUsage)
	}
}

func TestCredit(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	if _, err := w.CreateAccount(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}

	snap, err := w.Credit(ctx, "user-1", account.PoolClaude, 5000)
	if err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
	if snap.Balance(account.PoolClaude) != 5000 {
		t.Errorf("claude = %d, want 5000", snap.Balance(account.PoolClaude))
	}

	if _, err := w.Credit(ctx, "user-1", account.Pool("gold"), 10); !errors.Is(err, wallet.ErrUnknownPool) {
		t.Errorf("unknown pool Credit() error = %v, want ErrUnknownPool", err)
	}
	if _, err := w.Credit(ctx, "user-1", account.PoolClaude, -10); !errors.Is(err, wallet.ErrInvalidAmount) {
		t.Errorf("negative Credit() error = %v, want ErrInvalidAmount", err)
	}
}

func TestCreditConsumeRoundTrip(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	if _, err := w.CreateAccount(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}

	before, _ := w.Balance(ctx, "user-1")

	if _, err := w.Credit(ctx, "user-1", account.PoolGPT, 250); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Consume(ctx, wallet.ConsumeRequest{
		AccountID:  "user-1",
		ModelID:    "gpt-4o",
		TokensUsed: 250,
	}); err != nil {
		t.Fatal(err)
	}

	after, _ := w.Balance(ctx, "user-1")
	if got, want := after.Balance(account.PoolGPT), before.Balance(account.PoolGPT); got != want {
		t.Errorf("gpt balance = %d after round trip, want %d", got, want)
	}
	if got, want := after.Balance(account.PoolBuilder), before.Balance(account.PoolBuilder); got != want {
		t.Errorf("builder balance = %d after round trip, want %d", got, want)
	}
}

func TestUsageJournalRecordsDebits(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	if _, err := w.CreateAccount(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}

	if _, err := w.Consume(ctx, wallet.ConsumeRequest{
		AccountID:  "user-1",
		ModelID:    "claude-opus-4",
		TokensUsed: 40,
	}); err != nil {
		t.Fatal(err)
	}

	// Journal writes are batched; wait for the flush worker.
	deadline := time.Now().Add(2 * time.Second)
	var events []*meter.UsageEvent
	for time.Now().Before(deadline) {
		var err error
		events, err = w.Usage(ctx, "user-1", meter.QueryOpts{})
		if err != nil {
			t.Fatalf("Usage() error = %v", err)
		}
		if len(events) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if len(events) != 1 {
		t.Fatalf("journal has %d events, want 1", len(events))
	}
	e := events[0]
	if e.ModelID != "claude-opus-4" || e.TokensUsed != 40 {
		t.Errorf("event = %+v", e)
	}
	if e.SourcePool != account.PoolBuilder || e.TokensDebited != 1000 {
		t.Errorf("event debit = %s/%d, want builder/1000", e.SourcePool, e.TokensDebited)
	}
}

func TestSubscribeReceivesOrderedSnapshots(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	if _, err := w.CreateAccount(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var versions []int64
	subID := w.Subscribe("user-1", func(snap account.Snapshot) {
		mu.Lock()
		versions = append(versions, snap.Version)
		mu.Unlock()
	})
	defer w.Unsubscribe(subID)

	for i := 0; i < 5; i++ {
		if _, err := w.Consume(ctx, wallet.ConsumeRequest{
			AccountID:  "user-1",
			ModelID:    "gpt-4o",
			TokensUsed: 10,
		}); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(versions)
		mu.Unlock()
		if n >= 5 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(versions) < 5 {
		t.Fatalf("received %d snapshots, want at least 5", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] < versions[i-1] {
			t.Fatalf("snapshot version %d delivered after %d", versions[i], versions[i-1])
		}
	}
}

func TestCustomRates(t *testing.T) {
	table := rate.NewTable(map[string]rate.Entry{
		"mini": {Multiplier: 2, NativePool: "gpt"},
	})
	w := newTestWallet(t, wallet.WithRates(table))
	ctx := context.Background()

	if _, err := w.CreateAccount(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}

	res, err := w.Consume(ctx, wallet.ConsumeRequest{
		AccountID:  "user-1",
		ModelID:    "mini",
		TokensUsed: 50,
	})
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if res.Plan.DebitedAmount != 100 {
		t.Errorf("DebitedAmount = %d, want 100", res.Plan.DebitedAmount)
	}

	// Models from the default table are gone.
	if _, err := w.Consume(ctx, wallet.ConsumeRequest{
		AccountID:  "user-1",
		ModelID:    "gpt-4o",
		TokensUsed: 1,
	}); !errors.Is(err, wallet.ErrUnknownModel) {
		t.Errorf("Consume(gpt-4o) error = %v, want ErrUnknownModel", err)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	w := wallet.New(memory.New())
	ctx := context.Background()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := w.Start(ctx); !errors.Is(err, wallet.ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := w.Stop(); !errors.Is(err, wallet.ErrNotStarted) {
		t.Errorf("second Stop() error = %v, want ErrNotStarted", err)
	}
}

// conflictStore wraps the memory store and fails ApplyMutation with
// ErrConflict a configured number of times before delegating. The
// memory store itself serializes writers, so version races have to be
// injected to exercise the engine's retry loop.
type conflictStore struct {
	*memory.Store

	mu        sync.Mutex
	conflicts int
	calls     int
}

func (s *conflictStore) ApplyMutation(ctx context.Context, accountID string, fn store.Mutation) (*account.Account, error) {
	s.mu.Lock()
	s.calls++
	fail := s.conflicts > 0
	if fail {
		s.conflicts--
	}
	s.mu.Unlock()

	if fail {
		return nil, wallet.ErrConflict
	}
	return s.Store.ApplyMutation(ctx, accountID, fn)
}

func (s *conflictStore) arm(conflicts int) {
	s.mu.Lock()
	s.conflicts = conflicts
	s.calls = 0
	s.mu.Unlock()
}

func (s *conflictStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestConsumeRetriesVersionConflicts(t *testing.T) {
	st := &conflictStore{Store: memory.New()}
	w := wallet.New(st,
		wallet.WithMeterConfig(10, 20*time.Millisecond),
		wallet.WithConflictRetry(4, 0),
	)
	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })

	if _, err := w.CreateAccount(ctx, "acct-1"); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	// Three version races, then the fourth attempt commits.
	st.arm(3)
	res, err := w.Consume(ctx, wallet.ConsumeRequest{
		AccountID: "acct-1", ModelID: "gpt-4o", TokensUsed: 10,
	})
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if res.Plan.Outcome != wallet.DebitApplied {
		t.Errorf("Outcome = %q, want %q", res.Plan.Outcome, wallet.DebitApplied)
	}
	if got := st.callCount(); got != 4 {
		t.Errorf("ApplyMutation calls = %d, want 4", got)
	}

	// One more race than the retry budget surfaces the conflict.
	st.arm(4)
	if _, err := w.Consume(ctx, wallet.ConsumeRequest{
		AccountID: "acct-1", ModelID: "gpt-4o", TokensUsed: 10,
	}); !errors.Is(err, wallet.ErrConflict) {
		t.Fatalf("Consume() error = %v, want ErrConflict", err)
	}
	if got := st.callCount(); got != 4 {
		t.Errorf("ApplyMutation calls = %d, want 4 (retry budget exhausted)", got)
	}
}
