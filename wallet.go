package wallet

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/wallet/account"
	"github.com/xraph/wallet/id"
	"github.com/xraph/wallet/meter"
	"github.com/xraph/wallet/notify"
	"github.com/xraph/wallet/plugin"
	"github.com/xraph/wallet/rate"
	"github.com/xraph/wallet/store"
	"github.com/xraph/wallet/types"
)

// Wallet is the prepaid usage engine. It owns the debit pipeline:
// idempotency receipts, optimistic-concurrency account mutations, the
// usage journal and the balance snapshot stream.
type Wallet struct {
	store   store.Store
	plugins *plugin.Registry
	hub     *notify.Hub
	rates   *rate.Table
	logger  *slog.Logger

	// Background workers
	meterBuffer chan *meter.UsageEvent
	stopChan    chan struct{}
	wg          sync.WaitGroup

	// Configuration
	meterBatchSize     int
	meterFlushInterval time.Duration
	receiptWindow      time.Duration
	receiptPurgeEvery  time.Duration
	initialGrant       types.Tokens
	conflictRetries    int
	conflictBackoff    time.Duration

	mu      sync.Mutex
	started bool
}

// New creates a new Wallet instance.
func New(s store.Store, opts ...Option) *Wallet {
	w := &Wallet{
		store:              s,
		plugins:            plugin.NewRegistry(),
		logger:             slog.Default(),
		rates:              rate.Default(),
		meterBuffer:        make(chan *meter.UsageEvent, 10000),
		stopChan:           make(chan struct{}),
		meterBatchSize:     100,
		meterFlushInterval: 5 * time.Second,
		receiptWindow:      24 * time.Hour,
		receiptPurgeEvery:  time.Hour,
		initialGrant:       account.InitialBuilderGrant,
		conflictRetries:    5,
		conflictBackoff:    10 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(w)
	}

	w.hub = notify.NewHub(w.logger)
	return w
}

// Option configures a Wallet instance.
type Option func(*Wallet)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Wallet) {
		w.logger = logger
		w.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(w *Wallet) {
		_ = w.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithRates replaces the default exchange-rate table.
func WithRates(t *rate.Table) Option {
	return func(w *Wallet) {
		if t != nil {
			w.rates = t
		}
	}
}

// WithMeterConfig configures usage journal batching.
func WithMeterConfig(batchSize int, flushInterval time.Duration) Option {
	return func(w *Wallet) {
		w.meterBatchSize = batchSize
		w.meterFlushInterval = flushInterval
	}
}

// WithReceiptWindow sets how long idempotency receipts are retained.
func WithReceiptWindow(window time.Duration) Option {
	return func(w *Wallet) {
		w.receiptWindow = window
	}
}

// WithInitialGrant overrides the builder tokens seeded into new accounts.
func WithInitialGrant(grant types.Tokens) Option {
	return func(w *Wallet) {
		w.initialGrant = grant
	}
}

// WithConflictRetry configures the bounded retry applied when a
// concurrent writer wins the version race.
func WithConflictRetry(attempts int, backoff time.Duration) Option {
	return func(w *Wallet) {
		if attempts > 0 {
			w.conflictRetries = attempts
		}
		w.conflictBackoff = backoff
	}
}

// Start begins background workers.
func (w *Wallet) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	// Migrate database
	if err := w.store.Migrate(ctx); err != nil {
		return err
	}

	// Initialize plugins
	w.plugins.EmitInit(ctx, w)

	w.wg.Add(2)
	go w.meterFlushWorker(ctx)
	go w.receiptPurgeWorker(ctx)

	w.logger.Info("wallet started",
		"batch_size", w.meterBatchSize,
		"flush_interval", w.meterFlushInterval,
		"receipt_window", w.receiptWindow,
	)

	return nil
}

// Stop shuts down the Wallet.
func (w *Wallet) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return ErrNotStarted
	}
	w.started = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.hub.Close()

	ctx := context.Background()
	w.plugins.EmitShutdown(ctx)

	return w.store.Close()
}

// ──────────────────────────────────────────────────
// Account Management
// ──────────────────────────────────────────────────

// CreateAccount creates a new account seeded with the initial builder
// grant. An empty accountID gets a generated one.
func (w *Wallet) CreateAccount(ctx context.Context, accountID string) (*account.Account, error) {
	if accountID == "" {
		accountID = id.NewAccountID().String()
	}

	acct := account.New(accountID)
	if w.initialGrant != account.InitialBuilderGrant {
		acct.Pools[account.PoolBuilder] = w.initialGrant
	}

	if err := w.store.CreateAccount(ctx, acct); err != nil {
		return nil, err
	}

	w.plugins.EmitAccountCreated(ctx, acct)
	w.publish(ctx, acct.Snapshot())
	return acct, nil
}

// GetAccount retrieves an account by ID.
func (w *Wallet) GetAccount(ctx context.Context, accountID string) (*account.Account, error) {
	return w.store.GetAccount(ctx, accountID)
}

// Balance returns the current balance snapshot for an account.
func (w *Wallet) Balance(ctx context.Context, accountID string) (account.Snapshot, error) {
	acct, err := w.store.GetAccount(ctx, accountID)
	if err != nil {
		return account.Snapshot{}, err
	}
	return acct.Snapshot(), nil
}

// ──────────────────────────────────────────────────
// Consumption
// ──────────────────────────────────────────────────

// ConsumeRequest describes one model usage to charge.
//
// IdempotencyKey deduplicates sequential retries of the same request:
// a redelivery after the original committed replays the original plan
// without a second debit. Receipts are written after the balance
// commit, so two concurrent submissions sharing a key can both debit;
// callers must serialize retries of a keyed request.
type ConsumeRequest struct {
	AccountID      string            `json:"account_id"`
	ModelID        string            `json:"model_id"`
	TokensUsed     int64             `json:"tokens_used"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// ConsumeResult reports an applied debit. Duplicate is true when the
// request was answered from an idempotency receipt without a second
// debit; Snapshot then reflects the current account state, not the
// balance at original application time.
type ConsumeResult struct {
	Plan      DebitPlan        `json:"plan"`
	Snapshot  account.Snapshot `json:"snapshot"`
	Duplicate bool             `json:"duplicate"`
}

// Consume charges one model usage against the account. The model's
// native pool pays 1:1 when it can cover the request; otherwise the
// builder pool pays at the model's multiplier. The whole request is
// applied from one pool or rejected.
func (w *Wallet) Consume(ctx context.Context, req ConsumeRequest) (*ConsumeResult, error) {
	if req.AccountID == "" {
		return nil, ValidationError{Field: "account_id", Message: "required"}
	}
	if req.TokensUsed <= 0 {
		return nil, ErrInvalidAmount
	}
	if !w.rates.Knows(req.ModelID) {
		return nil, ErrUnknownModel
	}

	if req.IdempotencyKey != "" {
		if res, ok := w.replayReceipt(ctx, req); ok {
			return res, nil
		}
	}

	var plan DebitPlan
	acct, err := w.applyWithRetry(ctx, req.AccountID, func(a *account.Account) (bool, error) {
		p, err := ComputeDebit(a, w.rates, req.ModelID, req.TokensUsed)
		plan = p
		if err != nil {
			return false, err
		}
		if !a.Debit(p.SourcePool, p.DebitedAmount) {
			return false, ErrInsufficientBalance
		}
		a.RecordUsage(req.TokensUsed, time.Now().UTC())
		return true, nil
	})
	if err != nil {
		if IsRejection(err) {
			w.plugins.EmitDebitRejected(ctx, req.AccountID, plan, err)
		}
		return nil, err
	}

	snap := acct.Snapshot()

	if req.IdempotencyKey != "" {
		w.storeReceipt(ctx, req, plan, snap)
	}

	w.journal(ctx, req, plan)
	w.plugins.EmitDebitApplied(ctx, req.AccountID, plan)
	w.publish(ctx, snap)

	w.logger.Debug("debit applied",
		"account", req.AccountID,
		"model", req.ModelID,
		"pool", plan.SourcePool,
		"debited", plan.DebitedAmount,
	)

	return &ConsumeResult{Plan: plan, Snapshot: snap}, nil
}

// replayReceipt answers a redelivered request from its receipt.
func (w *Wallet) replayReceipt(ctx context.Context, req ConsumeRequest) (*ConsumeResult, bool) {
	r, err := w.store.GetReceipt(ctx, req.AccountID, req.IdempotencyKey)
	if err != nil || r == nil {
		return nil, false
	}
	if time.Since(r.CreatedAt) > w.receiptWindow {
		return nil, false
	}

	snap, err := w.Balance(ctx, req.AccountID)
	if err != nil {
		return nil, false
	}

	return &ConsumeResult{
		Plan: DebitPlan{
			ModelID:       req.ModelID,
			TokensUsed:    req.TokensUsed,
			SourcePool:    r.SourcePool,
			DebitedAmount: r.TokensDebited,
			Outcome:       DebitApplied,
		},
		Snapshot:  snap,
		Duplicate: true,
	}, true
}

func (w *Wallet) storeReceipt(ctx context.Context, req ConsumeRequest, plan DebitPlan, snap account.Snapshot) {
	balances := make(map[string]int64, len(snap.Pools))
	for p, b := range snap.Pools {
		balances[p.String()] = b.Int64()
	}

	r := &store.Receipt{
		ID:            id.NewReceiptID(),
		AccountID:     req.AccountID,
		Key:           req.IdempotencyKey,
		SourcePool:    plan.SourcePool,
		TokensDebited: plan.DebitedAmount,
		BalanceAfter:  balances,
		CreatedAt:     time.Now().UTC(),
	}
	if err := w.store.PutReceipt(ctx, r); err != nil {
		w.logger.Warn("failed to store idempotency receipt",
			"account", req.AccountID,
			"key", req.IdempotencyKey,
			"error", err,
		)
	}
}

// journal buffers a usage event for the flush worker (non-blocking).
func (w *Wallet) journal(ctx context.Context, req ConsumeRequest, plan DebitPlan) {
	event := &meter.UsageEvent{
		ID:             id.NewUsageEventID(),
		AccountID:      req.AccountID,
		ModelID:        req.ModelID,
		SourcePool:     plan.SourcePool,
		TokensUsed:     req.TokensUsed,
		TokensDebited:  plan.DebitedAmount,
		Timestamp:      time.Now().UTC(),
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	}

	select {
	case w.meterBuffer <- event:
	default:
		w.logger.Warn("meter buffer full, dropping usage event",
			"account", req.AccountID,
			"event", event.ID.String(),
		)
	}
}

// ──────────────────────────────────────────────────
// Replenishment
// ──────────────────────────────────────────────────

// Credit adds tokens to one of the account's pools.
func (w *Wallet) Credit(ctx context.Context, accountID string, pool account.Pool, amount types.Tokens) (account.Snapshot, error) {
	if _, ok := account.ParsePool(pool.String()); !ok {
		return account.Snapshot{}, ErrUnknownPool
	}
	if !amount.IsPositive() {
		return account.Snapshot{}, ErrInvalidAmount
	}

	acct, err := w.applyWithRetry(ctx, accountID, func(a *account.Account) (bool, error) {
		a.Credit(pool, amount)
		return true, nil
	})
	if err != nil {
		return account.Snapshot{}, err
	}

	snap := acct.Snapshot()
	w.plugins.EmitCreditApplied(ctx, accountID, pool.String(), amount.Int64())
	w.publish(ctx, snap)

	return snap, nil
}

// applyWithRetry runs the mutation under optimistic concurrency,
// retrying a bounded number of times when a concurrent writer wins the
// version race or the backend is transiently unreachable.
func (w *Wallet) applyWithRetry(ctx context.Context, accountID string, fn store.Mutation) (*account.Account, error) {
	var lastErr error
	for attempt := 0; attempt < w.conflictRetries; attempt++ {
		if attempt > 0 && w.conflictBackoff > 0 {
			select {
			case <-time.After(time.Duration(attempt) * w.conflictBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		acct, err := w.store.ApplyMutation(ctx, accountID, fn)
		if err == nil {
			return acct, nil
		}
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrStoreUnavailable) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// ──────────────────────────────────────────────────
// Usage Journal
// ──────────────────────────────────────────────────

// Usage queries the account's usage journal.
func (w *Wallet) Usage(ctx context.Context, accountID string, opts meter.QueryOpts) ([]*meter.UsageEvent, error) {
	return w.store.QueryUsage(ctx, accountID, opts)
}

// PurgeUsage removes journal entries older than the cutoff and returns
// how many were deleted.
func (w *Wallet) PurgeUsage(ctx context.Context, olderThan time.Time) (int64, error) {
	return w.store.PurgeUsage(ctx, olderThan)
}

// Rates returns the engine's exchange-rate table.
func (w *Wallet) Rates() *rate.Table {
	return w.rates
}

// ──────────────────────────────────────────────────
// Balance Notifications
// ──────────────────────────────────────────────────

// Subscribe registers a handler for one account's balance snapshots.
func (w *Wallet) Subscribe(accountID string, fn func(account.Snapshot)) id.ObserverID {
	return w.hub.Subscribe(accountID, notify.Handler(fn))
}

// Unsubscribe removes a snapshot subscription.
func (w *Wallet) Unsubscribe(subID id.ObserverID) {
	w.hub.Unsubscribe(subID)
}

func (w *Wallet) publish(ctx context.Context, snap account.Snapshot) {
	w.plugins.EmitBalanceChanged(ctx, snap)
	w.hub.Publish(snap)
}

// ──────────────────────────────────────────────────
// Background Workers
// ──────────────────────────────────────────────────

// meterFlushWorker flushes usage events to the store.
func (w *Wallet) meterFlushWorker(ctx context.Context) {
	defer w.wg.Done()

	batch := make([]*meter.UsageEvent, 0, w.meterBatchSize)
	ticker := time.NewTicker(w.meterFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			// Final flush, including anything still buffered
			for {
				select {
				case event := <-w.meterBuffer:
					batch = append(batch, event)
				default:
					if len(batch) > 0 {
						w.flushMeterBatch(ctx, batch)
					}
					return
				}
			}

		case event := <-w.meterBuffer:
			batch = append(batch, event)
			if len(batch) >= w.meterBatchSize {
				w.flushMeterBatch(ctx, batch)
				batch = make([]*meter.UsageEvent, 0, w.meterBatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flushMeterBatch(ctx, batch)
				batch = make([]*meter.UsageEvent, 0, w.meterBatchSize)
			}
		}
	}
}

func (w *Wallet) flushMeterBatch(ctx context.Context, batch []*meter.UsageEvent) {
	start := time.Now()

	if err := w.store.IngestBatch(ctx, batch); err != nil {
		w.logger.Error("failed to flush meter batch",
			"error", err,
			"batch_size", len(batch),
		)
		return
	}

	elapsed := time.Since(start)
	w.plugins.EmitUsageFlushed(ctx, len(batch), elapsed)

	w.logger.Debug("flushed meter batch",
		"batch_size", len(batch),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// receiptPurgeWorker removes idempotency receipts older than the
// retention window.
func (w *Wallet) receiptPurgeWorker(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.receiptPurgeEvery)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			purged, err := w.store.PurgeReceipts(ctx, time.Now().Add(-w.receiptWindow))
			if err != nil {
				w.logger.Error("failed to purge receipts", "error", err)
				continue
			}
			if purged > 0 {
				w.plugins.EmitReceiptsPurged(ctx, purged)
				w.logger.Debug("purged receipts", "count", purged)
			}
		}
	}
}
