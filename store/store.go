// Package store defines the storage interface for wallet accounts,
// usage journal records and idempotency receipts.
package store

import (
	"context"
	"time"

	"github.com/xraph/wallet/account"
	"github.com/xraph/wallet/id"
	"github.com/xraph/wallet/meter"
	"github.com/xraph/wallet/types"
)

// Mutation is applied to a copy of the stored account under optimistic
// concurrency control. Returning false skips persistence; the engine
// uses this for no-op mutations such as duplicate idempotency keys.
// Returning an error aborts the mutation and surfaces the error.
type Mutation func(acct *account.Account) (persist bool, err error)

// Receipt records the outcome of an idempotent consumption request so
// redelivered requests can return the original result without a second
// debit.
type Receipt struct {
	ID            id.ReceiptID      `json:"id"`
	AccountID     string            `json:"account_id"`
	Key           string            `json:"key"`
	SourcePool    account.Pool      `json:"source_pool"`
	TokensDebited types.Tokens      `json:"tokens_debited"`
	BalanceAfter  map[string]int64  `json:"balance_after"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Store is the unified storage interface for all wallet entities.
// ApplyMutation is the only write path for account state: it must load
// the account, apply fn to a copy, and persist with a version check so
// concurrent writers cannot overwrite each other. On version mismatch
// it returns an error satisfying wallet.IsRetryable via ErrConflict.
type Store interface {
	// Account methods
	CreateAccount(ctx context.Context, acct *account.Account) error
	GetAccount(ctx context.Context, accountID string) (*account.Account, error)
	ApplyMutation(ctx context.Context, accountID string, fn Mutation) (*account.Account, error)
	ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error)
	DeleteAccount(ctx context.Context, accountID string) error

	// Meter methods
	IngestBatch(ctx context.Context, events []*meter.UsageEvent) error
	QueryUsage(ctx context.Context, accountID string, opts meter.QueryOpts) ([]*meter.UsageEvent, error)
	PurgeUsage(ctx context.Context, before time.Time) (int64, error)

	// Receipt methods
	GetReceipt(ctx context.Context, accountID, key string) (*Receipt, error)
	PutReceipt(ctx context.Context, r *Receipt) error
	PurgeReceipts(ctx context.Context, before time.Time) (int64, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
