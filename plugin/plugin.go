// Package plugin provides an extensible plugin system for the wallet.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, w interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnAccountCreated is called when a new account is created.
type OnAccountCreated interface {
	Plugin
	OnAccountCreated(ctx context.Context, acct interface{}) error
}

// ──────────────────────────────────────────────────
// Debit/credit hooks
// ──────────────────────────────────────────────────

// OnDebitApplied is called after a debit is persisted.
type OnDebitApplied interface {
	Plugin
	OnDebitApplied(ctx context.Context, accountID string, plan interface{}) error
}

// OnDebitRejected is called when a consumption request is rejected.
type OnDebitRejected interface {
	Plugin
	OnDebitRejected(ctx context.Context, accountID string, plan interface{}, reason error) error
}

// OnCreditApplied is called after a replenishment is persisted.
type OnCreditApplied interface {
	Plugin
	OnCreditApplied(ctx context.Context, accountID, pool string, amount int64) error
}

// OnBalanceChanged is called with the new snapshot after any balance
// mutation.
type OnBalanceChanged interface {
	Plugin
	OnBalanceChanged(ctx context.Context, snap interface{}) error
}

// ──────────────────────────────────────────────────
// Usage/metering hooks
// ──────────────────────────────────────────────────

// OnUsageFlushed is called when usage events are flushed to the store.
type OnUsageFlushed interface {
	Plugin
	OnUsageFlushed(ctx context.Context, count int, elapsed time.Duration) error
}

// OnReceiptsPurged is called after expired idempotency receipts are
// removed.
type OnReceiptsPurged interface {
	Plugin
	OnReceiptsPurged(ctx context.Context, purged int64) error
}
