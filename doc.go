// Package wallet provides a prepaid usage wallet for Go applications.
//
// Wallet is designed as a library, not a service. Import it directly into
// your Go application for maximum performance and flexibility. It provides:
//
//   - Named credit pools per account: a universal builder pool plus native
//     model-family pools (claude, gpt)
//   - A static exchange-rate table converting model usage into debits
//   - Atomic, non-negative debits with optimistic concurrency control
//   - Idempotency receipts so redelivered requests debit exactly once
//   - High-throughput usage journaling with batched ingestion
//   - An ordered, at-least-once balance snapshot stream for live UIs
//
// # Quick Start
//
// Create a wallet instance with your preferred store:
//
//	import (
//	    "github.com/xraph/wallet"
//	    "github.com/xraph/wallet/store/memory"
//	)
//
//	// Create wallet
//	w := wallet.New(memory.New())
//
//	// Start the wallet (begins background workers)
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Core Concepts
//
// Accounts hold one balance per pool. Registration seeds the builder pool:
//
//	acct, err := w.CreateAccount(ctx, "user-123")
//	fmt.Println(acct.Balance(account.PoolBuilder)) // 2000000
//
// Consumption charges one model usage. The model's native pool pays 1:1
// when it can cover the whole request; otherwise the builder pool pays at
// the model's multiplier. A request is never split across pools:
//
//	res, err := w.Consume(ctx, wallet.ConsumeRequest{
//	    AccountID:  "user-123",
//	    ModelID:    "claude-sonnet-4",
//	    TokensUsed: 500,
//	})
//
// Replenishment credits a single pool:
//
//	snap, err := w.Credit(ctx, "user-123", account.PoolClaude, 10000)
//
// Subscriptions stream balance snapshots in version order:
//
//	sub := w.Subscribe("user-123", func(snap account.Snapshot) {
//	    render(snap)
//	})
//	defer w.Unsubscribe(sub)
//
// # Performance
//
// All balance arithmetic uses integer token counts; there is no
// floating-point anywhere in the debit path. Usage events are journaled
// through a buffered batch writer so the debit path never waits on the
// journal.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41  // Account ID
//	uevt_01h2xcejqtf2nbrexx3vqjhp41  // Usage event ID
//	rcpt_01h455vb4pex5vsknk084sn02q  // Receipt ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package wallet
