// Package account defines the prepaid account record and its pool model.
package account

import (
	"time"

	"github.com/xraph/wallet/types"
)

// Pool identifies one of the account's credit pools. The set is closed:
// unrecognized pool names are rejected at the boundary, never passed through.
type Pool string

// Pool constants for all recognized pools.
const (
	// PoolBuilder is the universal pool. It is the fallback currency for any
	// model, converted via the exchange-rate multiplier.
	PoolBuilder Pool = "builder"

	// PoolClaude is the native pool for the Claude model family, usable 1:1.
	PoolClaude Pool = "claude"

	// PoolGPT is the native pool for the GPT model family, usable 1:1.
	PoolGPT Pool = "gpt"
)

// AllPools returns every recognized pool. Every account defines all of them.
func AllPools() []Pool {
	return []Pool{PoolBuilder, PoolClaude, PoolGPT}
}

// ParsePool validates a pool name against the closed set.
func ParsePool(s string) (Pool, bool) {
	switch Pool(s) {
	case PoolBuilder, PoolClaude, PoolGPT:
		return Pool(s), true
	default:
		return "", false
	}
}

// String returns the pool name.
func (p Pool) String() string { return string(p) }

// IsUniversal returns true for the builder pool.
func (p Pool) IsUniversal() bool { return p == PoolBuilder }

// InitialBuilderGrant is the universal-pool balance granted at registration.
const InitialBuilderGrant types.Tokens = 2_000_000

// Account is the persisted per-account ledger record: pool balances plus
// cumulative usage. It is mutated only through the store's ApplyMutation,
// which serializes mutations per account; Version is the compare-and-swap
// key persistent stores use to detect concurrent writers.
type Account struct {
	types.Entity

	// ID is the opaque account identifier supplied by the identity
	// collaborator (or generated as an "acct" TypeID when absent).
	ID string `json:"id"`

	// Pools maps each recognized pool to its non-negative balance.
	Pools map[Pool]types.Tokens `json:"pools"`

	// TotalUsage is the cumulative count of tokens consumed, in model usage
	// units (not debited currency units). Monotonically non-decreasing.
	TotalUsage int64 `json:"total_usage"`

	// LastUsedAt is the time of the most recent successful debit.
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`

	// Version increments on every committed mutation.
	Version int64 `json:"version"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// New creates an account with the registration grant: the full builder
// grant and every native pool at zero.
func New(accountID string) *Account {
	return &Account{
		Entity: types.NewEntity(),
		ID:     accountID,
		Pools: map[Pool]types.Tokens{
			PoolBuilder: InitialBuilderGrant,
			PoolClaude:  0,
			PoolGPT:     0,
		},
	}
}

// Balance returns the balance of the given pool. Unknown pools read as zero.
func (a *Account) Balance(p Pool) types.Tokens {
	return a.Pools[p]
}

// HasPool reports whether the pool is defined on this account.
func (a *Account) HasPool(p Pool) bool {
	_, ok := a.Pools[p]
	return ok
}

// Debit removes amount from the pool. The caller must have verified the
// balance covers the amount; Debit never drives a balance negative and
// reports whether the debit was applied.
func (a *Account) Debit(p Pool, amount types.Tokens) bool {
	if amount.IsNegative() || !a.Pools[p].Covers(amount) {
		return false
	}
	a.Pools[p] = a.Pools[p].Subtract(amount)
	return true
}

// Credit adds amount to the pool.
func (a *Account) Credit(p Pool, amount types.Tokens) {
	a.Pools[p] = a.Pools[p].Add(amount)
}

// RecordUsage bumps the usage counter and stamps the debit time.
func (a *Account) RecordUsage(tokensUsed int64, at time.Time) {
	a.TotalUsage += tokensUsed
	a.LastUsedAt = &at
}

// Clone returns a deep copy. Stores hand clones to mutation closures so a
// rejected or conflicted mutation cannot leak partial writes.
func (a *Account) Clone() *Account {
	pools := make(map[Pool]types.Tokens, len(a.Pools))
	for p, b := range a.Pools {
		pools[p] = b
	}

	var lastUsed *time.Time
	if a.LastUsedAt != nil {
		t := *a.LastUsedAt
		lastUsed = &t
	}

	var meta map[string]string
	if a.Metadata != nil {
		meta = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			meta[k] = v
		}
	}

	return &Account{
		Entity:     a.Entity,
		ID:         a.ID,
		Pools:      pools,
		TotalUsage: a.TotalUsage,
		LastUsedAt: lastUsed,
		Version:    a.Version,
		Metadata:   meta,
	}
}

// Snapshot captures the account state as delivered to balance observers.
// Snapshots are immutable; Version orders them per account.
type Snapshot struct {
	AccountID  string                 `json:"account_id"`
	Pools      map[Pool]types.Tokens  `json:"pools"`
	TotalUsage int64                  `json:"total_usage"`
	LastUsedAt *time.Time             `json:"last_used_at,omitempty"`
	Version    int64                  `json:"version"`
	At         time.Time              `json:"at"`
}

// Snapshot returns an immutable copy of the account's observable state.
func (a *Account) Snapshot() Snapshot {
	pools := make(map[Pool]types.Tokens, len(a.Pools))
	for p, b := range a.Pools {
		pools[p] = b
	}

	var lastUsed *time.Time
	if a.LastUsedAt != nil {
		t := *a.LastUsedAt
		lastUsed = &t
	}

	return Snapshot{
		AccountID:  a.ID,
		Pools:      pools,
		TotalUsage: a.TotalUsage,
		LastUsedAt: lastUsed,
		Version:    a.Version,
		At:         time.Now().UTC(),
	}
}

// Balance returns the balance of the given pool in the snapshot.
func (s Snapshot) Balance(p Pool) types.Tokens {
	return s.Pools[p]
}

// Total returns the sum of all pool balances.
func (s Snapshot) Total() types.Tokens {
	var total types.Tokens
	for _, b := range s.Pools {
		total += b
	}
	return total
}

// ListOpts filters and pages account listings.
type ListOpts struct {
	Limit  int
	Offset int
}
