// Package memory provides an in-memory Store for tests and
// single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/wallet"
	"github.com/xraph/wallet/account"
	"github.com/xraph/wallet/meter"
	"github.com/xraph/wallet/store"
)

type Store struct {
	mu sync.RWMutex

	// Account storage
	accounts map[string]*account.Account

	// Usage journal storage
	usageEvents []meter.UsageEvent

	// Idempotency receipts keyed by accountID + "\x00" + key
	receipts map[string]*store.Receipt

	closed bool
}

func New() *Store {
	return &Store{
		accounts:    make(map[string]*account.Account),
		usageEvents: make([]meter.UsageEvent, 0),
		receipts:    make(map[string]*store.Receipt),
	}
}

// Account Store implementation
func (s *Store) CreateAccount(_ context.Context, acct *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return wallet.ErrStoreClosed
	}
	if _, exists := s.accounts[acct.ID]; exists {
		return wallet.ErrAccountExists
	}
	s.accounts[acct.ID] = acct.Clone()
	return nil
}

func (s *Store) GetAccount(_ context.Context, accountID string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, wallet.ErrStoreClosed
	}
	if acct, ok := s.accounts[accountID]; ok {
		return acct.Clone(), nil
	}
	return nil, wallet.ErrAccountNotFound
}

// ApplyMutation applies fn to a copy of the account and swaps it in
// under the write lock, bumping the version. The version race the
// interface documents cannot happen here because the lock serializes
// writers, so ErrConflict is never returned.
func (s *Store) ApplyMutation(_ context.Context, accountID string, fn store.Mutation) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, wallet.ErrStoreClosed
	}
	current, ok := s.accounts[accountID]
	if !ok {
		return nil, wallet.ErrAccountNotFound
	}

	next := current.Clone()
	persist, err := fn(next)
	if err != nil {
		return nil, err
	}
	if !persist {
		return current.Clone(), nil
	}

	next.Version++
	next.Touch()
	s.accounts[accountID] = next
	return next.Clone(), nil
}

func (s *Store) ListAccounts(_ context.Context, opts account.ListOpts) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, wallet.ErrStoreClosed
	}

	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := opts.Offset
	if start > len(ids) {
		start = len(ids)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(ids) {
		end = len(ids)
	}

	result := make([]*account.Account, 0, end-start)
	for _, id := range ids[start:end] {
		result = append(result, s.accounts[id].Clone())
	}
	return result, nil
}

func (s *Store) DeleteAccount(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return wallet.ErrStoreClosed
	}
	delete(s.accounts, accountID)
	return nil
}

// Meter Store implementation
func (s *Store) IngestBatch(_ context.Context, events []*meter.UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return wallet.ErrStoreClosed
	}
	for _, e := range events {
		s.usageEvents = append(s.usageEvents, *e)
	}
	return nil
}

func (s *Store) QueryUsage(_ context.Context, accountID string, opts meter.QueryOpts) ([]*meter.UsageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, wallet.ErrStoreClosed
	}

	result := make([]*meter.UsageEvent, 0)
	for i := range s.usageEvents {
		e := s.usageEvents[i]
		if e.AccountID != accountID {
			continue
		}
		if opts.ModelID != "" && e.ModelID != opts.ModelID {
			continue
		}
		if opts.Pool != "" && e.SourcePool != opts.Pool {
			continue
		}
		if !opts.Start.IsZero() && e.Timestamp.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && e.Timestamp.After(opts.End) {
			continue
		}
		result = append(result, &e)
	}

	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}
	return result[start:end], nil
}

func (s *Store) PurgeUsage(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, wallet.ErrStoreClosed
	}

	var count int64
	kept := make([]meter.UsageEvent, 0, len(s.usageEvents))
	for _, e := range s.usageEvents {
		if e.Timestamp.Before(before) {
			count++
		} else {
			kept = append(kept, e)
		}
	}
	s.usageEvents = kept
	return count, nil
}

// Receipt Store implementation
func (s *Store) GetReceipt(_ context.Context, accountID, key string) (*store.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, wallet.ErrStoreClosed
	}
	if r, ok := s.receipts[receiptKey(accountID, key)]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, wallet.ErrNotFound
}

func (s *Store) PutReceipt(_ context.Context, r *store.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return wallet.ErrStoreClosed
	}
	cp := *r
	s.receipts[receiptKey(r.AccountID, r.Key)] = &cp
	return nil
}

func (s *Store) PurgeReceipts(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, wallet.ErrStoreClosed
	}

	var count int64
	for k, r := range s.receipts {
		if r.CreatedAt.Before(before) {
			delete(s.receipts, k)
			count++
		}
	}
	return count, nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return wallet.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func receiptKey(accountID, key string) string {
	return accountID + "\x00" + key
}
