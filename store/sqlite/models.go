package sqlite

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/wallet/account"
	"github.com/xraph/wallet/id"
	"github.com/xraph/wallet/meter"
	"github.com/xraph/wallet/store"
	"github.com/xraph/wallet/types"
)

// SQLite has no native JSON column type, so maps are stored as JSON
// text and round-tripped through encoding/json.

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:wallet_accounts"`

	ID         string     `grove:"id,pk"`
	Pools      string     `grove:"pools"`
	TotalUsage int64      `grove:"total_usage"`
	LastUsedAt *time.Time `grove:"last_used_at"`
	Version    int64      `grove:"version"`
	Metadata   string     `grove:"metadata"`
	CreatedAt  time.Time  `grove:"created_at"`
	UpdatedAt  time.Time  `grove:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	pools := make(map[string]int64, len(a.Pools))
	for p, b := range a.Pools {
		pools[p.String()] = b.Int64()
	}
	poolsJSON, _ := json.Marshal(pools)     //nolint:errcheck // map of primitives
	metaJSON, _ := json.Marshal(a.Metadata) //nolint:errcheck // map of primitives

	return &accountModel{
		ID:         a.ID,
		Pools:      string(poolsJSON),
		TotalUsage: a.TotalUsage,
		LastUsedAt: a.LastUsedAt,
		Version:    a.Version,
		Metadata:   string(metaJSON),
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	var rawPools map[string]int64
	if m.Pools != "" {
		if err := json.Unmarshal([]byte(m.Pools), &rawPools); err != nil {
			return nil, err
		}
	}
	pools := make(map[account.Pool]types.Tokens, len(rawPools))
	for name, b := range rawPools {
		pools[account.Pool(name)] = types.Tokens(b)
	}

	var metadata map[string]string
	if m.Metadata != "" && m.Metadata != "null" {
		if err := json.Unmarshal([]byte(m.Metadata), &metadata); err != nil {
			return nil, err
		}
	}

	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         m.ID,
		Pools:      pools,
		TotalUsage: m.TotalUsage,
		LastUsedAt: m.LastUsedAt,
		Version:    m.Version,
		Metadata:   metadata,
	}, nil
}

// ==================== Usage Event models ====================

type usageEventModel struct {
	grove.BaseModel `grove:"table:wallet_usage_events"`

	ID             string    `grove:"id,pk"`
	AccountID      string    `grove:"account_id"`
	ModelID        string    `grove:"model_id"`
	SourcePool     string    `grove:"source_pool"`
	TokensUsed     int64     `grove:"tokens_used"`
	TokensDebited  int64     `grove:"tokens_debited"`
	Timestamp      time.Time `grove:"timestamp"`
	IdempotencyKey string    `grove:"idempotency_key"`
	Metadata       string    `grove:"metadata"`
	CreatedAt      time.Time `grove:"created_at"`
}

func toUsageEventModel(e *meter.UsageEvent) *usageEventModel {
	metaJSON, _ := json.Marshal(e.Metadata) //nolint:errcheck // map of primitives

	return &usageEventModel{
		ID:             e.ID.String(),
		AccountID:      e.AccountID,
		ModelID:        e.ModelID,
		SourcePool:     e.SourcePool.String(),
		TokensUsed:     e.TokensUsed,
		TokensDebited:  e.TokensDebited.Int64(),
		Timestamp:      e.Timestamp,
		IdempotencyKey: e.IdempotencyKey,
		Metadata:       string(metaJSON),
		CreatedAt:      time.Now().UTC(),
	}
}

func fromUsageEventModel(m *usageEventModel) (*meter.UsageEvent, error) {
	evtID, err := id.ParseUsageEventID(m.ID)
	if err != nil {
		return nil, err
	}

	var metadata map[string]string
	if m.Metadata != "" && m.Metadata != "null" {
		if err := json.Unmarshal([]byte(m.Metadata), &metadata); err != nil {
			return nil, err
		}
	}

	return &meter.UsageEvent{
		ID:             evtID,
		AccountID:      m.AccountID,
		ModelID:        m.ModelID,
		SourcePool:     account.Pool(m.SourcePool),
		TokensUsed:     m.TokensUsed,
		TokensDebited:  types.Tokens(m.TokensDebited),
		Timestamp:      m.Timestamp,
		IdempotencyKey: m.IdempotencyKey,
		Metadata:       metadata,
	}, nil
}

// ==================== Receipt models ====================

type receiptModel struct {
	grove.BaseModel `grove:"table:wallet_receipts"`

	ID            string    `grove:"id,pk"`
	AccountID     string    `grove:"account_id"`
	Key           string    `grove:"receipt_key"`
	SourcePool    string    `grove:"source_pool"`
	TokensDebited int64     `grove:"tokens_debited"`
	BalanceAfter  string    `grove:"balance_after"`
	CreatedAt     time.Time `grove:"created_at"`
}

func toReceiptModel(r *store.Receipt) *receiptModel {
	balanceJSON, _ := json.Marshal(r.BalanceAfter) //nolint:errcheck // map of primitives

	return &receiptModel{
		ID:            r.ID.String(),
		AccountID:     r.AccountID,
		Key:           r.Key,
		SourcePool:    r.SourcePool.String(),
		TokensDebited: r.TokensDebited.Int64(),
		BalanceAfter:  string(balanceJSON),
		CreatedAt:     r.CreatedAt,
	}
}

func fromReceiptModel(m *receiptModel) (*store.Receipt, error) {
	rID, err := id.ParseReceiptID(m.ID)
	if err != nil {
		return nil, err
	}

	var balances map[string]int64
	if m.BalanceAfter != "" && m.BalanceAfter != "null" {
		if err := json.Unmarshal([]byte(m.BalanceAfter), &balances); err != nil {
			return nil, err
		}
	}

	return &store.Receipt{
		ID:            rID,
		AccountID:     m.AccountID,
		Key:           m.Key,
		SourcePool:    account.Pool(m.SourcePool),
		TokensDebited: types.Tokens(m.TokensDebited),
		BalanceAfter:  balances,
		CreatedAt:     m.CreatedAt,
	}, nil
}
