package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/wallet/account"
	"github.com/xraph/wallet/id"
	"github.com/xraph/wallet/meter"
	"github.com/xraph/wallet/store"
	"github.com/xraph/wallet/types"
)

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:wallet_accounts"`

	ID         string            `grove:"id,pk"`
	Pools      map[string]int64  `grove:"pools,type:jsonb"`
	TotalUsage int64             `grove:"total_usage"`
	LastUsedAt *time.Time        `grove:"last_used_at"`
	Version    int64             `grove:"version"`
	Metadata   map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt  time.Time         `grove:"created_at"`
	UpdatedAt  time.Time         `grove:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	pools := make(map[string]int64, len(a.Pools))
	for p, b := range a.Pools {
		pools[p.String()] = b.Int64()
	}

	return &accountModel{
		ID:         a.ID,
		Pools:      pools,
		TotalUsage: a.TotalUsage,
		LastUsedAt: a.LastUsedAt,
		Version:    a.Version,
		Metadata:   a.Metadata,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) *account.Account {
	pools := make(map[account.Pool]types.Tokens, len(m.Pools))
	for name, b := range m.Pools {
		pools[account.Pool(name)] = types.Tokens(b)
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
		Metadata:   m.Metadata,
	}
}

// ==================== Usage Event models ====================

type usageEventModel struct {
	grove.BaseModel `grove:"table:wallet_usage_events"`

	ID             string            `grove:"id,pk"`
	AccountID      string            `grove:"account_id"`
	ModelID        string            `grove:"model_id"`
	SourcePool     string            `grove:"source_pool"`
	TokensUsed     int64             `grove:"tokens_used"`
	TokensDebited  int64             `grove:"tokens_debited"`
	Timestamp      time.Time         `grove:"timestamp"`
	IdempotencyKey string            `grove:"idempotency_key"`
	Metadata       map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt      time.Time         `grove:"created_at"`
}

func toUsageEventModel(e *meter.UsageEvent) *usageEventModel {
	return &usageEventModel{
		ID:             e.ID.String(),
		AccountID:      e.AccountID,
		ModelID:        e.ModelID,
		SourcePool:     e.SourcePool.String(),
		TokensUsed:     e.TokensUsed,
		TokensDebited:  e.TokensDebited.Int64(),
		Timestamp:      e.Timestamp,
		IdempotencyKey: e.IdempotencyKey,
		Metadata:       e.Metadata,
		CreatedAt:      time.Now().UTC(),
	}
}

func fromUsageEventModel(m *usageEventModel) (*meter.UsageEvent, error) {
	evtID, err := id.ParseUsageEventID(m.ID)
	if err != nil {
		return nil, err
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
		Metadata:       m.Metadata,
	}, nil
}

// ==================== Receipt models ====================

type receiptModel struct {
	grove.BaseModel `grove:"table:wallet_receipts"`

	ID            string           `grove:"id,pk"`
	AccountID     string           `grove:"account_id"`
	Key           string           `grove:"receipt_key"`
	SourcePool    string           `grove:"source_pool"`
	TokensDebited int64            `grove:"tokens_debited"`
	BalanceAfter  map[string]int64 `grove:"balance_after,type:jsonb"`
	CreatedAt     time.Time        `grove:"created_at"`
}

func toReceiptModel(r *store.Receipt) *receiptModel {
	return &receiptModel{
		ID:            r.ID.String(),
		AccountID:     r.AccountID,
		Key:           r.Key,
		SourcePool:    r.SourcePool.String(),
		TokensDebited: r.TokensDebited.Int64(),
		BalanceAfter:  r.BalanceAfter,
		CreatedAt:     r.CreatedAt,
	}
}

func fromReceiptModel(m *receiptModel) (*store.Receipt, error) {
	rID, err := id.ParseReceiptID(m.ID)
	if err != nil {
		return nil, err
	}

	return &store.Receipt{
		ID:            rID,
		AccountID:     m.AccountID,
		Key:           m.Key,
		SourcePool:    account.Pool(m.SourcePool),
		TokensDebited: types.Tokens(m.TokensDebited),
		BalanceAfter:  m.BalanceAfter,
		CreatedAt:     m.CreatedAt,
	}, nil
}
