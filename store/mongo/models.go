package mongo

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

	ID         string            `grove:"id,pk"       bson:"_id"`
	Pools      map[string]int64  `grove:"pools"       bson:"pools"`
	TotalUsage int64             `grove:"total_usage" bson:"total_usage"`
	LastUsedAt *time.Time        `grove:"last_used_at" bson:"last_used_at,omitempty"`
	Version    int64             `grove:"version"     bson:"version"`
	Metadata   map[string]string `grove:"metadata"    bson:"metadata,omitempty"`
	CreatedAt  time.Time         `grove:"created_at"  bson:"created_at"`
	UpdatedAt  time.Time         `grove:"updated_at"  bson:"updated_at"`
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
		// Unknown pool names in stored documents are preserved as-is so
		// a rollback to an older pool set does not lose balances.
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

	ID             string            `grove:"id,pk"           bson:"_id"`
	AccountID      string            `grove:"account_id"      bson:"account_id"`
	ModelID        string            `grove:"model_id"        bson:"model_id"`
	SourcePool     string            `grove:"source_pool"     bson:"source_pool"`
	TokensUsed     int64             `grove:"tokens_used"     bson:"tokens_used"`
	TokensDebited  int64             `grove:"tokens_debited"  bson:"tokens_debited"`
	Timestamp      time.Time         `grove:"timestamp"       bson:"timestamp"`
	IdempotencyKey string            `grove:"idempotency_key" bson:"idempotency_key,omitempty"`
	Metadata       map[string]string `grove:"metadata"        bson:"metadata,omitempty"`
	CreatedAt      time.Time         `grove:"created_at"      bson:"created_at"`
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

	ID            string           `grove:"id,pk"          bson:"_id"`
	AccountID     string           `grove:"account_id"     bson:"account_id"`
	Key           string           `grove:"receipt_key"    bson:"receipt_key"`
	SourcePool    string           `grove:"source_pool"    bson:"source_pool"`
	TokensDebited int64            `grove:"tokens_debited" bson:"tokens_debited"`
	BalanceAfter  map[string]int64 `grove:"balance_after"  bson:"balance_after,omitempty"`
	CreatedAt     time.Time        `grove:"created_at"     bson:"created_at"`
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
