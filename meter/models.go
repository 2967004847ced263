// Package meter defines the usage journal records written for every
// applied debit.
package meter

import (
	"time"

	"github.com/xraph/wallet/account"
	"github.com/xraph/wallet/id"
	"github.com/xraph/wallet/types"
)

// UsageEvent is the journal record of one applied consumption request.
// TokensUsed is in model usage units; TokensDebited is the amount actually
// removed from SourcePool (equal to TokensUsed for native debits, converted
// via the multiplier for builder-pool debits).
type UsageEvent struct {
	ID             id.UsageEventID   `json:"id"`
	AccountID      string            `json:"account_id"`
	ModelID        string            `json:"model_id"`
	SourcePool     account.Pool      `json:"source_pool"`
	TokensUsed     int64             `json:"tokens_used"`
	TokensDebited  types.Tokens      `json:"tokens_debited"`
	Timestamp      time.Time         `json:"timestamp"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// QueryOpts filters usage journal queries.
type QueryOpts struct {
	ModelID string
	Pool    account.Pool
	Start   time.Time
	End     time.Time
	Limit   int
	Offset  int
}
