package wallet

import (
	"github.com/xraph/wallet/account"
	"github.com/xraph/wallet/rate"
	"github.com/xraph/wallet/types"
)

// DebitOutcome classifies the result of a debit computation.
type DebitOutcome string

const (
	// DebitApplied means a pool was selected and the debit can proceed.
	DebitApplied DebitOutcome = "applied"
	// DebitRejected means no pool could cover the request.
	DebitRejected DebitOutcome = "rejected"
)

// DebitPlan is the pure result of routing a consumption request against
// an account's pools. It carries everything needed to apply the debit
// or explain the rejection; it never mutates the account. Reason holds
// one of the Reason* tokens when the plan is rejected.
type DebitPlan struct {
	ModelID         string       `json:"model_id"`
	TokensUsed      int64        `json:"tokens_used"`
	SourcePool      account.Pool `json:"source_pool,omitempty"`
	DebitedAmount   types.Tokens `json:"debited_amount"`
	Outcome         DebitOutcome `json:"outcome"`
	Reason          string       `json:"reason,omitempty"`
	NativeShortfall types.Tokens `json:"native_shortfall,omitempty"`
}

// ComputeDebit routes a consumption request to a pool. The model's
// native pool is tried first at 1:1; if it cannot cover the request,
// the builder pool is tried at the model's multiplier. Partial debits
// across pools are never produced: exactly one pool pays, or the plan
// is rejected.
func ComputeDebit(acct *account.Account, rates *rate.Table, modelID string, tokensUsed int64) (DebitPlan, error) {
	plan := DebitPlan{ModelID: modelID, TokensUsed: tokensUsed}

	if tokensUsed <= 0 {
		plan.Outcome = DebitRejected
		plan.Reason = ReasonInvalidAmount
		return plan, ErrInvalidAmount
	}

	multiplier, ok := rates.Of(modelID)
	if !ok {
		plan.Outcome = DebitRejected
		plan.Reason = ReasonUnknownModel
		return plan, ErrUnknownModel
	}

	native := types.Tokens(tokensUsed)
	if pool, ok := rates.NativePool(modelID); ok {
		if acct.Balance(pool).Covers(native) {
			plan.SourcePool = pool
			plan.DebitedAmount = native
			plan.Outcome = DebitApplied
			return plan, nil
		}
		plan.NativeShortfall = native.Subtract(acct.Balance(pool))
	}

	converted := native.MultiplyRate(multiplier)
	if acct.Balance(account.PoolBuilder).Covers(converted) {
		plan.SourcePool = account.PoolBuilder
		plan.DebitedAmount = converted
		plan.Outcome = DebitApplied
		return plan, nil
	}

	plan.Outcome = DebitRejected
	plan.Reason = ReasonInsufficientBalance
	return plan, ErrInsufficientBalance
}
