// Package audithook bridges Wallet lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/wallet/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin           = (*Extension)(nil)
	_ plugin.OnAccountCreated = (*Extension)(nil)
	_ plugin.OnDebitApplied   = (*Extension)(nil)
	_ plugin.OnDebitRejected  = (*Extension)(nil)
	_ plugin.OnCreditApplied  = (*Extension)(nil)
	_ plugin.OnUsageFlushed   = (*Extension)(nil)
	_ plugin.OnReceiptsPurged = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly; callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Wallet lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (e *Extension) OnAccountCreated(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionAccountCreated, SeverityInfo, OutcomeSuccess,
		ResourceAccount, "", CategoryBilling, nil,
		"event", "account_created",
	)
}

// ──────────────────────────────────────────────────
// Debit/credit lifecycle hooks
// ──────────────────────────────────────────────────

// OnDebitApplied implements plugin.OnDebitApplied.
func (e *Extension) OnDebitApplied(ctx context.Context, accountID string, _ interface{}) error {
	return e.record(ctx, ActionDebitApplied, SeverityInfo, OutcomeSuccess,
		ResourceDebit, accountID, CategoryBilling, nil,
		"account_id", accountID,
	)
}

// OnDebitRejected implements plugin.OnDebitRejected.
func (e *Extension) OnDebitRejected(ctx context.Context, accountID string, _ interface{}, reason error) error {
	return e.record(ctx, ActionDebitRejected, SeverityWarning, OutcomeFailure,
		ResourceDebit, accountID, CategoryAccess, reason,
		"account_id", accountID,
	)
}

// OnCreditApplied implements plugin.OnCreditApplied.
func (e *Extension) OnCreditApplied(ctx context.Context, accountID, pool string, amount int64) error {
	return e.record(ctx, ActionCreditApplied, SeverityInfo, OutcomeSuccess,
		ResourceCredit, accountID, CategoryBilling, nil,
		"account_id", accountID,
		"pool", pool,
		"amount", amount,
	)
}

// ──────────────────────────────────────────────────
// Journal lifecycle hooks
// ──────────────────────────────────────────────────

// OnUsageFlushed implements plugin.OnUsageFlushed.
func (e *Extension) OnUsageFlushed(ctx context.Context, count int, _ time.Duration) error {
	return e.record(ctx, ActionUsageFlushed, SeverityInfo, OutcomeSuccess,
		ResourceUsage, "", CategoryUsage, nil,
		"count", count,
	)
}

// OnReceiptsPurged implements plugin.OnReceiptsPurged.
func (e *Extension) OnReceiptsPurged(ctx context.Context, purged int64) error {
	return e.record(ctx, ActionReceiptsPurged, SeverityInfo, OutcomeSuccess,
		ResourceReceipt, "", CategoryBilling, nil,
		"purged", purged,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
