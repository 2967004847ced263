// Package observability provides a metrics extension for Wallet that records
// lifecycle event counts through a caller-supplied MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/wallet/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin           = (*MetricsExtension)(nil)
	_ plugin.OnInit           = (*MetricsExtension)(nil)
	_ plugin.OnAccountCreated = (*MetricsExtension)(nil)
	_ plugin.OnDebitApplied   = (*MetricsExtension)(nil)
	_ plugin.OnDebitRejected  = (*MetricsExtension)(nil)
	_ plugin.OnCreditApplied  = (*MetricsExtension)(nil)
	_ plugin.OnBalanceChanged = (*MetricsExtension)(nil)
	_ plugin.OnUsageFlushed   = (*MetricsExtension)(nil)
	_ plugin.OnReceiptsPurged = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Wallet plugin to automatically track debit metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Account metrics
	AccountCreated Counter

	// Debit metrics
	DebitApplied  Counter
	DebitRejected Counter

	// Credit metrics
	CreditApplied Counter
	CreditTokens  Histogram

	// Snapshot metrics
	SnapshotsPublished Counter

	// Usage metrics
	UsageBatchSize    Histogram
	UsageFlushLatency Histogram

	// Receipt metrics
	ReceiptsPurged Counter

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Account metrics
		AccountCreated: factory.Counter("wallet.account.created"),

		// Debit metrics
		DebitApplied:  factory.Counter("wallet.debit.applied"),
		DebitRejected: factory.Counter("wallet.debit.rejected"),

		// Credit metrics
		CreditApplied: factory.Counter("wallet.credit.applied"),
		CreditTokens:  factory.Histogram("wallet.credit.tokens"),

		// Snapshot metrics
		SnapshotsPublished: factory.Counter("wallet.snapshots.published"),

		// Usage metrics
		UsageBatchSize:    factory.Histogram("wallet.usage.batch.size"),
		UsageFlushLatency: factory.Histogram("wallet.usage.flush.latency_ms"),

		// Receipt metrics
		ReceiptsPurged: factory.Counter("wallet.receipts.purged"),

		// Error metrics
		StoreErrors:  factory.Counter("wallet.store.errors"),
		PluginErrors: factory.Counter("wallet.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// OnAccountCreated implements plugin.OnAccountCreated.
func (m *MetricsExtension) OnAccountCreated(_ context.Context, _ interface{}) error {
	m.AccountCreated.Inc()
	return nil
}

// OnDebitApplied implements plugin.OnDebitApplied.
func (m *MetricsExtension) OnDebitApplied(_ context.Context, _ string, _ interface{}) error {
	m.DebitApplied.Inc()
	return nil
}

// OnDebitRejected implements plugin.OnDebitRejected.
func (m *MetricsExtension) OnDebitRejected(_ context.Context, _ string, _ interface{}, _ error) error {
	m.DebitRejected.Inc()
	return nil
}

// OnCreditApplied implements plugin.OnCreditApplied.
func (m *MetricsExtension) OnCreditApplied(_ context.Context, _, _ string, amount int64) error {
	m.CreditApplied.Inc()
	m.CreditTokens.Observe(float64(amount))
	return nil
}

// OnBalanceChanged implements plugin.OnBalanceChanged.
func (m *MetricsExtension) OnBalanceChanged(_ context.Context, _ interface{}) error {
	m.SnapshotsPublished.Inc()
	return nil
}

// OnUsageFlushed implements plugin.OnUsageFlushed.
func (m *MetricsExtension) OnUsageFlushed(_ context.Context, count int, elapsed time.Duration) error {
	m.UsageBatchSize.Observe(float64(count))
	m.UsageFlushLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnReceiptsPurged implements plugin.OnReceiptsPurged.
func (m *MetricsExtension) OnReceiptsPurged(_ context.Context, purged int64) error {
	m.ReceiptsPurged.Add(float64(purged))
	return nil
}
