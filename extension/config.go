package extension

import (
	"time"

	"github.com/xraph/wallet/rate"
)

// Config holds the Wallet extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.wallet" or "wallet" keys).
type Config struct {
	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for wallet routes (default: "/wallet").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// MeterBatchSize is the number of usage events to buffer before flushing
	// to the store (default: 100).
	MeterBatchSize int `json:"meter_batch_size" mapstructure:"meter_batch_size" yaml:"meter_batch_size"`

	// MeterFlushInterval is how frequently the meter buffer is flushed
	// even if the batch size has not been reached (default: 5s).
	MeterFlushInterval time.Duration `json:"meter_flush_interval" mapstructure:"meter_flush_interval" yaml:"meter_flush_interval"`

	// ReceiptWindow controls how long idempotency receipts are retained
	// before the purge worker removes them (default: 24h).
	ReceiptWindow time.Duration `json:"receipt_window" mapstructure:"receipt_window" yaml:"receipt_window"`

	// InitialGrant overrides the builder tokens seeded into new accounts.
	// Zero keeps the engine default.
	InitialGrant int64 `json:"initial_grant" mapstructure:"initial_grant" yaml:"initial_grant"`

	// Rates replaces the built-in exchange-rate table when non-empty,
	// keyed by model identifier.
	Rates map[string]rate.Entry `json:"rates" mapstructure:"rates" yaml:"rates"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MeterBatchSize:     100,
		MeterFlushInterval: 5 * time.Second,
		ReceiptWindow:      24 * time.Hour,
	}
}
