package extension

import (
	"time"

	wallet "github.com/xraph/wallet"
	"github.com/xraph/wallet/plugin"
	"github.com/xraph/wallet/rate"
	"github.com/xraph/wallet/store"
)

// Option configures the Wallet Forge extension.
type Option func(*Extension)

// WithStore sets the store for the wallet engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithWalletOption passes a wallet.Option through to the underlying engine.
func WithWalletOption(opt wallet.Option) Option {
	return func(e *Extension) {
		e.walletOpts = append(e.walletOpts, opt)
	}
}

// WithPlugin registers a wallet plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.walletOpts = append(e.walletOpts, wallet.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents HTTP route registration.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for wallet routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithMeterBatchSize sets the number of usage events to buffer before flushing.
func WithMeterBatchSize(size int) Option {
	return func(e *Extension) { e.config.MeterBatchSize = size }
}

// WithMeterFlushInterval sets how frequently the meter buffer is flushed.
func WithMeterFlushInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.MeterFlushInterval = d }
}

// WithReceiptWindow sets the idempotency receipt retention window.
func WithReceiptWindow(d time.Duration) Option {
	return func(e *Extension) { e.config.ReceiptWindow = d }
}

// WithInitialGrant overrides the builder tokens seeded into new accounts.
func WithInitialGrant(grant int64) Option {
	return func(e *Extension) { e.config.InitialGrant = grant }
}

// WithRates replaces the built-in exchange-rate table.
func WithRates(entries map[string]rate.Entry) Option {
	return func(e *Extension) { e.config.Rates = entries }
}
