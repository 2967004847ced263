// Package extension provides the Forge extension adapter for Wallet.
//
// It implements the forge.Extension interface to integrate Wallet
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.wallet" or "wallet" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	wallet "github.com/xraph/wallet"
	"github.com/xraph/wallet/rate"
	"github.com/xraph/wallet/store"
	"github.com/xraph/wallet/store/memory"
	"github.com/xraph/wallet/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "wallet"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Prepaid usage wallet with pooled credits"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Wallet as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *wallet.Wallet
	store      store.Store
	walletOpts []wallet.Option
}

// New creates a new Wallet Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Wallet instance.
// This is nil until Register is called.
func (e *Extension) Engine() *wallet.Wallet { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the wallet engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build wallet options from resolved config.
	opts := e.buildWalletOpts()

	eng := wallet.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*wallet.Wallet, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("wallet: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("wallet: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildWalletOpts constructs wallet.Option values from the resolved config.
func (e *Extension) buildWalletOpts() []wallet.Option {
	opts := make([]wallet.Option, 0, len(e.walletOpts)+4)

	// Apply config-derived options.
	if e.config.MeterBatchSize > 0 || e.config.MeterFlushInterval > 0 {
		batchSize := e.config.MeterBatchSize
		flushInterval := e.config.MeterFlushInterval
		defaults := DefaultConfig()
		if batchSize == 0 {
			batchSize = defaults.MeterBatchSize
		}
		if flushInterval == 0 {
			flushInterval = defaults.MeterFlushInterval
		}
		opts = append(opts, wallet.WithMeterConfig(batchSize, flushInterval))
	}

	if e.config.ReceiptWindow > 0 {
		opts = append(opts, wallet.WithReceiptWindow(e.config.ReceiptWindow))
	}

	if e.config.InitialGrant > 0 {
		opts = append(opts, wallet.WithInitialGrant(types.Tokens(e.config.InitialGrant)))
	}

	if len(e.config.Rates) > 0 {
		opts = append(opts, wallet.WithRates(rate.NewTable(e.config.Rates)))
	}

	// Append any pass-through wallet options.
	opts = append(opts, e.walletOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("wallet: configuration is required but not found in config files; " +
				"ensure 'extensions.wallet' or 'wallet' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("wallet: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("meter_batch_size", e.config.MeterBatchSize),
		forge.F("meter_flush_interval", e.config.MeterFlushInterval),
		forge.F("receipt_window", e.config.ReceiptWindow),
		forge.F("rates", len(e.config.Rates)),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.wallet" first (namespaced pattern).
	if cm.IsSet("extensions.wallet") {
		if err := cm.Bind("extensions.wallet", &cfg); err == nil {
			e.Logger().Debug("wallet: loaded config from file",
				forge.F("key", "extensions.wallet"),
			)
			return cfg, true
		}
		e.Logger().Warn("wallet: failed to bind extensions.wallet config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "wallet" key.
	if cm.IsSet("wallet") {
		if err := cm.Bind("wallet", &cfg); err == nil {
			e.Logger().Debug("wallet: loaded config from file",
				forge.F("key", "wallet"),
			)
			return cfg, true
		}
		e.Logger().Warn("wallet: failed to bind wallet config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.MeterBatchSize == 0 {
		cfg.MeterBatchSize = defaults.MeterBatchSize
	}
	if cfg.MeterFlushInterval == 0 {
		cfg.MeterFlushInterval = defaults.MeterFlushInterval
	}
	if cfg.ReceiptWindow == 0 {
		cfg.ReceiptWindow = defaults.ReceiptWindow
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.BasePath == "" && programmaticConfig.BasePath != "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.MeterBatchSize == 0 && programmaticConfig.MeterBatchSize != 0 {
		yamlConfig.MeterBatchSize = programmaticConfig.MeterBatchSize
	}
	if yamlConfig.MeterFlushInterval == 0 && programmaticConfig.MeterFlushInterval != 0 {
		yamlConfig.MeterFlushInterval = programmaticConfig.MeterFlushInterval
	}
	if yamlConfig.ReceiptWindow == 0 && programmaticConfig.ReceiptWindow != 0 {
		yamlConfig.ReceiptWindow = programmaticConfig.ReceiptWindow
	}
	if yamlConfig.InitialGrant == 0 && programmaticConfig.InitialGrant != 0 {
		yamlConfig.InitialGrant = programmaticConfig.InitialGrant
	}
	if len(yamlConfig.Rates) == 0 && len(programmaticConfig.Rates) != 0 {
		yamlConfig.Rates = programmaticConfig.Rates
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
