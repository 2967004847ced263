package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit           []OnInit
	onShutdown       []OnShutdown
	onAccountCreated []OnAccountCreated
	onDebitApplied   []OnDebitApplied
	onDebitRejected  []OnDebitRejected
	onCreditApplied  []OnCreditApplied
	onBalanceChanged []OnBalanceChanged
	onUsageFlushed   []OnUsageFlushed
	onReceiptsPurged []OnReceiptsPurged
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAccountCreated); ok {
		r.onAccountCreated = append(r.onAccountCreated, v)
	}
	if v, ok := p.(OnDebitApplied); ok {
		r.onDebitApplied = append(r.onDebitApplied, v)
	}
	if v, ok := p.(OnDebitRejected); ok {
		r.onDebitRejected = append(r.onDebitRejected, v)
	}
	if v, ok := p.(OnCreditApplied); ok {
		r.onCreditApplied = append(r.onCreditApplied, v)
	}
	if v, ok := p.(OnBalanceChanged); ok {
		r.onBalanceChanged = append(r.onBalanceChanged, v)
	}
	if v, ok := p.(OnUsageFlushed); ok {
		r.onUsageFlushed = append(r.onUsageFlushed, v)
	}
	if v, ok := p.(OnReceiptsPurged); ok {
		r.onReceiptsPurged = append(r.onReceiptsPurged, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnAccountCreated)(nil)).Elem(), "OnAccountCreated")
	checkInterface(reflect.TypeOf((*OnDebitApplied)(nil)).Elem(), "OnDebitApplied")
	checkInterface(reflect.TypeOf((*OnDebitRejected)(nil)).Elem(), "OnDebitRejected")
	checkInterface(reflect.TypeOf((*OnCreditApplied)(nil)).Elem(), "OnCreditApplied")
	checkInterface(reflect.TypeOf((*OnBalanceChanged)(nil)).Elem(), "OnBalanceChanged")
	checkInterface(reflect.TypeOf((*OnUsageFlushed)(nil)).Elem(), "OnUsageFlushed")
	checkInterface(reflect.TypeOf((*OnReceiptsPurged)(nil)).Elem(), "OnReceiptsPurged")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, wallet interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, wallet)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAccountCreated emits an account created event.
func (r *Registry) EmitAccountCreated(ctx context.Context, acct interface{}) {
	r.mu.RLock()
	plugins := r.onAccountCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAccountCreated(ctx, acct)
		}); err != nil {
			r.logger.Warn("plugin OnAccountCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDebitApplied emits a debit applied event.
func (r *Registry) EmitDebitApplied(ctx context.Context, accountID string, plan interface{}) {
	r.mu.RLock()
	plugins := r.onDebitApplied
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDebitApplied(ctx, accountID, plan)
		}); err != nil {
			r.logger.Warn("plugin OnDebitApplied failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDebitRejected emits a debit rejected event.
func (r *Registry) EmitDebitRejected(ctx context.Context, accountID string, plan interface{}, reason error) {
	r.mu.RLock()
	plugins := r.onDebitRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDebitRejected(ctx, accountID, plan, reason)
		}); err != nil {
			r.logger.Warn("plugin OnDebitRejected failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCreditApplied emits a credit applied event.
func (r *Registry) EmitCreditApplied(ctx context.Context, accountID, pool string, amount int64) {
	r.mu.RLock()
	plugins := r.onCreditApplied
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditApplied(ctx, accountID, pool, amount)
		}); err != nil {
			r.logger.Warn("plugin OnCreditApplied failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitBalanceChanged emits a balance changed event.
func (r *Registry) EmitBalanceChanged(ctx context.Context, snap interface{}) {
	r.mu.RLock()
	plugins := r.onBalanceChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnBalanceChanged(ctx, snap)
		}); err != nil {
			r.logger.Warn("plugin OnBalanceChanged failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitUsageFlushed emits a usage flushed event.
func (r *Registry) EmitUsageFlushed(ctx context.Context, count int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onUsageFlushed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnUsageFlushed(ctx, count, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnUsageFlushed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitReceiptsPurged emits a receipts purged event.
func (r *Registry) EmitReceiptsPurged(ctx context.Context, purged int64) {
	r.mu.RLock()
	plugins := r.onReceiptsPurged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnReceiptsPurged(ctx, purged)
		}); err != nil {
			r.logger.Warn("plugin OnReceiptsPurged failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the debit pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
