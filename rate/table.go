// Package rate provides the static exchange-rate table that converts
// model-specific usage into universal builder tokens.
//
// The table is populated once at process start and never mutated. Every
// model the consumption engine accepts must resolve to exactly one
// multiplier; a missing entry is a hard rejection upstream, never free usage.
package rate

import "github.com/xraph/wallet/account"

// Entry describes one model's exchange configuration.
type Entry struct {
	// Multiplier converts one unit of model usage into builder tokens.
	// Always positive.
	Multiplier int64 `json:"multiplier" mapstructure:"multiplier" yaml:"multiplier"`

	// NativePool names the model-family pool usable 1:1 for this model,
	// empty when the model has no native pool.
	NativePool string `json:"native_pool,omitempty" mapstructure:"native_pool" yaml:"native_pool"`
}

// Table is an immutable mapping from model identifier to exchange entry.
type Table struct {
	entries map[string]Entry
}

// NewTable builds a table from the given entries. Entries with a
// non-positive multiplier or an unrecognized native pool are dropped:
// a model that cannot be priced must not be silently consumable.
// The input map is copied; later mutation of it does not affect the table.
func NewTable(entries map[string]Entry) *Table {
	t := &Table{entries: make(map[string]Entry, len(entries))}
	for model, e := range entries {
		if model == "" || e.Multiplier <= 0 {
			continue
		}
		if e.NativePool != "" {
			if _, ok := account.ParsePool(e.NativePool); !ok {
				continue
			}
		}
		t.entries[model] = e
	}
	return t
}

// Default returns the production exchange-rate table.
func Default() *Table {
	return NewTable(map[string]Entry{
		"gpt-4o":          {Multiplier: 15, NativePool: string(account.PoolGPT)},
		"claude-sonnet-4": {Multiplier: 12, NativePool: string(account.PoolClaude)},
		"claude-opus-4":   {Multiplier: 25, NativePool: string(account.PoolClaude)},
	})
}

// Of returns the builder-token multiplier for the model.
// The second return is false when the model is unknown.
func (t *Table) Of(modelID string) (int64, bool) {
	e, ok := t.entries[modelID]
	if !ok {
		return 0, false
	}
	return e.Multiplier, true
}

// NativePool returns the model-family pool the model can draw from at 1:1.
// The second return is false when the model has no native pool.
func (t *Table) NativePool(modelID string) (account.Pool, bool) {
	e, ok := t.entries[modelID]
	if !ok || e.NativePool == "" {
		return "", false
	}
	p, ok := account.ParsePool(e.NativePool)
	return p, ok
}

// Knows reports whether the model has any entry in the table.
func (t *Table) Knows(modelID string) bool {
	_, ok := t.entries[modelID]
	return ok
}

// Models returns all model identifiers in the table.
func (t *Table) Models() []string {
	models := make([]string, 0, len(t.entries))
	for m := range t.entries {
		models = append(models, m)
	}
	return models
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.entries) }
