package rate

import (
	"testing"

	"github.com/xraph/wallet/account"
)

func TestDefaultTable(t *testing.T) {
	tbl := Default()

	tests := []struct {
		model      string
		multiplier int64
		pool       account.Pool
	}{
		{"gpt-4o", 15, account.PoolGPT},
		{"claude-sonnet-4", 12, account.PoolClaude},
		{"claude-opus-4", 25, account.PoolClaude},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			m, ok := tbl.Of(tt.model)
			if !ok {
				t.Fatalf("expected %s in default table", tt.model)
			}
			if m != tt.multiplier {
				t.Errorf("multiplier: got %d, want %d", m, tt.multiplier)
			}

			p, ok := tbl.NativePool(tt.model)
			if !ok {
				t.Fatalf("expected native pool for %s", tt.model)
			}
			if p != tt.pool {
				t.Errorf("native pool: got %s, want %s", p, tt.pool)
			}
		})
	}
}

func TestUnknownModel(t *testing.T) {
	tbl := Default()

	if _, ok := tbl.Of("unrecognized-model"); ok {
		t.Error("unknown model must not resolve a multiplier")
	}
	if _, ok := tbl.NativePool("unrecognized-model"); ok {
		t.Error("unknown model must not resolve a native pool")
	}
	if tbl.Knows("unrecognized-model") {
		t.Error("Knows must be false for unknown model")
	}
}

func TestNewTableDropsInvalidEntries(t *testing.T) {
	tbl := NewTable(map[string]Entry{
		"good":         {Multiplier: 10},
		"zero-rate":    {Multiplier: 0},
		"negative":     {Multiplier: -3},
		"":             {Multiplier: 5},
		"bad-pool":     {Multiplier: 5, NativePool: "credits"},
		"builder-pool": {Multiplier: 5, NativePool: "claude"},
	})

	if tbl.Len() != 2 {
		t.Fatalf("expected 2 surviving entries, got %d: %v", tbl.Len(), tbl.Models())
	}
	if !tbl.Knows("good") || !tbl.Knows("builder-pool") {
		t.Error("valid entries were dropped")
	}
	if tbl.Knows("zero-rate") || tbl.Knows("negative") || tbl.Knows("bad-pool") {
		t.Error("invalid entries were kept")
	}
}

func TestNoNativePool(t *testing.T) {
	tbl := NewTable(map[string]Entry{
		"universal-only": {Multiplier: 8},
	})

	if _, ok := tbl.NativePool("universal-only"); ok {
		t.Error("model without native pool must not resolve one")
	}
	if m, ok := tbl.Of("universal-only"); !ok || m != 8 {
		t.Errorf("Of: got (%d, %v), want (8, true)", m, ok)
	}
}

func TestTableIsCopied(t *testing.T) {
	src := map[string]Entry{"m": {Multiplier: 2}}
	tbl := NewTable(src)

	src["m"] = Entry{Multiplier: 99}
	src["later"] = Entry{Multiplier: 1}

	if m, _ := tbl.Of("m"); m != 2 {
		t.Errorf("table mutated through source map: got %d", m)
	}
	if tbl.Knows("later") {
		t.Error("table grew through source map")
	}
}
