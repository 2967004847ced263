package types

import (
	"encoding/json"
	"testing"
)

func TestTokensArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Tokens
		expected Tokens
	}{
		{"Add", func() Tokens { return Tokens(100).Add(200) }, 300},
		{"Subtract", func() Tokens { return Tokens(500).Subtract(200) }, 300},
		{"MultiplyRate", func() Tokens { return Tokens(1000).MultiplyRate(12) }, 12000},
		{"Complex", func() Tokens {
			return Tokens(1000).Add(500).MultiplyRate(2).Subtract(1000)
		}, 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if result != tt.expected {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestTokensComparisons(t *testing.T) {
	tests := []struct {
		name string
		got  bool
		want bool
	}{
		{"IsZero zero", Tokens(0).IsZero(), true},
		{"IsZero nonzero", Tokens(1).IsZero(), false},
		{"IsPositive", Tokens(5).IsPositive(), true},
		{"IsPositive zero", Tokens(0).IsPositive(), false},
		{"IsNegative", Tokens(-5).IsNegative(), true},
		{"Covers equal", Tokens(100).Covers(100), true},
		{"Covers larger", Tokens(100).Covers(101), false},
		{"Covers smaller", Tokens(100).Covers(99), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	if Tokens(3).Min(7) != 3 {
		t.Error("Min: expected 3")
	}
	if Tokens(3).Max(7) != 7 {
		t.Error("Max: expected 7")
	}
}

func TestTokensString(t *testing.T) {
	tests := []struct {
		name   string
		tokens Tokens
		want   string
	}{
		{"Zero", 0, "0"},
		{"Small", 950, "950"},
		{"Thousands", 12000, "12,000"},
		{"Millions", 2000000, "2,000,000"},
		{"Odd grouping", 1234567, "1,234,567"},
		{"Negative", -12000, "-12,000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tokens.String(); got != tt.want {
				t.Errorf("String: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTokensCompact(t *testing.T) {
	tests := []struct {
		name   string
		tokens Tokens
		want   string
	}{
		{"Small", 950, "950"},
		{"Thousands", 12500, "12.5K"},
		{"Millions", 2000000, "2.0M"},
		{"Negative", -12500, "-12.5K"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tokens.Compact(); got != tt.want {
				t.Errorf("Compact: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTokensJSON(t *testing.T) {
	data, err := json.Marshal(Tokens(988000))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != "988000" {
		t.Errorf("expected plain number, got %s", data)
	}

	var restored Tokens
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if restored != 988000 {
		t.Errorf("round-trip mismatch: got %d", restored)
	}
}

func TestSum(t *testing.T) {
	if got := Sum(); got != 0 {
		t.Errorf("empty Sum: got %d, want 0", got)
	}
	if got := Sum(100, 200, 300); got != 600 {
		t.Errorf("Sum: got %d, want 600", got)
	}
}
