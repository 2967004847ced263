// Package types provides common types used across Wallet.
package types

import (
	"fmt"
	"strconv"
)

// Tokens represents a credit amount in whole token units.
// All arithmetic is integer-only; no floating point.
//
// Examples:
//   - Tokens(2_000_000) = the initial builder grant
//   - Tokens(12_000)    = 1000 tokens of a 12x model converted to builder units
type Tokens int64

// Arithmetic operations

// Add adds two token amounts.
func (t Tokens) Add(other Tokens) Tokens { return t + other }

// Subtract subtracts another token amount.
func (t Tokens) Subtract(other Tokens) Tokens { return t - other }

// MultiplyRate multiplies the amount by an exchange-rate multiplier.
func (t Tokens) MultiplyRate(rate int64) Tokens { return Tokens(int64(t) * rate) }

// Comparison methods

// IsZero returns true if the amount is zero.
func (t Tokens) IsZero() bool { return t == 0 }

// IsPositive returns true if the amount is greater than zero.
func (t Tokens) IsPositive() bool { return t > 0 }

// IsNegative returns true if the amount is less than zero.
func (t Tokens) IsNegative() bool { return t < 0 }

// Covers returns true if the balance t is sufficient for a debit of amount.
func (t Tokens) Covers(amount Tokens) bool { return t >= amount }

// Min returns the smaller of two token amounts.
func (t Tokens) Min(other Tokens) Tokens {
	if t < other {
		return t
	}
	return other
}

// Max returns the larger of two token amounts.
func (t Tokens) Max(other Tokens) Tokens {
	if t > other {
		return t
	}
	return other
}

// Int64 returns the amount as a plain int64.
func (t Tokens) Int64() int64 { return int64(t) }

// Formatting methods

// String returns the amount with thousands separators, e.g. "2,000,000".
func (t Tokens) String() string {
	n := int64(t)
	negative := n < 0
	if negative {
		n = -n
	}

	s := strconv.FormatInt(n, 10)
	out := make([]byte, 0, len(s)+len(s)/3)
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}

	if negative {
		return "-" + string(out)
	}
	return string(out)
}

// Compact returns an abbreviated form, e.g. "2.0M" or "12.5K".
// Amounts below 1000 are returned unabbreviated.
func (t Tokens) Compact() string {
	n := int64(t)
	negative := n < 0
	if negative {
		n = -n
	}

	var result string
	switch {
	case n >= 1_000_000:
		result = fmt.Sprintf("%d.%dM", n/1_000_000, (n%1_000_000)/100_000)
	case n >= 1_000:
		result = fmt.Sprintf("%d.%dK", n/1_000, (n%1_000)/100)
	default:
		result = strconv.FormatInt(n, 10)
	}

	if negative {
		return "-" + result
	}
	return result
}

// Sum calculates the sum of multiple token amounts.
func Sum(values ...Tokens) Tokens {
	var total Tokens
	for _, v := range values {
		total += v
	}
	return total
}
