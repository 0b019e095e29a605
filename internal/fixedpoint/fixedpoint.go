// Package fixedpoint implements the 18-decimal mantissa arithmetic used for
// rates, fractions and token amounts across the pool.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits carried by a mantissa.
const Decimals = 18

// ErrInvalidAmount is returned when a decimal string cannot be represented.
var ErrInvalidAmount = errors.New("invalid amount")

var scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// One returns 1.0 expressed as a mantissa.
func One() *big.Int { return new(big.Int).Set(scale) }

// Zero returns a fresh zero value.
func Zero() *big.Int { return new(big.Int) }

// New wraps an int64 in a fresh big.Int.
func New(v int64) *big.Int { return big.NewInt(v) }

// Clone copies v, treating nil as zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// MulMantissa returns x * mantissa / 1e18, truncated.
func MulMantissa(x, mantissa *big.Int) *big.Int {
	out := new(big.Int).Mul(x, mantissa)
	return out.Quo(out, scale)
}

// DivToMantissa returns x * 1e18 / y, truncated. y must be non-zero.
func DivToMantissa(x, y *big.Int) *big.Int {
	out := new(big.Int).Mul(x, scale)
	return out.Quo(out, y)
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// IsPositive reports whether v is strictly greater than zero.
func IsPositive(v *big.Int) bool { return v != nil && v.Sign() > 0 }

// ParseUnits converts a human decimal string such as "1.5" into base units
// with 18 decimals. More than 18 fractional digits is rejected.
func ParseUnits(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	shifted := d.Shift(Decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, Decimals)
	}
	return shifted.BigInt(), nil
}

// MustParseUnits is ParseUnits for constants and tests.
func MustParseUnits(s string) *big.Int {
	v, err := ParseUnits(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatUnits renders base units as a decimal string, e.g. 1.5e18 -> "1.5".
func FormatUnits(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -Decimals).String()
}
