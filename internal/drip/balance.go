package drip

import (
	"math/big"

	"github.com/congo-pay/prizepool/internal/fixedpoint"
)

// BalanceDrip streams RatePerSecond reward tokens to holders of a measure
// token in proportion to their balance. ExchangeRate is the cumulative reward
// per unit of measure supply (1e18 mantissa); a holder is owed
// balance * (ExchangeRate - rateAtLastCapture).
type BalanceDrip struct {
	RatePerSecond *big.Int
	ExchangeRate  *big.Int
	Timestamp     int64
	Active        bool

	userRates map[string]*big.Int
}

func newBalanceDrip(rate *big.Int, now int64) *BalanceDrip {
	return &BalanceDrip{
		RatePerSecond: fixedpoint.Clone(rate),
		ExchangeRate:  fixedpoint.One(),
		Timestamp:     now,
		Active:        true,
		userRates:     make(map[string]*big.Int),
	}
}

// drip advances the exchange rate to now for the supply held since the last
// drip. Tokens dripped while the supply is zero are not distributed.
func (d *BalanceDrip) drip(totalSupply *big.Int, now int64) {
	elapsed := now - d.Timestamp
	if elapsed <= 0 {
		return
	}
	d.Timestamp = now
	if d.RatePerSecond.Sign() == 0 || totalSupply.Sign() == 0 {
		return
	}
	newTokens := new(big.Int).Mul(d.RatePerSecond, big.NewInt(elapsed))
	d.ExchangeRate.Add(d.ExchangeRate, fixedpoint.DivToMantissa(newTokens, totalSupply))
}

// capture returns what holder earned since its last capture and moves its
// checkpoint to the current exchange rate.
func (d *BalanceDrip) capture(holder string, balance *big.Int) *big.Int {
	last, ok := d.userRates[holder]
	if !ok {
		last = fixedpoint.One()
	}
	d.userRates[holder] = fixedpoint.Clone(d.ExchangeRate)
	delta := new(big.Int).Sub(d.ExchangeRate, last)
	if delta.Sign() <= 0 || balance.Sign() == 0 {
		return new(big.Int)
	}
	return fixedpoint.MulMantissa(balance, delta)
}

// pending is capture without side effects, projecting the drip to now.
func (d *BalanceDrip) pending(holder string, balance, totalSupply *big.Int, now int64) *big.Int {
	rate := fixedpoint.Clone(d.ExchangeRate)
	if elapsed := now - d.Timestamp; elapsed > 0 && d.RatePerSecond.Sign() > 0 && totalSupply.Sign() > 0 {
		newTokens := new(big.Int).Mul(d.RatePerSecond, big.NewInt(elapsed))
		rate.Add(rate, fixedpoint.DivToMantissa(newTokens, totalSupply))
	}
	last, ok := d.userRates[holder]
	if !ok {
		last = fixedpoint.One()
	}
	delta := rate.Sub(rate, last)
	if delta.Sign() <= 0 {
		return new(big.Int)
	}
	return fixedpoint.MulMantissa(balance, delta)
}
