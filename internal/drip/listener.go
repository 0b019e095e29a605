package drip

import (
	"context"
	"math/big"
)

// Listener receives a pool's balance changes and keeps the drips of that
// source in step with them. Reported balances are the values after the
// change; drips settle on the values before it.
type Listener struct {
	engine *Engine
	source string
}

// Listener returns the listener bound to source.
func (e *Engine) Listener(source string) *Listener {
	return &Listener{engine: e, source: source}
}

// AfterDepositTo settles balance drips for holder and records deposit volume.
// Referral volume drips credit the referrer when one is given.
func (l *Listener) AfterDepositTo(ctx context.Context, holder string, amount, newBalance, newTotalSupply *big.Int, token, referrer string) {
	e := l.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	oldBalance := new(big.Int).Sub(newBalance, amount)
	oldSupply := new(big.Int).Sub(newTotalSupply, amount)
	e.captureBalanceDrips(l.source, token, holder, oldBalance, oldSupply, now)

	e.recordVolume(l.source, token, holder, amount, false, now)
	if referrer != "" {
		e.recordVolume(l.source, token, referrer, amount, true, now)
	}
}

// RevertDepositTo takes back the volume AfterDepositTo recorded for a deposit
// that was rolled back in the same instant. Balance drips stay settled.
func (l *Listener) RevertDepositTo(ctx context.Context, holder string, amount *big.Int, token, referrer string) {
	e := l.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.unrecordVolume(l.source, token, holder, amount, false, now)
	if referrer != "" {
		e.unrecordVolume(l.source, token, referrer, amount, true, now)
	}
}

// AfterWithdrawFrom settles balance drips for holder.
func (l *Listener) AfterWithdrawFrom(ctx context.Context, holder string, amount, newBalance, newTotalSupply *big.Int, token string) {
	e := l.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	oldBalance := new(big.Int).Add(newBalance, amount)
	oldSupply := new(big.Int).Add(newTotalSupply, amount)
	e.captureBalanceDrips(l.source, token, holder, oldBalance, oldSupply, e.now())
}

// AfterAwardTo settles balance drips for a winner. Prizes are not volume.
func (l *Listener) AfterAwardTo(ctx context.Context, holder string, amount, newBalance, newTotalSupply *big.Int, token string) {
	l.AfterWithdrawFrom(ctx, holder, new(big.Int).Neg(amount), newBalance, newTotalSupply, token)
}

// BeforeTokenTransfer settles both sides of a holder-to-holder transfer at
// their current balances. Mints and burns are reported through the other
// callbacks.
func (l *Listener) BeforeTokenTransfer(ctx context.Context, from, to string, amount *big.Int, token string) error {
	if from == "" || to == "" || from == to {
		return nil
	}
	e := l.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.hasBalanceDrips(l.source, token) {
		return nil
	}
	supply, err := e.ledger.TotalSupply(ctx, token)
	if err != nil {
		return err
	}
	fromBal, err := e.ledger.BalanceOf(ctx, token, from)
	if err != nil {
		return err
	}
	toBal, err := e.ledger.BalanceOf(ctx, token, to)
	if err != nil {
		return err
	}
	now := e.now()
	e.captureBalanceDrips(l.source, token, from, fromBal, supply, now)
	e.captureBalanceDrips(l.source, token, to, toBal, supply, now)
	return nil
}

func (e *Engine) hasBalanceDrips(source, measure string) bool {
	for key := range e.balanceDrips {
		if key.Source == source && key.Measure == measure {
			return true
		}
	}
	return false
}
