package pool

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/congo-pay/prizepool/internal/access"
	"github.com/congo-pay/prizepool/internal/events"
	"github.com/congo-pay/prizepool/internal/fixedpoint"
	"github.com/congo-pay/prizepool/internal/timelock"
)

func checkAmount(amount *big.Int) error {
	if !fixedpoint.IsPositive(amount) {
		return ErrInvalidAmount
	}
	return nil
}

// Approve lets spender move the caller's token. Depositors approve the pool
// on the underlying token; holders approve operators on tickets.
func (p *Pool) Approve(ctx context.Context, token, spender string, amount *big.Int) error {
	caller, err := access.Caller(ctx)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if token != p.cfg.UnderlyingToken && !p.cfg.controlled(token) {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	return p.ledger.Approve(ctx, token, caller.ID, spender, amount)
}

// DepositTo pulls amount of the underlying token from the caller, supplies
// it to the yield source and mints amount of token to holder.
func (p *Pool) DepositTo(ctx context.Context, to string, amount *big.Int, token, referrer string) error {
	operator, err := access.Caller(ctx)
	if err != nil {
		return err
	}
	ctx, release, err := p.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := p.requireControlled(token); err != nil {
		return err
	}
	if to == "" {
		return fmt.Errorf("%w: empty recipient", ErrInvalidAmount)
	}
	if err := p.checkLiquidity(ctx, amount); err != nil {
		return err
	}

	j := p.newJournal(ctx)
	p.snapshotCredit(j, token, to)
	if err := p.mint(ctx, j, token, to, amount); err != nil {
		j.revert()
		return err
	}
	if err := p.pullUnderlying(ctx, j, operator.ID, amount); err != nil {
		j.revert()
		return err
	}
	if p.drips != nil {
		bal, supply := p.balanceAndSupply(ctx, token, to)
		p.drips.AfterDepositTo(ctx, to, amount, bal, supply, token, referrer)
		if r, ok := p.drips.(DepositReverter); ok {
			j.record(func(ctx context.Context) error {
				r.RevertDepositTo(ctx, to, amount, token, referrer)
				return nil
			})
		}
	}
	if err := p.supply(ctx, amount); err != nil {
		j.revert()
		return err
	}

	p.bus.Publish(ctx, events.Deposited{Operator: operator.ID, To: to, Token: token, Amount: fixedpoint.Clone(amount), Referrer: referrer})
	return nil
}

// afterWithdraw settles the listener on a burn before any funds leave the
// yield source. It only settles balance drips, which a rollback leaves
// consistent since the balance returns to the value they settled on.
func (p *Pool) afterWithdraw(ctx context.Context, from string, amount *big.Int, token string) {
	if p.drips == nil {
		return
	}
	bal, supply := p.balanceAndSupply(ctx, token, from)
	p.drips.AfterWithdrawFrom(ctx, from, amount, bal, supply, token)
}

func (p *Pool) checkLiquidity(ctx context.Context, amount *big.Int) error {
	if p.cfg.LiquidityCap == nil {
		return nil
	}
	total, err := p.accountedBalance(ctx)
	if err != nil {
		return err
	}
	if total.Add(total, amount).Cmp(p.cfg.LiquidityCap) > 0 {
		return fmt.Errorf("%w: cap %s", ErrLiquidityCapExceeded, p.cfg.LiquidityCap)
	}
	return nil
}

// WithdrawInstantlyFrom burns amount of from's token and pays it out in the
// underlying token less the exit fee. The fee stays in the pool and becomes
// prize. It fails when the fee would exceed maxFee; a nil maxFee accepts any
// fee.
func (p *Pool) WithdrawInstantlyFrom(ctx context.Context, from string, amount *big.Int, token string, maxFee *big.Int) (*big.Int, error) {
	operator, err := access.Caller(ctx)
	if err != nil {
		return nil, err
	}
	ctx, release, err := p.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	if err := p.requireControlled(token); err != nil {
		return nil, err
	}
	bal, err := p.ledger.BalanceOf(ctx, token, from)
	if err != nil {
		return nil, err
	}
	if bal.Cmp(amount) < 0 {
		return nil, ErrInsufficientBalance
	}

	now := p.now()
	j := p.newJournal(ctx)
	p.snapshotCredit(j, token, from)
	p.credit.Accrue(token, from, bal, now)
	fee, burned := p.credit.ComputeExitFee(token, from, bal, amount, now)
	if maxFee != nil && fee.Cmp(maxFee) > 0 {
		j.revert()
		return nil, fmt.Errorf("%w: fee %s, max %s", ErrFeeExceedsMaximum, fee, maxFee)
	}
	p.credit.Burn(token, from, burned)

	if err := p.burn(ctx, j, token, operator.ID, from, amount); err != nil {
		j.revert()
		return nil, err
	}
	p.afterWithdraw(ctx, from, amount, token)
	if err := p.payOut(ctx, j, from, new(big.Int).Sub(amount, fee)); err != nil {
		j.revert()
		return nil, err
	}

	if burned.Sign() > 0 {
		p.bus.Publish(ctx, events.CreditBurned{Holder: from, Token: token, Amount: burned})
	}
	p.bus.Publish(ctx, events.InstantWithdrawal{
		Operator: operator.ID, From: from, Token: token,
		Amount: fixedpoint.Clone(amount), Redeemed: new(big.Int).Sub(amount, fee), ExitFee: fee,
	})
	return fee, nil
}

// WithdrawWithTimelockFrom burns amount of from's token into a timelock that
// can be swept fee-free once it unlocks. It returns the unlock time.
func (p *Pool) WithdrawWithTimelockFrom(ctx context.Context, from string, amount *big.Int, token string) (int64, error) {
	operator, err := access.Caller(ctx)
	if err != nil {
		return 0, err
	}
	ctx, release, err := p.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	if err := checkAmount(amount); err != nil {
		return 0, err
	}
	if err := p.requireControlled(token); err != nil {
		return 0, err
	}
	bal, err := p.ledger.BalanceOf(ctx, token, from)
	if err != nil {
		return 0, err
	}
	if bal.Cmp(amount) < 0 {
		return 0, ErrInsufficientBalance
	}

	now := p.now()
	j := p.newJournal(ctx)
	p.snapshotCredit(j, token, from)
	p.credit.Accrue(token, from, bal, now)

	duration := p.cfg.TimelockDurationSeconds
	burned := new(big.Int)
	if duration == 0 {
		var fee *big.Int
		fee, burned = p.credit.ComputeExitFee(token, from, bal, amount, now)
		duration = p.credit.EstimateAccrualTime(token, amount, fee)
		if duration > p.cfg.MaxTimelockDurationSeconds {
			duration = p.cfg.MaxTimelockDurationSeconds
		}
		p.credit.Burn(token, from, burned)
	}

	if err := p.burn(ctx, j, token, operator.ID, from, amount); err != nil {
		j.revert()
		return 0, err
	}
	p.afterWithdraw(ctx, from, amount, token)

	prev, had := p.timelock.Get(from)
	if had && prev.Matured(now) {
		if _, err := p.sweep(ctx, j, []string{from}); err != nil {
			j.revert()
			return 0, err
		}
		prev, had = p.timelock.Get(from)
	}
	j.record(func(context.Context) error {
		p.timelock.Put(from, prev, had)
		return nil
	})
	entry := p.timelock.Lock(from, amount, now+duration)
	if entry.Matured(now) {
		if _, err := p.sweep(ctx, j, []string{from}); err != nil {
			j.revert()
			return 0, err
		}
	}

	if burned.Sign() > 0 {
		p.bus.Publish(ctx, events.CreditBurned{Holder: from, Token: token, Amount: burned})
	}
	p.bus.Publish(ctx, events.TimelockedWithdrawal{Operator: operator.ID, From: from, Token: token, Amount: fixedpoint.Clone(amount), UnlockAt: entry.UnlockAt})
	return entry.UnlockAt, nil
}

// SweepTimelockBalances pays out the matured timelocks of holders. Immature
// or unknown holders are skipped.
func (p *Pool) SweepTimelockBalances(ctx context.Context, holders []string) ([]timelock.Swept, error) {
	ctx, release, err := p.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	j := p.newJournal(ctx)
	swept, err := p.sweep(ctx, j, holders)
	if err != nil {
		j.revert()
		return nil, err
	}
	return swept, nil
}

// sweep releases matured timelocks, redeems their total from the yield
// source and pays each holder.
func (p *Pool) sweep(ctx context.Context, j *journal, holders []string) ([]timelock.Swept, error) {
	prior := make(map[string]timelock.Entry, len(holders))
	for _, h := range holders {
		if entry, ok := p.timelock.Get(h); ok {
			prior[h] = entry
		}
	}
	swept := p.timelock.Sweep(holders, p.now())
	if len(swept) == 0 {
		return nil, nil
	}
	j.record(func(context.Context) error {
		for _, s := range swept {
			p.timelock.Put(s.Holder, prior[s.Holder], true)
		}
		return nil
	})

	total := new(big.Int)
	for _, s := range swept {
		total.Add(total, s.Amount)
	}
	if err := p.redeem(ctx, j, total); err != nil {
		return nil, err
	}
	for _, s := range swept {
		if err := p.transferUnderlying(ctx, j, s.Holder, s.Amount); err != nil {
			return nil, err
		}
	}
	for _, s := range swept {
		p.bus.Publish(ctx, events.TimelockSwept{Holder: s.Holder, Amount: fixedpoint.Clone(s.Amount)})
	}
	return swept, nil
}

// TimelockDepositTo moves the caller's timelocked funds back into the pool
// as token for holder. The funds never left the yield source.
func (p *Pool) TimelockDepositTo(ctx context.Context, to string, amount *big.Int, token string) error {
	operator, err := access.Caller(ctx)
	if err != nil {
		return err
	}
	ctx, release, err := p.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := p.requireControlled(token); err != nil {
		return err
	}

	j := p.newJournal(ctx)
	prev, had := p.timelock.Get(operator.ID)
	if err := p.timelock.Consume(operator.ID, amount); err != nil {
		return err
	}
	j.record(func(context.Context) error {
		p.timelock.Put(operator.ID, prev, had)
		return nil
	})
	p.snapshotCredit(j, token, to)
	if err := p.mint(ctx, j, token, to, amount); err != nil {
		j.revert()
		return err
	}

	bal, supply := p.balanceAndSupply(ctx, token, to)
	if p.drips != nil {
		p.drips.AfterDepositTo(ctx, to, amount, bal, supply, token, "")
	}
	p.bus.Publish(ctx, events.TimelockDeposited{Operator: operator.ID, To: to, Token: token, Amount: fixedpoint.Clone(amount)})
	return nil
}

// TransferTokens moves the caller's controlled tokens to another holder.
// Credit, drips and the draw tree follow through the ledger hooks.
func (p *Pool) TransferTokens(ctx context.Context, to string, amount *big.Int, token string) error {
	from, err := access.Caller(ctx)
	if err != nil {
		return err
	}
	ctx, release, err := p.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := p.requireControlled(token); err != nil {
		return err
	}
	if to == "" {
		return fmt.Errorf("%w: empty recipient", ErrInvalidAmount)
	}
	j := p.newJournal(ctx)
	p.snapshotCredit(j, token, from.ID)
	p.snapshotCredit(j, token, to)
	if err := p.ledger.Transfer(ctx, token, from.ID, to, amount); err != nil {
		j.revert()
		return err
	}
	p.logger.DebugContext(ctx, "tokens transferred", slog.String("from", from.ID), slog.String("to", to), slog.String("token", token))
	return nil
}
