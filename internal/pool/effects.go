package pool

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/congo-pay/prizepool/internal/fixedpoint"
)

// snapshotCredit must be recorded before any ledger effect so that undoing
// those effects, which runs the hooks again, is overwritten by the snapshot.
func (p *Pool) snapshotCredit(j *journal, token, holder string) {
	saved := p.credit.Get(token, holder)
	j.record(func(context.Context) error {
		p.credit.Restore(token, holder, saved)
		return nil
	})
}

func (p *Pool) mint(ctx context.Context, j *journal, token, to string, amount *big.Int) error {
	if err := p.ledger.ControllerMint(ctx, token, p.cfg.ID, to, amount); err != nil {
		return err
	}
	j.record(func(ctx context.Context) error {
		return p.ledger.ControllerBurn(ctx, token, p.cfg.ID, to, amount)
	})
	return nil
}

// burn destroys from's tokens. An operator other than from spends from's
// allowance, which is restored on undo.
func (p *Pool) burn(ctx context.Context, j *journal, token, operator, from string, amount *big.Int) error {
	if operator == from {
		if err := p.ledger.ControllerBurn(ctx, token, p.cfg.ID, from, amount); err != nil {
			return err
		}
		j.record(func(ctx context.Context) error {
			return p.ledger.ControllerMint(ctx, token, p.cfg.ID, from, amount)
		})
		return nil
	}

	allowance, err := p.ledger.Allowance(ctx, token, from, operator)
	if err != nil {
		return err
	}
	if err := p.ledger.ControllerBurnFrom(ctx, token, p.cfg.ID, operator, from, amount); err != nil {
		return err
	}
	j.record(func(ctx context.Context) error {
		if err := p.ledger.ControllerMint(ctx, token, p.cfg.ID, from, amount); err != nil {
			return err
		}
		return p.ledger.Approve(ctx, token, from, operator, allowance)
	})
	return nil
}

// pullUnderlying moves amount of the underlying token from a depositor to the
// pool under the depositor's allowance.
func (p *Pool) pullUnderlying(ctx context.Context, j *journal, from string, amount *big.Int) error {
	token := p.cfg.UnderlyingToken
	allowance, err := p.ledger.Allowance(ctx, token, from, p.cfg.ID)
	if err != nil {
		return err
	}
	if err := p.ledger.TransferFrom(ctx, token, p.cfg.ID, from, p.cfg.ID, amount); err != nil {
		return err
	}
	j.record(func(ctx context.Context) error {
		if err := p.ledger.Transfer(ctx, token, p.cfg.ID, from, amount); err != nil {
			return err
		}
		return p.ledger.Approve(ctx, token, from, p.cfg.ID, allowance)
	})
	return nil
}

func (p *Pool) transferUnderlying(ctx context.Context, j *journal, to string, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	token := p.cfg.UnderlyingToken
	if err := p.ledger.Transfer(ctx, token, p.cfg.ID, to, amount); err != nil {
		return err
	}
	j.record(func(ctx context.Context) error {
		return p.ledger.Transfer(ctx, token, to, p.cfg.ID, amount)
	})
	return nil
}

// supply is always the last step of an operation so it records no undo.
func (p *Pool) supply(ctx context.Context, amount *big.Int) error {
	if err := p.ledger.Approve(ctx, p.cfg.UnderlyingToken, p.cfg.ID, p.source.Account(), amount); err != nil {
		return err
	}
	if err := p.source.Supply(ctx, amount); err != nil {
		return fmt.Errorf("%w: supply: %v", ErrYieldSourceOperationFailed, err)
	}
	return nil
}

// redeem pulls exactly amount back from the yield source into the pool
// account. Undo supplies it again.
func (p *Pool) redeem(ctx context.Context, j *journal, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	got, err := p.source.Redeem(ctx, amount)
	if err != nil {
		return fmt.Errorf("%w: redeem: %v", ErrYieldSourceOperationFailed, err)
	}
	if got.Cmp(amount) != 0 {
		// Put back whatever did arrive before failing.
		if got.Sign() > 0 {
			if err := p.supply(ctx, got); err != nil {
				p.logger.ErrorContext(ctx, "resupply short redeem", slog.Any("error", err))
			}
		}
		return fmt.Errorf("%w: redeemed %s of %s", ErrYieldSourceOperationFailed, got, amount)
	}
	j.record(func(ctx context.Context) error {
		return p.supply(ctx, amount)
	})
	return nil
}

// payOut redeems amount and sends it to holder.
func (p *Pool) payOut(ctx context.Context, j *journal, holder string, amount *big.Int) error {
	if err := p.redeem(ctx, j, amount); err != nil {
		return err
	}
	return p.transferUnderlying(ctx, j, holder, amount)
}

// balanceAndSupply reads values for listener callbacks after a committed
// operation; read failures are logged and reported as zero.
func (p *Pool) balanceAndSupply(ctx context.Context, token, holder string) (*big.Int, *big.Int) {
	bal, err := p.ledger.BalanceOf(ctx, token, holder)
	if err != nil {
		p.logger.ErrorContext(ctx, "read balance", slog.String("token", token), slog.Any("error", err))
		bal = fixedpoint.Zero()
	}
	supply, err := p.ledger.TotalSupply(ctx, token)
	if err != nil {
		p.logger.ErrorContext(ctx, "read supply", slog.String("token", token), slog.Any("error", err))
		supply = fixedpoint.Zero()
	}
	return bal, supply
}
