package pool

import (
	"context"
	"fmt"
	"math/big"

	"github.com/congo-pay/prizepool/internal/access"
	"github.com/congo-pay/prizepool/internal/credit"
	"github.com/congo-pay/prizepool/internal/events"
	"github.com/congo-pay/prizepool/internal/fixedpoint"
)

// SetReserveRate changes the share of new interest kept as reserve.
// Interest seen so far is settled at the old rate first.
func (p *Pool) SetReserveRate(ctx context.Context, rate *big.Int) error {
	if _, err := access.RequireOwner(ctx); err != nil {
		return err
	}
	if rate == nil {
		return fmt.Errorf("%w: rate is required", ErrInvalidConfiguration)
	}
	if err := checkRate(rate); err != nil {
		return err
	}
	ctx, release, err := p.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if _, err := p.settle(ctx); err != nil {
		return err
	}
	p.cfg.ReserveRateMantissa = fixedpoint.Clone(rate)
	p.bus.Publish(ctx, events.ConfigChanged{Setting: "reserve_rate_mantissa", Value: rate.String()})
	return nil
}

// ReserveTotal returns the reserve accrued so far.
func (p *Pool) ReserveTotal(ctx context.Context) (*big.Int, error) {
	ctx, release, err := p.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	if _, err := p.settle(ctx); err != nil {
		return nil, err
	}
	return fixedpoint.Clone(p.reserve), nil
}

// WithdrawReserve redeems the whole reserve and sends it to recipient.
func (p *Pool) WithdrawReserve(ctx context.Context, to string) (*big.Int, error) {
	if _, err := access.RequireOwner(ctx); err != nil {
		return nil, err
	}
	if to == "" {
		return nil, fmt.Errorf("%w: empty recipient", ErrInvalidAmount)
	}
	ctx, release, err := p.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := p.settle(ctx); err != nil {
		return nil, err
	}
	amount := fixedpoint.Clone(p.reserve)
	if amount.Sign() == 0 {
		return amount, nil
	}
	j := p.newJournal(ctx)
	p.reserve = new(big.Int)
	j.record(func(context.Context) error {
		p.reserve = fixedpoint.Clone(amount)
		return nil
	})
	if err := p.payOut(ctx, j, to, amount); err != nil {
		j.revert()
		return nil, err
	}
	p.bus.Publish(ctx, events.ReserveWithdrawn{To: to, Amount: fixedpoint.Clone(amount)})
	return amount, nil
}

// SetCreditPlanOf replaces the credit plan of a controlled token. The limit
// may not exceed the pool's maximum exit fee.
func (p *Pool) SetCreditPlanOf(ctx context.Context, token string, plan credit.Plan) error {
	if _, err := access.RequireOwner(ctx); err != nil {
		return err
	}
	if err := p.requireControlled(token); err != nil {
		return err
	}
	if err := checkPlan(plan, p.cfg.MaxExitFeeMantissa); err != nil {
		return err
	}
	p.credit.SetPlan(token, plan)
	p.bus.Publish(ctx, events.ConfigChanged{Setting: "credit_plan:" + token, Value: plan.Rate.String() + "/" + plan.Limit.String()})
	return nil
}

// SetLiquidityCap bounds the total the pool accepts; nil removes the cap.
func (p *Pool) SetLiquidityCap(ctx context.Context, limit *big.Int) error {
	if _, err := access.RequireOwner(ctx); err != nil {
		return err
	}
	if limit != nil && limit.Sign() < 0 {
		return fmt.Errorf("%w: negative liquidity cap", ErrInvalidConfiguration)
	}
	ctx, release, err := p.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	value := "unlimited"
	p.cfg.LiquidityCap = nil
	if limit != nil {
		p.cfg.LiquidityCap = fixedpoint.Clone(limit)
		value = limit.String()
	}
	p.bus.Publish(ctx, events.ConfigChanged{Setting: "liquidity_cap", Value: value})
	return nil
}
