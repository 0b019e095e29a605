package pool

import (
	"context"
	"math/big"

	"github.com/congo-pay/prizepool/internal/fixedpoint"
	"github.com/congo-pay/prizepool/internal/timelock"
)

// CalculateEarlyExitFee returns the fee from would pay to withdraw amount
// instantly now, and the credit that would be consumed.
func (p *Pool) CalculateEarlyExitFee(ctx context.Context, from string, amount *big.Int, token string) (fee, burnedCredit *big.Int, err error) {
	if err := checkAmount(amount); err != nil {
		return nil, nil, err
	}
	if err := p.requireControlled(token); err != nil {
		return nil, nil, err
	}
	bal, err := p.ledger.BalanceOf(ctx, token, from)
	if err != nil {
		return nil, nil, err
	}
	fee, burnedCredit = p.credit.ComputeExitFee(token, from, bal, amount, p.now())
	return fee, burnedCredit, nil
}

// BalanceOfCredit returns holder's credit accrued up to now.
func (p *Pool) BalanceOfCredit(ctx context.Context, holder, token string) (*big.Int, error) {
	if err := p.requireControlled(token); err != nil {
		return nil, err
	}
	bal, err := p.ledger.BalanceOf(ctx, token, holder)
	if err != nil {
		return nil, err
	}
	return p.credit.Calculate(token, holder, bal, nil, p.now()), nil
}

// AccountedBalance is the total the pool owes its holders.
func (p *Pool) AccountedBalance(ctx context.Context) (*big.Int, error) {
	ctx, release, err := p.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return p.accountedBalance(ctx)
}

// TimelockOf returns holder's outstanding timelock.
func (p *Pool) TimelockOf(holder string) (timelock.Entry, bool) {
	return p.timelock.Get(holder)
}

// MaturedTimelockHolders lists holders with timelocks that can be swept now.
func (p *Pool) MaturedTimelockHolders() []string {
	return p.timelock.Matured(p.now())
}

// HolderBalances is everything the pool tracks for one holder.
type HolderBalances struct {
	Holder       string   `json:"holder"`
	Tickets      *big.Int `json:"tickets"`
	Sponsorship  *big.Int `json:"sponsorship"`
	Underlying   *big.Int `json:"underlying"`
	Timelocked   *big.Int `json:"timelocked"`
	UnlockAt     int64    `json:"unlock_at,omitempty"`
	TicketCredit *big.Int `json:"ticket_credit"`
	DrawStake    *big.Int `json:"draw_stake"`
	DrawTotal    *big.Int `json:"draw_total"`
}

// Balances reports holder's position in the pool.
func (p *Pool) Balances(ctx context.Context, holder string) (HolderBalances, error) {
	ctx, release, err := p.enter(ctx)
	if err != nil {
		return HolderBalances{}, err
	}
	defer release()

	out := HolderBalances{Holder: holder}
	if out.Tickets, err = p.ledger.BalanceOf(ctx, p.cfg.TicketToken, holder); err != nil {
		return HolderBalances{}, err
	}
	if out.Sponsorship, err = p.ledger.BalanceOf(ctx, p.cfg.SponsorshipToken, holder); err != nil {
		return HolderBalances{}, err
	}
	if out.Underlying, err = p.ledger.BalanceOf(ctx, p.cfg.UnderlyingToken, holder); err != nil {
		return HolderBalances{}, err
	}
	entry, ok := p.timelock.Get(holder)
	out.Timelocked = entry.Amount
	if ok {
		out.UnlockAt = entry.UnlockAt
	}
	out.TicketCredit = p.credit.Calculate(p.cfg.TicketToken, holder, out.Tickets, nil, p.now())
	out.DrawStake = p.tree.StakeOf(holder)
	out.DrawTotal = p.tree.Total()
	return out, nil
}

// Status summarizes the pool.
type Status struct {
	ID                  string   `json:"id"`
	UnderlyingToken     string   `json:"underlying_token"`
	TicketToken         string   `json:"ticket_token"`
	SponsorshipToken    string   `json:"sponsorship_token"`
	TicketSupply        *big.Int `json:"ticket_supply"`
	SponsorshipSupply   *big.Int `json:"sponsorship_supply"`
	TimelockTotal       *big.Int `json:"timelock_total"`
	Reserve             *big.Int `json:"reserve"`
	ReserveRateMantissa *big.Int `json:"reserve_rate_mantissa"`
	AwardBalance        *big.Int `json:"award_balance"`
	YieldSourceBalance  *big.Int `json:"yield_source_balance"`
	LiquidityCap        *big.Int `json:"liquidity_cap,omitempty"`
	TicketHolders       int      `json:"ticket_holders"`
}

// Status reports supplies, reserve and the projected award.
func (p *Pool) Status(ctx context.Context) (Status, error) {
	ctx, release, err := p.enter(ctx)
	if err != nil {
		return Status{}, err
	}
	defer release()

	st := Status{
		ID:                  p.cfg.ID,
		UnderlyingToken:     p.cfg.UnderlyingToken,
		TicketToken:         p.cfg.TicketToken,
		SponsorshipToken:    p.cfg.SponsorshipToken,
		TimelockTotal:       p.timelock.Total(),
		Reserve:             fixedpoint.Clone(p.reserve),
		ReserveRateMantissa: fixedpoint.Clone(p.cfg.ReserveRateMantissa),
		TicketHolders:       p.tree.Len(),
	}
	if p.cfg.LiquidityCap != nil {
		st.LiquidityCap = fixedpoint.Clone(p.cfg.LiquidityCap)
	}
	if st.TicketSupply, err = p.ledger.TotalSupply(ctx, p.cfg.TicketToken); err != nil {
		return Status{}, err
	}
	if st.SponsorshipSupply, err = p.ledger.TotalSupply(ctx, p.cfg.SponsorshipToken); err != nil {
		return Status{}, err
	}
	if st.YieldSourceBalance, err = p.source.Balance(ctx); err != nil {
		return Status{}, err
	}
	if st.AwardBalance, _, err = p.captureAward(ctx); err != nil {
		return Status{}, err
	}
	return st, nil
}
