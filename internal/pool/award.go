package pool

import (
	"context"
	"fmt"
	"math/big"

	"github.com/congo-pay/prizepool/internal/events"
	"github.com/congo-pay/prizepool/internal/fixedpoint"
	"github.com/congo-pay/prizepool/internal/prize"
)

// accountedBalance is what the pool owes: controlled supply, timelocked
// funds and the reserve.
func (p *Pool) accountedBalance(ctx context.Context) (*big.Int, error) {
	total := p.timelock.Total()
	total.Add(total, p.reserve)
	for _, token := range []string{p.cfg.TicketToken, p.cfg.SponsorshipToken} {
		supply, err := p.ledger.TotalSupply(ctx, token)
		if err != nil {
			return nil, err
		}
		total.Add(total, supply)
	}
	return total, nil
}

// captureAward projects the award and the reserve fee taken from interest
// not yet accounted for. Read-only.
func (p *Pool) captureAward(ctx context.Context) (award, reserveFee *big.Int, err error) {
	yieldBal, err := p.source.Balance(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: balance: %v", ErrYieldSourceOperationFailed, err)
	}
	owed, err := p.accountedBalance(ctx)
	if err != nil {
		return nil, nil, err
	}
	interest := new(big.Int).Sub(yieldBal, owed)
	if interest.Sign() < 0 {
		interest.SetInt64(0)
	}
	unaccounted := interest.Sub(interest, p.currentAward)
	if unaccounted.Sign() <= 0 {
		return fixedpoint.Clone(p.currentAward), new(big.Int), nil
	}
	reserveFee = fixedpoint.MulMantissa(unaccounted, p.cfg.ReserveRateMantissa)
	award = new(big.Int).Sub(unaccounted, reserveFee)
	return award.Add(award, p.currentAward), reserveFee, nil
}

// CaptureAwardBalance projects the current award without changing state.
func (p *Pool) CaptureAwardBalance(ctx context.Context) (*big.Int, error) {
	ctx, release, err := p.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	award, _, err := p.captureAward(ctx)
	return award, err
}

// SettleAwardBalance moves newly seen interest into the award and the
// reserve and returns the award.
func (p *Pool) SettleAwardBalance(ctx context.Context) (*big.Int, error) {
	ctx, release, err := p.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	award, err := p.settle(ctx)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Clone(award), nil
}

func (p *Pool) settle(ctx context.Context) (*big.Int, error) {
	award, reserveFee, err := p.captureAward(ctx)
	if err != nil {
		return nil, err
	}
	p.currentAward = award
	p.reserve.Add(p.reserve, reserveFee)
	return award, nil
}

// Distribute settles the award and lets plan draw winners against the
// ticket tree, then applies the payout as a single unit. A payout with no
// awards leaves everything in place for the next period.
func (p *Pool) Distribute(ctx context.Context, plan prize.Planner) (prize.Payout, error) {
	ctx, release, err := p.enter(ctx)
	if err != nil {
		return prize.Payout{}, err
	}
	defer release()

	award, err := p.settle(ctx)
	if err != nil {
		return prize.Payout{}, err
	}
	payout, err := plan(prize.Draw{
		Award:  fixedpoint.Clone(award),
		Drawer: p.tree,
		ERC20Balance: func(token string) (*big.Int, error) {
			return p.ledger.BalanceOf(ctx, token, p.cfg.ID)
		},
	})
	if err != nil {
		return prize.Payout{}, err
	}
	if payout.Empty() {
		return payout, nil
	}

	total := new(big.Int)
	for _, a := range payout.Awards {
		if a.Amount == nil || a.Amount.Sign() < 0 {
			return prize.Payout{}, fmt.Errorf("%w: negative allocation", ErrInvalidAmount)
		}
		total.Add(total, a.Amount)
	}
	if total.Cmp(p.currentAward) > 0 {
		return prize.Payout{}, fmt.Errorf("%w: %s > %s", ErrAwardExceedsBalance, total, p.currentAward)
	}

	j := p.newJournal(ctx)
	saved := fixedpoint.Clone(p.currentAward)
	j.record(func(context.Context) error {
		p.currentAward = saved
		return nil
	})
	token := p.cfg.TicketToken
	for _, a := range payout.Awards {
		if err := p.awardTickets(ctx, j, a.Winner, a.Amount); err != nil {
			j.revert()
			return prize.Payout{}, err
		}
	}
	for _, a := range payout.ERC20 {
		if err := p.awardExternalERC20(ctx, j, a); err != nil {
			j.revert()
			return prize.Payout{}, err
		}
	}
	for _, a := range payout.ERC721 {
		if err := p.awardExternalERC721(j, a); err != nil {
			j.revert()
			return prize.Payout{}, err
		}
	}

	for _, a := range payout.Awards {
		if a.Amount.Sign() == 0 {
			continue
		}
		p.bus.Publish(ctx, events.Awarded{Winner: a.Winner, Token: token, Amount: fixedpoint.Clone(a.Amount)})
		if extra := p.credit.ExitFeeWithoutCredit(token, a.Amount); extra.Sign() > 0 {
			p.bus.Publish(ctx, events.CreditMinted{Holder: a.Winner, Token: token, Amount: extra})
		}
	}
	for _, a := range payout.ERC20 {
		p.bus.Publish(ctx, events.AwardedExternalERC20{Winner: a.Winner, Token: a.Token, Amount: fixedpoint.Clone(a.Amount)})
	}
	for _, a := range payout.ERC721 {
		p.bus.Publish(ctx, events.AwardedExternalERC721{Winner: a.Winner, Collection: a.Collection, TokenIDs: a.TokenIDs})
	}
	return payout, nil
}

// awardTickets mints a prize to winner and grants credit equal to the exit
// fee of the prize so it can be withdrawn without a fee.
func (p *Pool) awardTickets(ctx context.Context, j *journal, winner string, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	token := p.cfg.TicketToken
	p.snapshotCredit(j, token, winner)
	if err := p.mint(ctx, j, token, winner, amount); err != nil {
		return err
	}
	p.currentAward = new(big.Int).Sub(p.currentAward, amount)

	bal, err := p.ledger.BalanceOf(ctx, token, winner)
	if err != nil {
		return err
	}
	supply, err := p.ledger.TotalSupply(ctx, token)
	if err != nil {
		return err
	}
	p.credit.AccrueExtra(token, winner, bal, p.credit.ExitFeeWithoutCredit(token, amount), p.now())
	// Drips settle per mint so each step sees the supply before this prize only.
	if p.drips != nil {
		p.drips.AfterAwardTo(ctx, winner, amount, bal, supply, token)
	}
	return nil
}

func (p *Pool) awardExternalERC20(ctx context.Context, j *journal, a prize.ERC20Award) error {
	if !p.CanAwardExternal(a.Token) {
		return fmt.Errorf("%w: %s", prize.ErrCannotAwardExternal, a.Token)
	}
	if a.Amount.Sign() == 0 {
		return nil
	}
	if err := p.ledger.Transfer(ctx, a.Token, p.cfg.ID, a.Winner, a.Amount); err != nil {
		return err
	}
	j.record(func(ctx context.Context) error {
		return p.ledger.Transfer(ctx, a.Token, a.Winner, p.cfg.ID, a.Amount)
	})
	return nil
}

func (p *Pool) awardExternalERC721(j *journal, a prize.ERC721Award) error {
	for _, id := range a.TokenIDs {
		if err := p.nfts.Transfer(a.Collection, id, p.cfg.ID, a.Winner); err != nil {
			return err
		}
		j.record(func(context.Context) error {
			return p.nfts.Transfer(a.Collection, id, a.Winner, p.cfg.ID)
		})
	}
	return nil
}

// BeginAward ends a period as one unit: it pays the randomness fee from the
// pool account, runs request and only then settles newly seen interest into
// the award and the reserve. Any failure leaves the pool as it was.
func (p *Pool) BeginAward(ctx context.Context, feeToken string, fee *big.Int, request func(ctx context.Context) error) (*big.Int, error) {
	ctx, release, err := p.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	award, reserveFee, err := p.captureAward(ctx)
	if err != nil {
		return nil, err
	}
	j := p.newJournal(ctx)
	if fixedpoint.IsPositive(fee) {
		if err := p.payRandomnessFee(ctx, j, feeToken, fee); err != nil {
			return nil, fmt.Errorf("pay randomness fee: %w", err)
		}
	}
	if err := request(ctx); err != nil {
		j.revert()
		return nil, err
	}
	p.currentAward = award
	p.reserve.Add(p.reserve, reserveFee)
	return fixedpoint.Clone(award), nil
}

func (p *Pool) payRandomnessFee(ctx context.Context, j *journal, token string, amount *big.Int) error {
	if p.cfg.controlled(token) || p.cfg.RNGFeeAccount == "" {
		return fmt.Errorf("%w: cannot pay randomness fee in %s", ErrInvalidConfiguration, token)
	}
	if err := p.ledger.Transfer(ctx, token, p.cfg.ID, p.cfg.RNGFeeAccount, amount); err != nil {
		return err
	}
	j.record(func(ctx context.Context) error {
		return p.ledger.Transfer(ctx, token, p.cfg.RNGFeeAccount, p.cfg.ID, amount)
	})
	return nil
}

// CanAwardExternal rejects the underlying token and the pool's own tokens.
func (p *Pool) CanAwardExternal(token string) bool {
	return token != "" && token != p.cfg.UnderlyingToken && !p.cfg.controlled(token)
}

// OwnsERC721 reports whether the pool holds the NFT.
func (p *Pool) OwnsERC721(collection, id string) bool {
	return p.nfts.OwnerOf(collection, id) == p.cfg.ID
}
