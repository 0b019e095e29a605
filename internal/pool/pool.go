// Package pool is the prize pool: it takes deposits into a yield source,
// mints tickets and sponsorship, charges exit fees against accrued credit,
// holds timelocked withdrawals and pays out awards drawn by the prize
// scheduler.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/congo-pay/prizepool/internal/credit"
	"github.com/congo-pay/prizepool/internal/events"
	"github.com/congo-pay/prizepool/internal/fixedpoint"
	"github.com/congo-pay/prizepool/internal/ledger"
	"github.com/congo-pay/prizepool/internal/sortition"
	"github.com/congo-pay/prizepool/internal/timelock"
	"github.com/congo-pay/prizepool/internal/yieldsource"
)

// Config holds the pool parameters. Mantissas are 1e18 fixed point.
type Config struct {
	// ID is the pool's ledger account and the controller of its tokens.
	ID               string
	UnderlyingToken  string
	TicketToken      string
	SponsorshipToken string
	// RNGFeeAccount receives randomness request fees.
	RNGFeeAccount string

	MaxExitFeeMantissa         *big.Int
	MaxTimelockDurationSeconds int64
	// TimelockDurationSeconds fixes the lock of timelocked withdrawals. Zero
	// derives it from the exit fee the holder would otherwise pay.
	TimelockDurationSeconds int64
	ReserveRateMantissa     *big.Int
	// LiquidityCap bounds the total of controlled supply; nil means no cap.
	LiquidityCap *big.Int
	// CreditPlans is keyed by controlled token.
	CreditPlans map[string]credit.Plan
}

func (c Config) controlled(token string) bool {
	return token == c.TicketToken || token == c.SponsorshipToken
}

// Validate checks the pool parameters against each other.
func (c Config) Validate() error {
	if c.ID == "" || c.UnderlyingToken == "" || c.TicketToken == "" || c.SponsorshipToken == "" {
		return fmt.Errorf("%w: pool id and tokens are required", ErrInvalidConfiguration)
	}
	if c.TicketToken == c.SponsorshipToken || c.controlled(c.UnderlyingToken) {
		return fmt.Errorf("%w: tokens must be distinct", ErrInvalidConfiguration)
	}
	if c.MaxExitFeeMantissa == nil || c.MaxExitFeeMantissa.Sign() < 0 || c.MaxExitFeeMantissa.Cmp(fixedpoint.One()) > 0 {
		return fmt.Errorf("%w: max exit fee must be within [0, 1]", ErrInvalidConfiguration)
	}
	if c.MaxTimelockDurationSeconds < 0 || c.TimelockDurationSeconds < 0 {
		return fmt.Errorf("%w: negative timelock duration", ErrInvalidConfiguration)
	}
	if c.TimelockDurationSeconds > c.MaxTimelockDurationSeconds {
		return fmt.Errorf("%w: timelock duration exceeds maximum", ErrInvalidConfiguration)
	}
	if err := checkRate(c.ReserveRateMantissa); err != nil {
		return err
	}
	if c.LiquidityCap != nil && c.LiquidityCap.Sign() < 0 {
		return fmt.Errorf("%w: negative liquidity cap", ErrInvalidConfiguration)
	}
	for token, plan := range c.CreditPlans {
		if !c.controlled(token) {
			return fmt.Errorf("%w: credit plan for uncontrolled token %s", ErrInvalidConfiguration, token)
		}
		if err := checkPlan(plan, c.MaxExitFeeMantissa); err != nil {
			return err
		}
	}
	return nil
}

func checkRate(rate *big.Int) error {
	if rate != nil && (rate.Sign() < 0 || rate.Cmp(fixedpoint.One()) > 0) {
		return fmt.Errorf("%w: rate must be within [0, 1]", ErrInvalidConfiguration)
	}
	return nil
}

func checkPlan(plan credit.Plan, maxExitFee *big.Int) error {
	if plan.Rate == nil || plan.Limit == nil || plan.Rate.Sign() < 0 || plan.Limit.Sign() < 0 {
		return fmt.Errorf("%w: credit plan needs a rate and a limit", ErrInvalidConfiguration)
	}
	if plan.Limit.Cmp(maxExitFee) > 0 {
		return fmt.Errorf("%w: credit limit exceeds max exit fee", ErrInvalidConfiguration)
	}
	return nil
}

// Listener is told about controlled token balance changes once they are
// committed; BeforeTokenTransfer may veto holder-to-holder transfers.
type Listener interface {
	AfterDepositTo(ctx context.Context, holder string, amount, newBalance, newTotalSupply *big.Int, token, referrer string)
	AfterWithdrawFrom(ctx context.Context, holder string, amount, newBalance, newTotalSupply *big.Int, token string)
	AfterAwardTo(ctx context.Context, holder string, amount, newBalance, newTotalSupply *big.Int, token string)
	BeforeTokenTransfer(ctx context.Context, from, to string, amount *big.Int, token string) error
}

// DepositReverter is implemented by listeners that can take back what
// AfterDepositTo recorded when the deposit is rolled back.
type DepositReverter interface {
	RevertDepositTo(ctx context.Context, holder string, amount *big.Int, token, referrer string)
}

// Deps are the pool's collaborators. NFTs and Listener are optional.
type Deps struct {
	Ledger   ledger.Ledger
	NFTs     *ledger.NFTRegistry
	Source   yieldsource.Source
	Listener Listener
	Clock    clockwork.Clock
	Bus      *events.Bus
	Logger   *slog.Logger
}

// Pool is safe for concurrent use; operations are serialized.
type Pool struct {
	mu     sync.Mutex
	cfg    Config
	ledger ledger.Ledger
	nfts   *ledger.NFTRegistry
	source yieldsource.Source
	drips  Listener
	clock  clockwork.Clock
	bus    *events.Bus
	logger *slog.Logger

	credit   *credit.Engine
	timelock *timelock.Engine
	tree     *sortition.Tree

	currentAward *big.Int
	reserve      *big.Int
}

// New registers the controlled tokens, installs the ledger hooks and
// rebuilds the draw tree from current ticket balances.
func New(ctx context.Context, cfg Config, deps Deps) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Ledger == nil || deps.Source == nil {
		return nil, fmt.Errorf("%w: ledger and yield source are required", ErrInvalidConfiguration)
	}
	if deps.Source.UnderlyingToken() != cfg.UnderlyingToken {
		return nil, fmt.Errorf("%w: yield source holds %s, pool expects %s", ErrInvalidConfiguration, deps.Source.UnderlyingToken(), cfg.UnderlyingToken)
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.NFTs == nil {
		deps.NFTs = ledger.NewNFTRegistry()
	}

	p := &Pool{
		cfg:          cfg,
		ledger:       deps.Ledger,
		nfts:         deps.NFTs,
		source:       deps.Source,
		drips:        deps.Listener,
		clock:        deps.Clock,
		bus:          deps.Bus,
		logger:       deps.Logger,
		credit:       credit.NewEngine(),
		timelock:     timelock.NewEngine(),
		tree:         sortition.New(sortition.DefaultK),
		currentAward: new(big.Int),
		reserve:      new(big.Int),
	}
	p.cfg.ReserveRateMantissa = fixedpoint.Clone(cfg.ReserveRateMantissa)
	for token, plan := range cfg.CreditPlans {
		p.credit.SetPlan(token, plan)
	}

	for _, token := range []string{cfg.TicketToken, cfg.SponsorshipToken} {
		if err := p.ledger.RegisterToken(ctx, ledger.Token{ID: token, Controllers: []string{cfg.ID}}); err != nil {
			return nil, fmt.Errorf("register %s: %w", token, err)
		}
		p.ledger.SetHook(token, tokenHook{p})
	}

	holders, err := p.ledger.Holders(ctx, cfg.TicketToken)
	if err != nil {
		return nil, fmt.Errorf("load ticket holders: %w", err)
	}
	for _, h := range holders {
		p.tree.Set(h.Holder, h.Balance)
	}
	p.logger.Info("prize pool ready", slog.String("pool", cfg.ID), slog.Int("ticket_holders", len(holders)))
	return p, nil
}

type activeKey struct{}

// enter serializes an operation and marks ctx so ledger hooks know they run
// inside it. A ctx that is already inside the pool is rejected.
func (p *Pool) enter(ctx context.Context) (context.Context, func(), error) {
	if p.inside(ctx) {
		return nil, nil, ErrReentrant
	}
	p.mu.Lock()
	return context.WithValue(ctx, activeKey{}, p), p.mu.Unlock, nil
}

func (p *Pool) inside(ctx context.Context) bool {
	active, _ := ctx.Value(activeKey{}).(*Pool)
	return active == p
}

func (p *Pool) now() int64 { return p.clock.Now().Unix() }

func (p *Pool) newJournal(ctx context.Context) *journal {
	return &journal{ctx: ctx, logger: p.logger}
}

func (p *Pool) requireControlled(token string) error {
	if !p.cfg.controlled(token) {
		return fmt.Errorf("%w: %s is not controlled by pool %s", ErrUnknownToken, token, p.cfg.ID)
	}
	return nil
}

// Config returns the pool parameters currently in force.
func (p *Pool) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	cfg := p.cfg
	cfg.ReserveRateMantissa = fixedpoint.Clone(p.cfg.ReserveRateMantissa)
	if p.cfg.LiquidityCap != nil {
		cfg.LiquidityCap = fixedpoint.Clone(p.cfg.LiquidityCap)
	}
	cfg.CreditPlans = map[string]credit.Plan{
		p.cfg.TicketToken:      p.credit.PlanOf(p.cfg.TicketToken),
		p.cfg.SponsorshipToken: p.credit.PlanOf(p.cfg.SponsorshipToken),
	}
	return cfg
}

// tokenHook keeps credit, drips and the draw tree in step with ledger
// movements of the controlled tokens.
type tokenHook struct{ p *Pool }

func (h tokenHook) BeforeTokenTransfer(ctx context.Context, token, from, to string, amount *big.Int) error {
	p := h.p
	if !p.inside(ctx) {
		return ErrOutsidePool
	}
	now := p.now()
	if from != "" {
		bal, err := p.ledger.BalanceOf(ctx, token, from)
		if err != nil {
			return err
		}
		if from == to {
			p.credit.Accrue(token, from, bal, now)
		} else {
			p.credit.ApplyLimit(token, from, bal, new(big.Int).Sub(bal, amount), now)
		}
	}
	if to != "" && to != from {
		bal, err := p.ledger.BalanceOf(ctx, token, to)
		if err != nil {
			return err
		}
		p.credit.Accrue(token, to, bal, now)
	}
	if from != "" && to != "" && p.drips != nil {
		return p.drips.BeforeTokenTransfer(ctx, from, to, amount, token)
	}
	return nil
}

func (h tokenHook) AfterTokenTransfer(ctx context.Context, token, from, to string, amount *big.Int) {
	p := h.p
	if token != p.cfg.TicketToken || from == to {
		return
	}
	if from != "" {
		p.syncStake(ctx, from, amount)
	}
	if to != "" {
		p.syncStake(ctx, to, new(big.Int).Neg(amount))
	}
}

// syncStake moves holder's leaf to its committed balance. delta is what the
// movement took from the holder.
func (p *Pool) syncStake(ctx context.Context, holder string, delta *big.Int) {
	bal, err := p.ledger.BalanceOf(ctx, p.cfg.TicketToken, holder)
	if err != nil {
		p.logger.ErrorContext(ctx, "read ticket balance", slog.String("holder", holder), slog.Any("error", err))
		return
	}
	old := new(big.Int).Add(bal, delta)
	if err := p.tree.Update(holder, old, bal); err != nil {
		p.logger.ErrorContext(ctx, "draw tree out of step, resyncing", slog.String("holder", holder), slog.Any("error", err))
		p.tree.Set(holder, bal)
	}
}
