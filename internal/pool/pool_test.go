package pool

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/prizepool/internal/access"
	"github.com/congo-pay/prizepool/internal/credit"
	"github.com/congo-pay/prizepool/internal/drip"
	"github.com/congo-pay/prizepool/internal/events"
	"github.com/congo-pay/prizepool/internal/fixedpoint"
	"github.com/congo-pay/prizepool/internal/ledger"
	"github.com/congo-pay/prizepool/internal/logging"
	"github.com/congo-pay/prizepool/internal/prize"
	"github.com/congo-pay/prizepool/internal/rng"
	"github.com/congo-pay/prizepool/internal/yieldsource"
)

const (
	dai    = "dai"
	ticket = "ticket"
	sponso = "sponsorship"
)

func units(s string) *big.Int { return fixedpoint.MustParseUnits(s) }

func requireAmount(t *testing.T, want string, got *big.Int) {
	t.Helper()
	require.Equal(t, units(want).String(), got.String())
}

type env struct {
	pool   *Pool
	ledger ledger.Ledger
	venue  *yieldsource.Memory
	clock  *clockwork.FakeClock
	bus    *events.Bus
	owner  context.Context
}

func baseConfig() Config {
	return Config{
		ID:                         "pool",
		UnderlyingToken:            dai,
		TicketToken:                ticket,
		SponsorshipToken:           sponso,
		RNGFeeAccount:              "rng",
		MaxExitFeeMantissa:         units("0.5"),
		MaxTimelockDurationSeconds: 100,
		CreditPlans: map[string]credit.Plan{
			ticket: {Rate: units("0.01"), Limit: units("0.1")},
		},
	}
}

func newEnv(t *testing.T, cfg Config, listener Listener) env {
	t.Helper()
	return newEnvWith(t, cfg, func(ledger.Ledger, clockwork.Clock) Listener { return listener })
}

// newEnvWithDrips wires a drip engine funded with 100 drip tokens as the
// pool's listener.
func newEnvWithDrips(t *testing.T, cfg Config) (env, *drip.Engine) {
	t.Helper()
	var engine *drip.Engine
	e := newEnvWith(t, cfg, func(led ledger.Ledger, clock clockwork.Clock) Listener {
		ledger.SeedBalance(led, "drip", "comptroller", units("100"))
		engine = drip.NewEngine("comptroller", led, clock, nil, logging.Discard())
		return engine.Listener("pool")
	})
	return e, engine
}

func newEnvWith(t *testing.T, cfg Config, listener func(ledger.Ledger, clockwork.Clock) Listener) env {
	t.Helper()
	ctx := context.Background()
	led := ledger.NewInMemory()
	require.NoError(t, led.RegisterToken(ctx, ledger.Token{ID: dai, Controllers: []string{"venue", "treasury"}}))
	for _, h := range []string{"alice", "bob"} {
		require.NoError(t, led.ControllerMint(ctx, dai, "treasury", h, units("1000")))
	}

	clock := clockwork.NewFakeClockAt(time.Unix(0, 0))
	venue := yieldsource.NewMemory(yieldsource.MemoryConfig{ID: "venue", Owner: "pool", Token: dai}, led, clock)
	bus := events.NewBus()
	p, err := New(ctx, cfg, Deps{Ledger: led, Source: venue, Listener: listener(led, clock), Clock: clock, Bus: bus, Logger: logging.Discard()})
	require.NoError(t, err)
	return env{
		pool:   p,
		ledger: led,
		venue:  venue,
		clock:  clock,
		bus:    bus,
		owner:  access.WithPrincipal(ctx, access.Principal{ID: "owner", Role: access.RoleOwner}),
	}
}

func as(holder string) context.Context {
	return access.WithPrincipal(context.Background(), access.Principal{ID: holder, Role: access.RoleHolder})
}

func (e env) deposit(t *testing.T, holder, amount string) {
	t.Helper()
	ctx := as(holder)
	require.NoError(t, e.pool.Approve(ctx, dai, "pool", units(amount)))
	require.NoError(t, e.pool.DepositTo(ctx, holder, units(amount), ticket, ""))
}

func (e env) balance(t *testing.T, token, holder string) *big.Int {
	t.Helper()
	bal, err := e.ledger.BalanceOf(context.Background(), token, holder)
	require.NoError(t, err)
	return bal
}

func (e env) credit(t *testing.T, holder string) *big.Int {
	t.Helper()
	c, err := e.pool.BalanceOfCredit(context.Background(), holder, ticket)
	require.NoError(t, err)
	return c
}

func (e env) requireTreeMatchesSupply(t *testing.T) {
	t.Helper()
	supply, err := e.ledger.TotalSupply(context.Background(), ticket)
	require.NoError(t, err)
	require.Equal(t, supply.String(), e.pool.tree.Total().String())
}

func TestInstantWithdrawalWithoutCreditPaysFee(t *testing.T) {
	e := newEnv(t, baseConfig(), nil)
	e.clock.Advance(5 * time.Second)
	e.deposit(t, "alice", "100")

	fee, err := e.pool.WithdrawInstantlyFrom(as("alice"), "alice", units("100"), ticket, nil)
	require.NoError(t, err)
	requireAmount(t, "10", fee)
	requireAmount(t, "990", e.balance(t, dai, "alice"))
	requireAmount(t, "0", e.credit(t, "alice"))

	award, err := e.pool.CaptureAwardBalance(context.Background())
	require.NoError(t, err)
	requireAmount(t, "10", award)
	e.requireTreeMatchesSupply(t)
}

func TestFeesArePaidBeforeCreditIsConsumed(t *testing.T) {
	e := newEnv(t, baseConfig(), nil)
	e.deposit(t, "alice", "100")
	e.clock.Advance(10 * time.Second)
	e.deposit(t, "alice", "100")

	fee, err := e.pool.WithdrawInstantlyFrom(as("alice"), "alice", units("100"), ticket, nil)
	require.NoError(t, err)
	requireAmount(t, "10", fee)
	requireAmount(t, "890", e.balance(t, dai, "alice"))
	requireAmount(t, "10", e.credit(t, "alice"))
}

func TestFeeAboveMaximumChangesNothing(t *testing.T) {
	e := newEnv(t, baseConfig(), nil)
	e.deposit(t, "alice", "100")

	_, err := e.pool.WithdrawInstantlyFrom(as("alice"), "alice", units("100"), ticket, units("1"))
	require.ErrorIs(t, err, ErrFeeExceedsMaximum)
	requireAmount(t, "100", e.balance(t, ticket, "alice"))
	requireAmount(t, "900", e.balance(t, dai, "alice"))
	e.requireTreeMatchesSupply(t)
}

func TestWinnerWithdrawsPrizeWithoutFee(t *testing.T) {
	e := newEnv(t, baseConfig(), nil)
	e.deposit(t, "alice", "100")
	require.NoError(t, e.venue.AddYield(context.Background(), units("10")))

	svc := rng.NewManual(e.clock)
	sched, err := prize.NewScheduler(prize.Config{PeriodSeconds: 10, Strategy: prize.Strategy{Kind: prize.SingleWinner}}, e.pool, svc, e.clock, e.bus, logging.Discard())
	require.NoError(t, err)

	var awarded []events.Awarded
	events.On(e.bus, func(_ context.Context, ev events.Awarded) { awarded = append(awarded, ev) })

	e.clock.Advance(10 * time.Second)
	_, err = sched.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, svc.Fulfill(svc.LastRequest(), big.NewInt(77)))
	_, err = sched.Complete(context.Background())
	require.NoError(t, err)

	require.Len(t, awarded, 1)
	require.Equal(t, "alice", awarded[0].Winner)
	requireAmount(t, "110", e.balance(t, ticket, "alice"))
	requireAmount(t, "11", e.credit(t, "alice"))

	fee, err := e.pool.WithdrawInstantlyFrom(as("alice"), "alice", units("110"), ticket, big.NewInt(0))
	require.NoError(t, err)
	requireAmount(t, "0", fee)
	requireAmount(t, "1010", e.balance(t, dai, "alice"))
	requireAmount(t, "0", e.credit(t, "alice"))
	e.requireTreeMatchesSupply(t)
}

func TestFailedSupplyRollsBackDeposit(t *testing.T) {
	e := newEnv(t, baseConfig(), nil)
	ctx := as("alice")
	require.NoError(t, e.pool.Approve(ctx, dai, "pool", units("100")))

	e.venue.FailNext(errors.New("venue paused"))
	err := e.pool.DepositTo(ctx, "alice", units("100"), ticket, "")
	require.ErrorIs(t, err, ErrYieldSourceOperationFailed)

	requireAmount(t, "0", e.balance(t, ticket, "alice"))
	requireAmount(t, "1000", e.balance(t, dai, "alice"))
	allowance, err := e.ledger.Allowance(context.Background(), dai, "alice", "pool")
	require.NoError(t, err)
	requireAmount(t, "100", allowance)
	e.requireTreeMatchesSupply(t)

	e.deposit(t, "alice", "100")
	requireAmount(t, "100", e.balance(t, ticket, "alice"))
}

func TestDepositRequiresAllowanceAndCaller(t *testing.T) {
	e := newEnv(t, baseConfig(), nil)

	err := e.pool.DepositTo(context.Background(), "alice", units("1"), ticket, "")
	require.ErrorIs(t, err, access.ErrUnauthorized)

	err = e.pool.DepositTo(as("alice"), "alice", units("1"), ticket, "")
	require.ErrorIs(t, err, ErrInsufficientAllowance)

	err = e.pool.DepositTo(as("alice"), "alice", units("1"), dai, "")
	require.ErrorIs(t, err, ErrUnknownToken)
	e.requireTreeMatchesSupply(t)
}

func TestTimelockDurationDerivedFromFee(t *testing.T) {
	e := newEnv(t, baseConfig(), nil)
	e.deposit(t, "alice", "100")

	unlockAt, err := e.pool.WithdrawWithTimelockFrom(as("alice"), "alice", units("100"), ticket)
	require.NoError(t, err)
	require.Equal(t, int64(10), unlockAt)
	requireAmount(t, "0", e.balance(t, ticket, "alice"))

	accounted, err := e.pool.AccountedBalance(context.Background())
	require.NoError(t, err)
	requireAmount(t, "100", accounted)

	e.clock.Advance(5 * time.Second)
	swept, err := e.pool.SweepTimelockBalances(context.Background(), []string{"alice"})
	require.NoError(t, err)
	require.Empty(t, swept)

	e.clock.Advance(5 * time.Second)
	require.Equal(t, []string{"alice"}, e.pool.MaturedTimelockHolders())
	swept, err = e.pool.SweepTimelockBalances(context.Background(), []string{"alice", "alice"})
	require.NoError(t, err)
	require.Len(t, swept, 1)
	requireAmount(t, "1000", e.balance(t, dai, "alice"))

	swept, err = e.pool.SweepTimelockBalances(context.Background(), []string{"alice"})
	require.NoError(t, err)
	require.Empty(t, swept)
}

func TestTimelockWithFullCreditSweepsImmediately(t *testing.T) {
	e := newEnv(t, baseConfig(), nil)
	e.deposit(t, "alice", "100")
	e.clock.Advance(10 * time.Second)

	unlockAt, err := e.pool.WithdrawWithTimelockFrom(as("alice"), "alice", units("100"), ticket)
	require.NoError(t, err)
	require.Equal(t, int64(10), unlockAt)
	requireAmount(t, "1000", e.balance(t, dai, "alice"))
	_, ok := e.pool.TimelockOf("alice")
	require.False(t, ok)
}

func TestFixedTimelockDuration(t *testing.T) {
	cfg := baseConfig()
	cfg.TimelockDurationSeconds = 50
	e := newEnv(t, cfg, nil)
	e.deposit(t, "alice", "100")

	unlockAt, err := e.pool.WithdrawWithTimelockFrom(as("alice"), "alice", units("40"), ticket)
	require.NoError(t, err)
	require.Equal(t, int64(50), unlockAt)

	require.NoError(t, e.pool.TimelockDepositTo(as("alice"), "bob", units("15"), ticket))
	requireAmount(t, "15", e.balance(t, ticket, "bob"))
	entry, ok := e.pool.TimelockOf("alice")
	require.True(t, ok)
	requireAmount(t, "25", entry.Amount)

	err = e.pool.TimelockDepositTo(as("alice"), "bob", units("26"), ticket)
	require.Error(t, err)
	e.requireTreeMatchesSupply(t)
}

func TestReserveTakesShareOfInterest(t *testing.T) {
	cfg := baseConfig()
	cfg.ReserveRateMantissa = units("0.1")
	e := newEnv(t, cfg, nil)
	e.deposit(t, "alice", "100")
	require.NoError(t, e.venue.AddYield(context.Background(), units("10")))

	award, err := e.pool.SettleAwardBalance(context.Background())
	require.NoError(t, err)
	requireAmount(t, "9", award)

	reserve, err := e.pool.ReserveTotal(context.Background())
	require.NoError(t, err)
	requireAmount(t, "1", reserve)

	_, err = e.pool.WithdrawReserve(as("alice"), "alice")
	require.ErrorIs(t, err, access.ErrUnauthorized)

	paid, err := e.pool.WithdrawReserve(e.owner, "treasury")
	require.NoError(t, err)
	requireAmount(t, "1", paid)
	requireAmount(t, "1", e.balance(t, dai, "treasury"))

	award, err = e.pool.CaptureAwardBalance(context.Background())
	require.NoError(t, err)
	requireAmount(t, "9", award)
}

func TestLiquidityCap(t *testing.T) {
	e := newEnv(t, baseConfig(), nil)
	require.ErrorIs(t, e.pool.SetLiquidityCap(as("alice"), units("1")), access.ErrUnauthorized)
	require.NoError(t, e.pool.SetLiquidityCap(e.owner, units("150")))

	e.deposit(t, "alice", "100")
	ctx := as("bob")
	require.NoError(t, e.pool.Approve(ctx, dai, "pool", units("60")))
	require.ErrorIs(t, e.pool.DepositTo(ctx, "bob", units("60"), ticket, ""), ErrLiquidityCapExceeded)

	require.NoError(t, e.pool.SetLiquidityCap(e.owner, nil))
	require.NoError(t, e.pool.DepositTo(ctx, "bob", units("60"), ticket, ""))
}

func TestCreditPlanBoundedByMaxExitFee(t *testing.T) {
	e := newEnv(t, baseConfig(), nil)
	err := e.pool.SetCreditPlanOf(e.owner, ticket, credit.Plan{Rate: units("0.1"), Limit: units("0.6")})
	require.ErrorIs(t, err, ErrInvalidConfiguration)
	require.NoError(t, e.pool.SetCreditPlanOf(e.owner, sponso, credit.Plan{Rate: units("0.1"), Limit: units("0.5")}))
	requireAmount(t, "0.5", e.pool.Config().CreditPlans[sponso].Limit)
}

func TestTransferMovesStakeAndLimitsCredit(t *testing.T) {
	e := newEnv(t, baseConfig(), nil)
	e.deposit(t, "alice", "100")
	e.clock.Advance(10 * time.Second)

	require.NoError(t, e.pool.TransferTokens(as("alice"), "bob", units("40"), ticket))

	alice, err := e.pool.Balances(context.Background(), "alice")
	require.NoError(t, err)
	bob, err := e.pool.Balances(context.Background(), "bob")
	require.NoError(t, err)
	requireAmount(t, "60", alice.DrawStake)
	requireAmount(t, "40", bob.DrawStake)
	requireAmount(t, "6", alice.TicketCredit)
	requireAmount(t, "0", bob.TicketCredit)
	e.requireTreeMatchesSupply(t)
}

func TestControlledTokensOnlyMoveThroughPool(t *testing.T) {
	e := newEnv(t, baseConfig(), nil)
	e.deposit(t, "alice", "100")
	err := e.ledger.Transfer(context.Background(), ticket, "alice", "bob", units("1"))
	require.ErrorIs(t, err, ErrOutsidePool)
}

type reentrantListener struct {
	pool *Pool
	err  error
}

func (l *reentrantListener) AfterDepositTo(ctx context.Context, holder string, amount, _, _ *big.Int, token, _ string) {
	l.err = l.pool.DepositTo(ctx, holder, amount, token, "")
}
func (l *reentrantListener) AfterWithdrawFrom(context.Context, string, *big.Int, *big.Int, *big.Int, string) {
}
func (l *reentrantListener) AfterAwardTo(context.Context, string, *big.Int, *big.Int, *big.Int, string) {
}
func (l *reentrantListener) BeforeTokenTransfer(context.Context, string, string, *big.Int, string) error {
	return nil
}

func TestReentrantCallsAreRejected(t *testing.T) {
	listener := &reentrantListener{}
	e := newEnv(t, baseConfig(), listener)
	listener.pool = e.pool

	e.deposit(t, "alice", "10")
	require.ErrorIs(t, listener.err, ErrReentrant)
	requireAmount(t, "10", e.balance(t, ticket, "alice"))
}

func TestBalanceDripThroughPool(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, "drip", "comptroller", units("100"))
	clock := clockwork.NewFakeClockAt(time.Unix(0, 0))
	engine := drip.NewEngine("comptroller", led, clock, nil, logging.Discard())

	require.NoError(t, led.RegisterToken(ctx, ledger.Token{ID: dai, Controllers: []string{"treasury", "venue"}}))
	require.NoError(t, led.ControllerMint(ctx, dai, "treasury", "alice", units("10")))
	venue := yieldsource.NewMemory(yieldsource.MemoryConfig{ID: "venue", Owner: "pool", Token: dai}, led, clock)
	p, err := New(ctx, baseConfig(), Deps{Ledger: led, Source: venue, Listener: engine.Listener("pool"), Clock: clock, Logger: logging.Discard()})
	require.NoError(t, err)

	owner := access.WithPrincipal(ctx, access.Principal{ID: "owner", Role: access.RoleOwner})
	require.NoError(t, engine.ActivateBalanceDrip(owner, drip.BalanceKey{Source: "pool", Measure: ticket, DripToken: "drip"}, units("0.001")))

	require.NoError(t, p.Approve(as("alice"), dai, "pool", units("10")))
	require.NoError(t, p.DepositTo(as("alice"), "alice", units("10"), ticket, ""))
	clock.Advance(10 * time.Second)

	owed, err := engine.BalanceOfDrip(ctx, "pool", "alice", "drip")
	require.NoError(t, err)
	requireAmount(t, "0.01", owed)
}

func TestBalanceDripSettlesEachWinnerOnItsOwnSupply(t *testing.T) {
	e, engine := newEnvWithDrips(t, baseConfig())
	key := drip.BalanceKey{Source: "pool", Measure: ticket, DripToken: "drip"}
	require.NoError(t, engine.ActivateBalanceDrip(e.owner, key, units("1")))
	e.deposit(t, "alice", "100")
	e.deposit(t, "bob", "100")
	require.NoError(t, e.venue.AddYield(context.Background(), units("10")))

	svc := rng.NewManual(e.clock)
	strategy := prize.Strategy{Kind: prize.MultipleWinners, NumberOfWinners: 2}
	sched, err := prize.NewScheduler(prize.Config{PeriodSeconds: 10, Strategy: strategy}, e.pool, svc, e.clock, e.bus, logging.Discard())
	require.NoError(t, err)

	e.clock.Advance(10 * time.Second)
	_, err = sched.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, svc.Fulfill(svc.LastRequest(), big.NewInt(3)))
	payout, err := sched.Complete(context.Background())
	require.NoError(t, err)
	require.Len(t, payout.Awards, 2)

	total := new(big.Int)
	for _, h := range []string{"alice", "bob"} {
		owed, err := engine.BalanceOfDrip(context.Background(), "pool", h, "drip")
		require.NoError(t, err)
		requireAmount(t, "5", owed)
		total.Add(total, owed)
	}
	requireAmount(t, "10", total)
	e.requireTreeMatchesSupply(t)
}

func TestRevertedDepositRecordsNoVolume(t *testing.T) {
	e, engine := newEnvWithDrips(t, baseConfig())
	key := drip.VolumeKey{Source: "pool", Measure: ticket, DripToken: "drip"}
	require.NoError(t, engine.ActivateVolumeDrip(e.owner, drip.VolumeParams{VolumeKey: key, PeriodSeconds: 10, DripAmount: units("10")}))

	ctx := as("alice")
	require.NoError(t, e.pool.Approve(ctx, dai, "pool", units("100")))
	e.venue.FailNext(errors.New("venue paused"))
	require.ErrorIs(t, e.pool.DepositTo(ctx, "alice", units("100"), ticket, ""), ErrYieldSourceOperationFailed)
	e.deposit(t, "bob", "10")

	e.clock.Advance(10 * time.Second)
	bob, err := engine.BalanceOfDrip(context.Background(), "pool", "bob", "drip")
	require.NoError(t, err)
	requireAmount(t, "10", bob)
	alice, err := engine.BalanceOfDrip(context.Background(), "pool", "alice", "drip")
	require.NoError(t, err)
	requireAmount(t, "0", alice)
}

type unavailableRNG struct{ *rng.Manual }

func (unavailableRNG) RequestRandomNumber(context.Context) (rng.Request, error) {
	return rng.Request{}, errors.New("coordinator unavailable")
}

func TestFailedAwardStartChangesNothing(t *testing.T) {
	cfg := baseConfig()
	cfg.ReserveRateMantissa = units("0.5")

	t.Run("fee cannot be paid", func(t *testing.T) {
		e := newEnv(t, cfg, nil)
		e.deposit(t, "alice", "100")
		require.NoError(t, e.venue.AddYield(context.Background(), units("10")))

		svc := rng.NewManual(e.clock)
		svc.SetFee("link", units("1"))
		sched, err := prize.NewScheduler(prize.Config{PeriodSeconds: 10, Strategy: prize.Strategy{Kind: prize.SingleWinner}}, e.pool, svc, e.clock, e.bus, logging.Discard())
		require.NoError(t, err)

		e.clock.Advance(10 * time.Second)
		_, err = sched.Start(context.Background())
		require.Error(t, err)
		require.Equal(t, prize.Idle, sched.Status().State)
		require.Empty(t, svc.LastRequest())
		require.Zero(t, e.pool.reserve.Sign())
		require.Zero(t, e.pool.currentAward.Sign())
	})

	t.Run("randomness request fails", func(t *testing.T) {
		e := newEnv(t, cfg, nil)
		e.deposit(t, "alice", "100")
		require.NoError(t, e.venue.AddYield(context.Background(), units("10")))
		ledger.SeedBalance(e.ledger, "link", "pool", units("1"))

		svc := unavailableRNG{rng.NewManual(e.clock)}
		svc.SetFee("link", units("1"))
		sched, err := prize.NewScheduler(prize.Config{PeriodSeconds: 10, Strategy: prize.Strategy{Kind: prize.SingleWinner}}, e.pool, svc, e.clock, e.bus, logging.Discard())
		require.NoError(t, err)

		e.clock.Advance(10 * time.Second)
		_, err = sched.Start(context.Background())
		require.ErrorContains(t, err, "coordinator unavailable")
		requireAmount(t, "1", e.balance(t, "link", "pool"))
		requireAmount(t, "0", e.balance(t, "link", "rng"))
		require.Zero(t, e.pool.reserve.Sign())
		require.Zero(t, e.pool.currentAward.Sign())

		award, err := e.pool.SettleAwardBalance(context.Background())
		require.NoError(t, err)
		requireAmount(t, "5", award)
	})
}

func TestExternalAwardsPaidWithPrize(t *testing.T) {
	e := newEnv(t, baseConfig(), nil)
	e.deposit(t, "alice", "100")
	ledger.SeedBalance(e.ledger, "usdc", "pool", units("7"))
	require.NoError(t, e.pool.nfts.Mint("punks", "1", "pool"))
	require.False(t, e.pool.CanAwardExternal(dai))
	require.False(t, e.pool.CanAwardExternal(ticket))

	svc := rng.NewManual(e.clock)
	sched, err := prize.NewScheduler(prize.Config{PeriodSeconds: 10, Strategy: prize.Strategy{Kind: prize.SingleWinner}}, e.pool, svc, e.clock, e.bus, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, sched.AddExternalERC20Award(e.owner, "usdc"))
	require.NoError(t, sched.AddExternalERC721Award(e.owner, "punks", []string{"1"}))

	e.clock.Advance(10 * time.Second)
	_, err = sched.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, svc.Fulfill(svc.LastRequest(), big.NewInt(1)))
	_, err = sched.Complete(context.Background())
	require.NoError(t, err)

	requireAmount(t, "7", e.balance(t, "usdc", "alice"))
	require.Equal(t, "alice", e.pool.nfts.OwnerOf("punks", "1"))
}

func TestConfigValidate(t *testing.T) {
	cfg := baseConfig()
	cfg.TicketToken = cfg.SponsorshipToken
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfiguration)

	cfg = baseConfig()
	cfg.TimelockDurationSeconds = 200
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfiguration)

	cfg = baseConfig()
	cfg.ReserveRateMantissa = units("1.5")
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfiguration)

	cfg = baseConfig()
	cfg.CreditPlans[dai] = credit.Plan{Rate: units("0"), Limit: units("0")}
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfiguration)
}
