// Package yieldsource adapts interest-bearing venues for the pool.
package yieldsource

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/congo-pay/prizepool/internal/fixedpoint"
	"github.com/congo-pay/prizepool/internal/ledger"
)

// ErrInsufficientLiquidity is returned when more is redeemed than the venue holds.
var ErrInsufficientLiquidity = errors.New("insufficient liquidity in yield source")

// Source is the venue the pool supplies deposits to.
type Source interface {
	// Supply pulls amount of the underlying token from the pool. The pool
	// approves the venue beforehand.
	Supply(ctx context.Context, amount *big.Int) error
	// Redeem returns up to amount to the pool and reports what was sent.
	Redeem(ctx context.Context, amount *big.Int) (*big.Int, error)
	// Balance is what the pool could redeem right now.
	Balance(ctx context.Context) (*big.Int, error)
	UnderlyingToken() string
	// Account is the ledger account that pulls supplied funds.
	Account() string
}

// MemoryConfig configures a Memory venue.
type MemoryConfig struct {
	// ID is the venue's ledger account.
	ID string
	// Owner is the only account allowed to supply and redeem.
	Owner string
	Token string
	// RatePerSecond is the interest earned per second on the held balance,
	// as a 1e18 mantissa.
	RatePerSecond *big.Int
}

// Memory is a venue that keeps deposits in its own ledger account and mints
// interest into it as the clock advances. The venue must be a controller of
// the underlying token for interest to be minted.
type Memory struct {
	mu      sync.Mutex
	cfg     MemoryConfig
	ledger  ledger.Ledger
	clock   clockwork.Clock
	accrued int64
	failErr error
}

// NewMemory returns a venue starting its interest clock now.
func NewMemory(cfg MemoryConfig, led ledger.Ledger, clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	cfg.RatePerSecond = fixedpoint.Clone(cfg.RatePerSecond)
	return &Memory{cfg: cfg, ledger: led, clock: clock, accrued: clock.Now().Unix()}
}

func (m *Memory) UnderlyingToken() string { return m.cfg.Token }

// Account returns the venue's ledger account.
func (m *Memory) Account() string { return m.cfg.ID }

// FailNext makes the next Supply or Redeem fail with err.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *Memory) takeFailure() error {
	err := m.failErr
	m.failErr = nil
	return err
}

// AddYield mints amount of interest into the venue immediately.
func (m *Memory) AddYield(ctx context.Context, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.ControllerMint(ctx, m.cfg.Token, m.cfg.ID, m.cfg.ID, amount)
}

// accrue mints interest earned since the last accrual.
func (m *Memory) accrue(ctx context.Context) error {
	now := m.clock.Now().Unix()
	elapsed := now - m.accrued
	if elapsed <= 0 {
		return nil
	}
	m.accrued = now
	if m.cfg.RatePerSecond.Sign() == 0 {
		return nil
	}
	held, err := m.ledger.BalanceOf(ctx, m.cfg.Token, m.cfg.ID)
	if err != nil {
		return err
	}
	interest := fixedpoint.MulMantissa(held, m.cfg.RatePerSecond)
	interest.Mul(interest, big.NewInt(elapsed))
	if interest.Sign() == 0 {
		return nil
	}
	return m.ledger.ControllerMint(ctx, m.cfg.Token, m.cfg.ID, m.cfg.ID, interest)
}

func (m *Memory) Supply(ctx context.Context, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if err := m.accrue(ctx); err != nil {
		return err
	}
	return m.ledger.TransferFrom(ctx, m.cfg.Token, m.cfg.ID, m.cfg.Owner, m.cfg.ID, amount)
}

func (m *Memory) Redeem(ctx context.Context, amount *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	if err := m.accrue(ctx); err != nil {
		return nil, err
	}
	held, err := m.ledger.BalanceOf(ctx, m.cfg.Token, m.cfg.ID)
	if err != nil {
		return nil, err
	}
	if held.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: want %s, have %s", ErrInsufficientLiquidity, amount, held)
	}
	if amount.Sign() == 0 {
		return new(big.Int), nil
	}
	if err := m.ledger.Transfer(ctx, m.cfg.Token, m.cfg.ID, m.cfg.Owner, amount); err != nil {
		return nil, err
	}
	return fixedpoint.Clone(amount), nil
}

func (m *Memory) Balance(ctx context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.accrue(ctx); err != nil {
		return nil, err
	}
	return m.ledger.BalanceOf(ctx, m.cfg.Token, m.cfg.ID)
}
