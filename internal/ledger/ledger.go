package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/congo-pay/prizepool/internal/access"
)

var (
	// ErrInsufficientBalance occurs when the source holder lacks the balance
	// required by a transfer or burn.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientAllowance occurs when a spender moves more than the owner approved.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrUnknownToken is returned for operations on a token that was never registered.
	ErrUnknownToken = errors.New("unknown token")

	// ErrInvalidAmount rejects negative or zero amounts where a positive one is required.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrNotController is returned when mint/burn is attempted by a caller that
	// does not control the token.
	ErrNotController = fmt.Errorf("%w: caller does not control token", access.ErrUnauthorized)
)

// Token describes a fungible token tracked by the ledger. Only the listed
// controllers may mint or burn it.
type Token struct {
	ID          string
	Controllers []string
}

func (t Token) controlledBy(id string) bool {
	for _, c := range t.Controllers {
		if c == id {
			return true
		}
	}
	return false
}

// Holding is a (holder, balance) pair.
type Holding struct {
	Holder  string
	Balance *big.Int
}

// Hook observes balance movements of a token. An empty from means mint and an
// empty to means burn. BeforeTokenTransfer may veto the movement; the after
// hook runs once balances are committed.
type Hook interface {
	BeforeTokenTransfer(ctx context.Context, token, from, to string, amount *big.Int) error
	AfterTokenTransfer(ctx context.Context, token, from, to string, amount *big.Int)
}

// Ledger defines the contract implemented by ledger backends (e.g. Postgres).
type Ledger interface {
	RegisterToken(ctx context.Context, token Token) error
	SetHook(token string, hook Hook)

	BalanceOf(ctx context.Context, token, holder string) (*big.Int, error)
	TotalSupply(ctx context.Context, token string) (*big.Int, error)
	Holders(ctx context.Context, token string) ([]Holding, error)
	Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error)

	Approve(ctx context.Context, token, owner, spender string, amount *big.Int) error
	Transfer(ctx context.Context, token, from, to string, amount *big.Int) error
	TransferFrom(ctx context.Context, token, spender, from, to string, amount *big.Int) error

	ControllerMint(ctx context.Context, token, controller, to string, amount *big.Int) error
	ControllerBurn(ctx context.Context, token, controller, from string, amount *big.Int) error
	ControllerBurnFrom(ctx context.Context, token, controller, operator, from string, amount *big.Int) error
}

// hookSet is shared by the backends; hooks run outside any backend lock so
// they may read balances.
type hookSet struct {
	mu    sync.RWMutex
	hooks map[string]Hook
}

func (h *hookSet) SetHook(token string, hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hooks == nil {
		h.hooks = make(map[string]Hook)
	}
	h.hooks[token] = hook
}

func (h *hookSet) hookFor(token string) Hook {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hooks[token]
}

func (h *hookSet) before(ctx context.Context, token, from, to string, amount *big.Int) error {
	if hook := h.hookFor(token); hook != nil {
		return hook.BeforeTokenTransfer(ctx, token, from, to, amount)
	}
	return nil
}

func (h *hookSet) after(ctx context.Context, token, from, to string, amount *big.Int) {
	if hook := h.hookFor(token); hook != nil {
		hook.AfterTokenTransfer(ctx, token, from, to, amount)
	}
}

// movement describes who is moving tokens: controller-gated mint/burn, or a
// spender acting under an allowance.
type movement struct {
	controlled bool
	controller string
	spender    string
}

func (m movement) needsAllowance(from string) bool {
	return m.spender != "" && m.spender != from
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
