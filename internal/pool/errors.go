package pool

import (
	"errors"

	"github.com/congo-pay/prizepool/internal/access"
	"github.com/congo-pay/prizepool/internal/ledger"
)

var (
	ErrInvalidConfiguration       = errors.New("invalid pool configuration")
	ErrFeeExceedsMaximum          = errors.New("exit fee exceeds maximum")
	ErrYieldSourceOperationFailed = errors.New("yield source operation failed")
	ErrReentrant                  = errors.New("re-entrant pool call")
	ErrLiquidityCapExceeded       = errors.New("liquidity cap exceeded")
	ErrAwardExceedsBalance        = errors.New("award exceeds prize balance")
	ErrOutsidePool                = errors.New("controlled tokens only move through the pool")

	// Re-exported so callers match pool failures without importing the
	// collaborators.
	ErrUnauthorized          = access.ErrUnauthorized
	ErrInsufficientBalance   = ledger.ErrInsufficientBalance
	ErrInsufficientAllowance = ledger.ErrInsufficientAllowance
	ErrInvalidAmount         = ledger.ErrInvalidAmount
	ErrUnknownToken          = ledger.ErrUnknownToken
)
