// Package credit tracks the exit credit each holder accrues per token and
// derives early-withdrawal fees from it.
//
// Credit accrues at Plan.Rate (per second, as a fraction of the balance) and
// is capped at Plan.Limit times the balance. The fee for withdrawing an amount
// without any credit is Limit times that amount, so a holder whose credit is
// full can always leave for free.
package credit

import (
	"math/big"
	"sync"

	"github.com/congo-pay/prizepool/internal/fixedpoint"
)

// Plan holds the credit parameters of a token, both as 1e18 mantissas.
type Plan struct {
	Rate  *big.Int
	Limit *big.Int
}

// Balance is the stored credit of one holder for one token.
type Balance struct {
	Amount      *big.Int
	Timestamp   int64
	Initialized bool
}

func (b Balance) clone() Balance {
	return Balance{Amount: fixedpoint.Clone(b.Amount), Timestamp: b.Timestamp, Initialized: b.Initialized}
}

// Engine stores plans and balances. It is safe for concurrent use.
type Engine struct {
	mu       sync.RWMutex
	plans    map[string]Plan
	balances map[string]Balance
}

// NewEngine returns an engine with no plans; tokens without a plan charge no
// fee and accrue no credit.
func NewEngine() *Engine {
	return &Engine{
		plans:    make(map[string]Plan),
		balances: make(map[string]Balance),
	}
}

func key(token, holder string) string { return token + "\x00" + holder }

// SetPlan replaces the plan of token.
func (e *Engine) SetPlan(token string, plan Plan) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.plans[token] = Plan{Rate: fixedpoint.Clone(plan.Rate), Limit: fixedpoint.Clone(plan.Limit)}
}

// PlanOf returns the plan of token, zero-valued when unset.
func (e *Engine) PlanOf(token string) Plan {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.planOf(token)
}

func (e *Engine) planOf(token string) Plan {
	p, ok := e.plans[token]
	if !ok {
		return Plan{Rate: new(big.Int), Limit: new(big.Int)}
	}
	return Plan{Rate: fixedpoint.Clone(p.Rate), Limit: fixedpoint.Clone(p.Limit)}
}

// ExitFeeWithoutCredit is the fee charged for amount when no credit is available.
func (e *Engine) ExitFeeWithoutCredit(token string, amount *big.Int) *big.Int {
	return fixedpoint.MulMantissa(amount, e.PlanOf(token).Limit)
}

// Get returns the stored (not yet accrued) credit of holder.
func (e *Engine) Get(token, holder string) Balance {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.balances[key(token, holder)].clone()
}

// Restore overwrites the stored credit of holder. Used to undo a failed operation.
func (e *Engine) Restore(token, holder string, b Balance) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !b.Initialized {
		delete(e.balances, key(token, holder))
		return
	}
	e.balances[key(token, holder)] = b.clone()
}

// Calculate returns the credit holder would have at now, given the balance it
// held since the last accrual, plus extra, capped by the plan limit. A holder
// seen for the first time has zero credit.
func (e *Engine) Calculate(token, holder string, balance, extra *big.Int, now int64) *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.calculate(token, holder, balance, extra, now)
}

func (e *Engine) calculate(token, holder string, balance, extra *big.Int, now int64) *big.Int {
	stored, ok := e.balances[key(token, holder)]
	if !ok || !stored.Initialized {
		return new(big.Int)
	}
	plan := e.planOf(token)

	total := fixedpoint.Clone(stored.Amount)
	if elapsed := now - stored.Timestamp; elapsed > 0 {
		perSecond := fixedpoint.MulMantissa(balance, plan.Rate)
		total.Add(total, perSecond.Mul(perSecond, big.NewInt(elapsed)))
	}
	if extra != nil {
		total.Add(total, extra)
	}
	return applyLimit(plan, balance, total)
}

func applyLimit(plan Plan, balance, credit *big.Int) *big.Int {
	limit := fixedpoint.MulMantissa(balance, plan.Limit)
	if credit.Cmp(limit) > 0 {
		return limit
	}
	if credit.Sign() < 0 {
		return new(big.Int)
	}
	return credit
}

// Accrue brings holder's credit up to now for the balance held since the last
// accrual and initializes the record on first touch.
func (e *Engine) Accrue(token, holder string, balance *big.Int, now int64) *big.Int {
	return e.AccrueExtra(token, holder, balance, nil, now)
}

// AccrueExtra is Accrue with extra credit added before the cap is applied.
func (e *Engine) AccrueExtra(token, holder string, balance, extra *big.Int, now int64) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	credit := e.calculate(token, holder, balance, extra, now)
	e.balances[key(token, holder)] = Balance{Amount: credit, Timestamp: now, Initialized: true}
	return fixedpoint.Clone(credit)
}

// ApplyLimit accrues holder's credit against oldBalance and then caps it for
// newBalance. Called when a balance shrinks by a transfer or burn.
func (e *Engine) ApplyLimit(token, holder string, oldBalance, newBalance *big.Int, now int64) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	credit := e.calculate(token, holder, oldBalance, nil, now)
	credit = applyLimit(e.planOf(token), newBalance, credit)
	e.balances[key(token, holder)] = Balance{Amount: credit, Timestamp: now, Initialized: true}
	return fixedpoint.Clone(credit)
}

// ComputeExitFee returns the fee owed for withdrawing amount out of balance at
// now, and the credit that withdrawal consumes. Credit needed to cover the
// fee of the balance left behind is never spent. Read-only.
func (e *Engine) ComputeExitFee(token, holder string, balance, amount *big.Int, now int64) (fee, burnedCredit *big.Int) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	plan := e.planOf(token)
	credit := e.calculate(token, holder, balance, nil, now)

	remaining := new(big.Int).Sub(balance, amount)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}
	reserved := fixedpoint.MulMantissa(remaining, plan.Limit)

	available := new(big.Int)
	if credit.Cmp(reserved) >= 0 {
		available.Sub(credit, reserved)
	}

	total := fixedpoint.MulMantissa(amount, plan.Limit)
	burned := fixedpoint.Min(available, total)
	return total.Sub(total, burned), burned
}

// Burn removes amount from the stored credit of holder, flooring at zero.
func (e *Engine) Burn(token, holder string, amount *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := key(token, holder)
	b, ok := e.balances[k]
	if !ok {
		return
	}
	left := new(big.Int).Sub(b.Amount, amount)
	if left.Sign() < 0 {
		left.SetInt64(0)
	}
	b.Amount = left
	e.balances[k] = b
}

// EstimateAccrualTime returns the seconds needed for balance to accrue
// interest worth of credit, zero when the plan accrues nothing.
func (e *Engine) EstimateAccrualTime(token string, balance, interest *big.Int) int64 {
	perSecond := fixedpoint.MulMantissa(balance, e.PlanOf(token).Rate)
	if perSecond.Sign() == 0 {
		return 0
	}
	secs := new(big.Int).Quo(interest, perSecond)
	if !secs.IsInt64() {
		return int64(^uint64(0) >> 1)
	}
	return secs.Int64()
}
