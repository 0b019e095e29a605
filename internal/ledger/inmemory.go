package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
)

type tokenState struct {
	token      Token
	supply     *big.Int
	balances   map[string]*big.Int
	allowances map[string]*big.Int
}

type inMemoryLedger struct {
	hookSet
	mu     sync.RWMutex
	tokens map[string]*tokenState
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests
// and for running the service without Postgres.
func NewInMemory() Ledger {
	return &inMemoryLedger{tokens: make(map[string]*tokenState)}
}

func (l *inMemoryLedger) RegisterToken(_ context.Context, token Token) error {
	if token.ID == "" {
		return fmt.Errorf("token id is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.tokens[token.ID]; ok {
		existing.token = token
		return nil
	}
	l.tokens[token.ID] = &tokenState{
		token:      token,
		supply:     new(big.Int),
		balances:   make(map[string]*big.Int),
		allowances: make(map[string]*big.Int),
	}
	return nil
}

func (l *inMemoryLedger) state(token string) (*tokenState, error) {
	st, ok := l.tokens[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	return st, nil
}

func (l *inMemoryLedger) BalanceOf(_ context.Context, token, holder string) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st, err := l.state(token)
	if err != nil {
		return nil, err
	}
	return balanceIn(st.balances, holder), nil
}

func (l *inMemoryLedger) TotalSupply(_ context.Context, token string) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st, err := l.state(token)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(st.supply), nil
}

func (l *inMemoryLedger) Holders(_ context.Context, token string) ([]Holding, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st, err := l.state(token)
	if err != nil {
		return nil, err
	}
	out := make([]Holding, 0, len(st.balances))
	for holder, bal := range st.balances {
		if bal.Sign() > 0 {
			out = append(out, Holding{Holder: holder, Balance: new(big.Int).Set(bal)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Holder < out[j].Holder })
	return out, nil
}

func (l *inMemoryLedger) Allowance(_ context.Context, token, owner, spender string) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st, err := l.state(token)
	if err != nil {
		return nil, err
	}
	return balanceIn(st.allowances, allowanceKey(owner, spender)), nil
}

func (l *inMemoryLedger) Approve(_ context.Context, token, owner, spender string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	st, err := l.state(token)
	if err != nil {
		return err
	}
	st.allowances[allowanceKey(owner, spender)] = new(big.Int).Set(amount)
	return nil
}

func (l *inMemoryLedger) Transfer(ctx context.Context, token, from, to string, amount *big.Int) error {
	return l.move(ctx, token, from, to, amount, movement{})
}

func (l *inMemoryLedger) TransferFrom(ctx context.Context, token, spender, from, to string, amount *big.Int) error {
	return l.move(ctx, token, from, to, amount, movement{spender: spender})
}

func (l *inMemoryLedger) ControllerMint(ctx context.Context, token, controller, to string, amount *big.Int) error {
	return l.move(ctx, token, "", to, amount, movement{controlled: true, controller: controller})
}

func (l *inMemoryLedger) ControllerBurn(ctx context.Context, token, controller, from string, amount *big.Int) error {
	return l.move(ctx, token, from, "", amount, movement{controlled: true, controller: controller})
}

func (l *inMemoryLedger) ControllerBurnFrom(ctx context.Context, token, controller, operator, from string, amount *big.Int) error {
	return l.move(ctx, token, from, "", amount, movement{controlled: true, controller: controller, spender: operator})
}

// move validates under a read lock, runs the before hook unlocked, then
// applies the movement under the write lock and fires the after hook.
func (l *inMemoryLedger) move(ctx context.Context, token, from, to string, amount *big.Int, m movement) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if from == "" && to == "" {
		return fmt.Errorf("mint and burn at once is not a movement")
	}
	if !m.controlled && (from == "" || to == "") {
		return fmt.Errorf("%w: transfers need both holders", ErrInvalidAmount)
	}

	l.mu.RLock()
	st, err := l.state(token)
	if err == nil {
		err = l.check(st, from, amount, m)
	}
	l.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := l.before(ctx, token, from, to, amount); err != nil {
		return err
	}

	l.mu.Lock()
	if err := l.check(st, from, amount, m); err != nil {
		l.mu.Unlock()
		return err
	}
	if m.needsAllowance(from) {
		key := allowanceKey(from, m.spender)
		allowed := balanceIn(st.allowances, key)
		st.allowances[key] = allowed.Sub(allowed, amount)
	}
	if from != "" {
		bal := balanceIn(st.balances, from)
		st.balances[from] = bal.Sub(bal, amount)
	} else {
		st.supply.Add(st.supply, amount)
	}
	if to != "" {
		bal := balanceIn(st.balances, to)
		st.balances[to] = bal.Add(bal, amount)
	} else {
		st.supply.Sub(st.supply, amount)
	}
	l.mu.Unlock()

	l.after(ctx, token, from, to, amount)
	return nil
}

func (l *inMemoryLedger) check(st *tokenState, from string, amount *big.Int, m movement) error {
	if m.controlled && !st.token.controlledBy(m.controller) {
		return ErrNotController
	}
	if from != "" && balanceIn(st.balances, from).Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if m.needsAllowance(from) && balanceIn(st.allowances, allowanceKey(from, m.spender)).Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	return nil
}

func balanceIn(m map[string]*big.Int, key string) *big.Int {
	if v, ok := m[key]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func allowanceKey(owner, spender string) string { return owner + "\x00" + spender }
