package ledger

import "math/big"

// SeedBalance is a test helper that sets a holder balance on the in-memory
// ledger, registering the token when needed and adjusting total supply. Hooks
// are not fired.
func SeedBalance(l Ledger, token, holder string, amount *big.Int) {
	mem, ok := l.(*inMemoryLedger)
	if !ok {
		return
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	st, exists := mem.tokens[token]
	if !exists {
		st = &tokenState{
			token:      Token{ID: token},
			supply:     new(big.Int),
			balances:   make(map[string]*big.Int),
			allowances: make(map[string]*big.Int),
		}
		mem.tokens[token] = st
	}
	old := balanceIn(st.balances, holder)
	st.supply.Sub(st.supply, old)
	st.supply.Add(st.supply, amount)
	st.balances[holder] = new(big.Int).Set(amount)
}
