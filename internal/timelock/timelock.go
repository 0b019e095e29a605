// Package timelock holds fee-free withdrawals until their unlock time.
package timelock

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/congo-pay/prizepool/internal/fixedpoint"
)

// ErrInsufficientTimelock is returned when more is consumed than is locked.
var ErrInsufficientTimelock = errors.New("insufficient timelocked balance")

// Entry is the single outstanding lock of a holder.
type Entry struct {
	Amount   *big.Int
	UnlockAt int64
}

// Matured reports whether the entry may be swept at now.
func (e Entry) Matured(now int64) bool { return now >= e.UnlockAt }

// Swept is a payout produced by Sweep.
type Swept struct {
	Holder string
	Amount *big.Int
}

// Engine stores timelocks. It is safe for concurrent use.
type Engine struct {
	mu      sync.RWMutex
	entries map[string]Entry
	total   *big.Int
}

// NewEngine returns an empty engine.
func NewEngine() *Engine {
	return &Engine{entries: make(map[string]Entry), total: new(big.Int)}
}

// Lock adds amount to holder's entry. When an entry already exists the
// amounts merge and the later unlock time wins.
func (e *Engine) Lock(holder string, amount *big.Int, unlockAt int64) Entry {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.entries[holder]
	if !ok {
		entry = Entry{Amount: new(big.Int), UnlockAt: unlockAt}
	}
	entry.Amount = new(big.Int).Add(entry.Amount, amount)
	if unlockAt > entry.UnlockAt {
		entry.UnlockAt = unlockAt
	}
	e.entries[holder] = entry
	e.total.Add(e.total, amount)
	return copyEntry(entry)
}

// Get returns holder's entry.
func (e *Engine) Get(holder string) (Entry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.entries[holder]
	if !ok {
		return Entry{Amount: new(big.Int)}, false
	}
	return copyEntry(entry), true
}

// Put overwrites holder's entry, or removes it when ok is false. Used to undo
// a failed operation.
func (e *Engine) Put(holder string, entry Entry, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if old, exists := e.entries[holder]; exists {
		e.total.Sub(e.total, old.Amount)
		delete(e.entries, holder)
	}
	if ok {
		e.entries[holder] = copyEntry(entry)
		e.total.Add(e.total, entry.Amount)
	}
}

// Sweep releases the matured entries of holders. Immature, missing and
// repeated holders are skipped, so calling it again is harmless.
func (e *Engine) Sweep(holders []string, now int64) []Swept {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Swept
	seen := make(map[string]struct{}, len(holders))
	for _, h := range holders {
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}

		entry, ok := e.entries[h]
		if !ok || !entry.Matured(now) {
			continue
		}
		delete(e.entries, h)
		e.total.Sub(e.total, entry.Amount)
		if entry.Amount.Sign() > 0 {
			out = append(out, Swept{Holder: h, Amount: entry.Amount})
		}
	}
	return out
}

// Consume takes amount out of holder's entry regardless of maturity, for
// re-depositing locked funds into the pool.
func (e *Engine) Consume(holder string, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.entries[holder]
	if !ok || entry.Amount.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientTimelock, holder)
	}
	left := new(big.Int).Sub(entry.Amount, amount)
	if left.Sign() == 0 {
		delete(e.entries, holder)
	} else {
		entry.Amount = left
		e.entries[holder] = entry
	}
	e.total.Sub(e.total, amount)
	return nil
}

// Total returns the sum of all locked amounts.
func (e *Engine) Total() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return new(big.Int).Set(e.total)
}

// Matured lists holders whose entries can be swept at now, sorted.
func (e *Engine) Matured(now int64) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []string
	for h, entry := range e.entries {
		if entry.Matured(now) {
			out = append(out, h)
		}
	}
	sort.Strings(out)
	return out
}

func copyEntry(entry Entry) Entry {
	return Entry{Amount: fixedpoint.Clone(entry.Amount), UnlockAt: entry.UnlockAt}
}
