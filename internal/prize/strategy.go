// Package prize runs prize periods: it requests randomness when a period
// ends, draws winners weighted by ticket balance and tells the pool what to
// pay them.
package prize

import (
	"fmt"
	"math/big"
)

// Drawer selects holders weighted by balance.
type Drawer interface {
	Draw(random *big.Int) string
	DrawMultiple(seed *big.Int, count int) []string
}

// Kind names an award strategy.
type Kind string

const (
	SingleWinner    Kind = "single"
	MultipleWinners Kind = "multiple"
)

// Strategy decides how an award is split. NumberOfWinners only applies to
// MultipleWinners.
type Strategy struct {
	Kind            Kind `json:"kind" yaml:"kind"`
	NumberOfWinners int  `json:"number_of_winners" yaml:"number_of_winners"`
}

// Validate checks the strategy parameters.
func (s Strategy) Validate() error {
	switch s.Kind {
	case SingleWinner:
		return nil
	case MultipleWinners:
		if s.NumberOfWinners < 1 {
			return fmt.Errorf("%w: number of winners must be at least 1", ErrInvalidStrategy)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidStrategy, s.Kind)
	}
}

// Allocation is one winner's share of the award.
type Allocation struct {
	Winner string   `json:"winner"`
	Amount *big.Int `json:"amount"`
}

// Distribute draws winners for award. Winners come back in draw order. No
// allocations means nobody could be drawn and the award carries over.
func (s Strategy) Distribute(drawer Drawer, award, random *big.Int) []Allocation {
	switch s.Kind {
	case MultipleWinners:
		return splitEvenly(drawer.DrawMultiple(random, s.NumberOfWinners), award)
	default:
		winner := drawer.Draw(random)
		if winner == "" {
			return nil
		}
		return []Allocation{{Winner: winner, Amount: new(big.Int).Set(award)}}
	}
}

// splitEvenly gives each winner award/len(winners); the first drawn winner
// also takes the remainder.
func splitEvenly(winners []string, award *big.Int) []Allocation {
	if len(winners) == 0 {
		return nil
	}
	n := big.NewInt(int64(len(winners)))
	share, rem := new(big.Int).QuoRem(award, n, new(big.Int))
	out := make([]Allocation, len(winners))
	for i, w := range winners {
		out[i] = Allocation{Winner: w, Amount: new(big.Int).Set(share)}
	}
	out[0].Amount.Add(out[0].Amount, rem)
	return out
}

// proportional splits total across allocations in the ratio of their award
// amounts, or evenly when the award was zero. Rounding dust goes to the
// first winner.
func proportional(allocs []Allocation, award, total *big.Int) []*big.Int {
	out := make([]*big.Int, len(allocs))
	if award.Sign() == 0 {
		for i, a := range splitEvenly(winnersOf(allocs), total) {
			out[i] = a.Amount
		}
		return out
	}
	paid := new(big.Int)
	for i, a := range allocs {
		v := new(big.Int).Mul(total, a.Amount)
		v.Quo(v, award)
		out[i] = v
		paid.Add(paid, v)
	}
	out[0].Add(out[0], new(big.Int).Sub(total, paid))
	return out
}

func winnersOf(allocs []Allocation) []string {
	out := make([]string, len(allocs))
	for i, a := range allocs {
		out[i] = a.Winner
	}
	return out
}
