// Package sortition maintains a K-ary sum tree over ticket holders so that a
// balance-weighted winner can be drawn in logarithmic time.
//
// Node 0 is the root. Leaves carry holder stakes and every internal node
// carries the sum of its children, so the root always equals the total stake.
// Vacated leaves are recycled through a stack instead of shrinking the slice.
package sortition

import (
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/sha3"
)

// DefaultK is the branching factor used by the pool.
const DefaultK = 5

// NoWinner is returned by Draw when the tree carries no stake.
const NoWinner = ""

// ErrStakeMismatch is returned by Update when the supplied old balance does not
// match the stake recorded for the holder.
var ErrStakeMismatch = errors.New("sortition: stake mismatch")

// Tree is a weighted sum tree. It is not safe for concurrent use; the owning
// pool serializes access.
type Tree struct {
	k       int
	nodes   []*big.Int
	vacant  []int
	indexOf map[string]int
	holder  map[int]string
}

// New returns an empty tree with branching factor k (minimum 2).
func New(k int) *Tree {
	if k < 2 {
		k = DefaultK
	}
	return &Tree{
		k:       k,
		nodes:   []*big.Int{new(big.Int)},
		indexOf: make(map[string]int),
		holder:  make(map[int]string),
	}
}

// Total returns the root weight.
func (t *Tree) Total() *big.Int { return new(big.Int).Set(t.nodes[0]) }

// Len returns the number of holders with a positive stake.
func (t *Tree) Len() int { return len(t.indexOf) }

// StakeOf returns the stake recorded for holder.
func (t *Tree) StakeOf(holder string) *big.Int {
	idx, ok := t.indexOf[holder]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(t.nodes[idx])
}

// Update moves holder from oldBalance to newBalance. The old balance must
// match the recorded stake so the tree never silently diverges from the
// ledger it mirrors.
func (t *Tree) Update(holder string, oldBalance, newBalance *big.Int) error {
	if holder == NoWinner {
		return fmt.Errorf("sortition: empty holder id")
	}
	if newBalance.Sign() < 0 {
		return fmt.Errorf("sortition: negative stake for %s", holder)
	}
	if cur := t.StakeOf(holder); cur.Cmp(oldBalance) != 0 {
		return fmt.Errorf("%w: %s has %s, caller expected %s", ErrStakeMismatch, holder, cur, oldBalance)
	}
	t.Set(holder, newBalance)
	return nil
}

// Set overwrites the stake of holder. A zero value removes the leaf.
func (t *Tree) Set(holder string, value *big.Int) {
	idx, exists := t.indexOf[holder]
	if !exists {
		if value.Sign() == 0 {
			return
		}
		idx = t.allocateLeaf()
		t.nodes[idx] = new(big.Int).Set(value)
		t.indexOf[holder] = idx
		t.holder[idx] = holder
		t.propagate(idx, value)
		return
	}

	if value.Sign() == 0 {
		old := t.nodes[idx]
		t.nodes[idx] = new(big.Int)
		t.vacant = append(t.vacant, idx)
		delete(t.indexOf, holder)
		delete(t.holder, idx)
		t.propagate(idx, new(big.Int).Neg(old))
		return
	}

	delta := new(big.Int).Sub(value, t.nodes[idx])
	if delta.Sign() == 0 {
		return
	}
	t.nodes[idx] = new(big.Int).Set(value)
	t.propagate(idx, delta)
}

// allocateLeaf returns a free leaf index. When a new slot becomes the first
// child of an existing leaf, that leaf is moved down next to it so the
// parent can become an internal node.
func (t *Tree) allocateLeaf() int {
	if n := len(t.vacant); n > 0 {
		idx := t.vacant[n-1]
		t.vacant = t.vacant[:n-1]
		return idx
	}

	idx := len(t.nodes)
	t.nodes = append(t.nodes, new(big.Int))
	if idx != 1 && (idx-1)%t.k == 0 {
		parent := idx / t.k
		moved := idx + 1
		t.nodes = append(t.nodes, new(big.Int).Set(t.nodes[parent]))
		if id, ok := t.holder[parent]; ok {
			delete(t.holder, parent)
			t.holder[moved] = id
			t.indexOf[id] = moved
		}
	}
	return idx
}

func (t *Tree) propagate(idx int, delta *big.Int) {
	for idx != 0 {
		idx = (idx - 1) / t.k
		t.nodes[idx].Add(t.nodes[idx], delta)
	}
}

// Draw resolves random mod Total() to the holder whose cumulative interval
// contains it. It returns NoWinner when the tree is empty.
func (t *Tree) Draw(random *big.Int) string {
	if t.nodes[0].Sign() == 0 {
		return NoWinner
	}
	remaining := new(big.Int).Mod(random, t.nodes[0])

	idx := 0
	for t.k*idx+1 < len(t.nodes) {
		next := -1
		for i := 1; i <= t.k; i++ {
			child := t.k*idx + i
			if child >= len(t.nodes) {
				break
			}
			if remaining.Cmp(t.nodes[child]) >= 0 {
				remaining.Sub(remaining, t.nodes[child])
				continue
			}
			next = child
			break
		}
		if next < 0 {
			return NoWinner
		}
		idx = next
	}
	return t.holder[idx]
}

// DrawMultiple picks up to count distinct holders. The i-th draw uses
// keccak256(seed || i) and previously picked leaves are zeroed for the rest of
// the batch, then restored before returning.
func (t *Tree) DrawMultiple(seed *big.Int, count int) []string {
	winners := make([]string, 0, count)
	type saved struct {
		idx   int
		value *big.Int
	}
	var zeroed []saved
	defer func() {
		for i := len(zeroed) - 1; i >= 0; i-- {
			s := zeroed[i]
			t.nodes[s.idx] = s.value
			t.propagate(s.idx, s.value)
		}
	}()

	for i := 0; i < count && t.nodes[0].Sign() > 0; i++ {
		winner := t.Draw(DeriveRandom(seed, uint64(i)))
		if winner == NoWinner {
			break
		}
		winners = append(winners, winner)

		idx := t.indexOf[winner]
		value := t.nodes[idx]
		zeroed = append(zeroed, saved{idx: idx, value: value})
		t.nodes[idx] = new(big.Int)
		t.propagate(idx, new(big.Int).Neg(value))
	}
	return winners
}

// DeriveRandom returns keccak256(seed || i) as an unsigned integer, with both
// operands encoded as 32-byte big-endian words.
func DeriveRandom(seed *big.Int, i uint64) *big.Int {
	word := new(big.Int).Abs(seed)
	if word.BitLen() > 256 {
		word.Mod(word, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	buf := make([]byte, 64)
	word.FillBytes(buf[:32])
	new(big.Int).SetUint64(i).FillBytes(buf[32:])

	h := sha3.NewLegacyKeccak256()
	h.Write(buf)
	return new(big.Int).SetBytes(h.Sum(nil))
}

// Stakes returns every holder with its stake.
func (t *Tree) Stakes() map[string]*big.Int {
	out := make(map[string]*big.Int, len(t.indexOf))
	for id, idx := range t.indexOf {
		out[id] = new(big.Int).Set(t.nodes[idx])
	}
	return out
}
