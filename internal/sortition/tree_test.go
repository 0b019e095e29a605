package sortition

import (
	"fmt"
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDrawOverEmptyTreeReturnsSentinel(t *testing.T) {
	tree := New(DefaultK)
	require.Equal(t, NoWinner, tree.Draw(big.NewInt(42)))

	require.NoError(t, tree.Update("alice", big.NewInt(0), big.NewInt(10)))
	require.NoError(t, tree.Update("alice", big.NewInt(10), big.NewInt(0)))
	require.Equal(t, NoWinner, tree.Draw(big.NewInt(42)))
	require.Empty(t, tree.DrawMultiple(big.NewInt(1), 3))
}

func TestDrawMapsIntervalsToHolders(t *testing.T) {
	tree := New(DefaultK)
	require.NoError(t, tree.Update("alice", big.NewInt(0), big.NewInt(10)))
	require.NoError(t, tree.Update("bob", big.NewInt(0), big.NewInt(20)))
	require.NoError(t, tree.Update("carol", big.NewInt(0), big.NewInt(30)))

	require.Equal(t, big.NewInt(60), tree.Total())
	require.Equal(t, "alice", tree.Draw(big.NewInt(0)))
	require.Equal(t, "alice", tree.Draw(big.NewInt(9)))
	require.Equal(t, "bob", tree.Draw(big.NewInt(10)))
	require.Equal(t, "bob", tree.Draw(big.NewInt(29)))
	require.Equal(t, "carol", tree.Draw(big.NewInt(30)))
	require.Equal(t, "carol", tree.Draw(big.NewInt(59)))
	require.Equal(t, "alice", tree.Draw(big.NewInt(60)))
}

func TestUpdateRejectsStaleBalance(t *testing.T) {
	tree := New(DefaultK)
	require.NoError(t, tree.Update("alice", big.NewInt(0), big.NewInt(10)))
	err := tree.Update("alice", big.NewInt(5), big.NewInt(20))
	require.ErrorIs(t, err, ErrStakeMismatch)
	require.Equal(t, big.NewInt(10), tree.StakeOf("alice"))
}

func TestRootTracksSumAcrossRandomMutations(t *testing.T) {
	tree := New(DefaultK)
	rng := rand.New(rand.NewSource(7))
	balances := map[string]*big.Int{}

	for step := 0; step < 2000; step++ {
		holder := fmt.Sprintf("h%d", rng.Intn(60))
		old := balances[holder]
		if old == nil {
			old = new(big.Int)
		}
		next := big.NewInt(int64(rng.Intn(4) * rng.Intn(1000)))
		require.NoError(t, tree.Update(holder, old, next))
		balances[holder] = next

		sum := new(big.Int)
		for _, b := range balances {
			sum.Add(sum, b)
		}
		require.Equal(t, 0, sum.Cmp(tree.Total()), "step %d", step)
	}

	for x := int64(0); x < tree.Total().Int64(); x += 97 {
		winner := tree.Draw(big.NewInt(x))
		require.NotEqual(t, NoWinner, winner)
		require.Positive(t, balances[winner].Sign())
	}
}

func TestDrawIsDeterministic(t *testing.T) {
	build := func() *Tree {
		tree := New(DefaultK)
		for i := 0; i < 12; i++ {
			require.NoError(t, tree.Update(fmt.Sprintf("h%d", i), big.NewInt(0), big.NewInt(int64(i+1))))
		}
		return tree
	}
	a, b := build(), build()
	seed := big.NewInt(123456789)
	require.Equal(t, a.Draw(seed), b.Draw(seed))
	require.Equal(t, a.DrawMultiple(seed, 4), b.DrawMultiple(seed, 4))
}

func TestDrawMultipleIsWithoutReplacementAndRestores(t *testing.T) {
	tree := New(DefaultK)
	require.NoError(t, tree.Update("alice", big.NewInt(0), big.NewInt(1000)))
	require.NoError(t, tree.Update("bob", big.NewInt(0), big.NewInt(1)))
	require.NoError(t, tree.Update("carol", big.NewInt(0), big.NewInt(1)))
	require.NoError(t, tree.Update("dave", big.NewInt(0), big.NewInt(1)))

	for seed := int64(0); seed < 50; seed++ {
		winners := tree.DrawMultiple(big.NewInt(seed), 3)
		require.Len(t, winners, 3)
		seen := map[string]bool{}
		for _, w := range winners {
			require.False(t, seen[w], "duplicate winner %s", w)
			seen[w] = true
		}
	}
	require.Equal(t, big.NewInt(1003), tree.Total())
	require.Equal(t, big.NewInt(1000), tree.StakeOf("alice"))
}

func TestDrawMultipleReturnsFewerWhenHoldersRunOut(t *testing.T) {
	tree := New(DefaultK)
	require.NoError(t, tree.Update("alice", big.NewInt(0), big.NewInt(5)))
	require.NoError(t, tree.Update("bob", big.NewInt(0), big.NewInt(5)))

	winners := tree.DrawMultiple(big.NewInt(9), 5)
	require.ElementsMatch(t, []string{"alice", "bob"}, winners)
}

func TestVacatedLeavesAreReused(t *testing.T) {
	tree := New(2)
	for i := 0; i < 6; i++ {
		require.NoError(t, tree.Update(fmt.Sprintf("h%d", i), big.NewInt(0), big.NewInt(1)))
	}
	size := len(tree.nodes)
	require.NoError(t, tree.Update("h2", big.NewInt(1), big.NewInt(0)))
	require.NoError(t, tree.Update("h9", big.NewInt(0), big.NewInt(4)))
	require.Equal(t, size, len(tree.nodes))
	require.Equal(t, big.NewInt(9), tree.Total())
	require.Equal(t, 6, tree.Len())
}
