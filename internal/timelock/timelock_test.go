package timelock

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSweepOnlyAfterUnlock(t *testing.T) {
	e := NewEngine()
	e.Lock("alice", big.NewInt(100), 100)

	require.Empty(t, e.Sweep([]string{"alice"}, 50))
	require.Equal(t, "100", e.Total().String())

	swept := e.Sweep([]string{"alice"}, 150)
	require.Len(t, swept, 1)
	require.Equal(t, "alice", swept[0].Holder)
	require.Equal(t, "100", swept[0].Amount.String())

	require.Empty(t, e.Sweep([]string{"alice"}, 150))
	require.Equal(t, "0", e.Total().String())
}

func TestLockMergesAndKeepsLaterUnlock(t *testing.T) {
	e := NewEngine()
	e.Lock("alice", big.NewInt(10), 200)
	entry := e.Lock("alice", big.NewInt(5), 150)

	require.Equal(t, "15", entry.Amount.String())
	require.Equal(t, int64(200), entry.UnlockAt)

	entry = e.Lock("alice", big.NewInt(1), 300)
	require.Equal(t, int64(300), entry.UnlockAt)
}

func TestSweepDeduplicatesHolders(t *testing.T) {
	e := NewEngine()
	e.Lock("alice", big.NewInt(10), 0)
	e.Lock("bob", big.NewInt(20), 500)

	swept := e.Sweep([]string{"alice", "alice", "bob", "carol"}, 10)
	require.Len(t, swept, 1)
	require.Equal(t, "20", e.Total().String())
}

func TestConsume(t *testing.T) {
	e := NewEngine()
	e.Lock("alice", big.NewInt(10), 1000)

	require.ErrorIs(t, e.Consume("alice", big.NewInt(11)), ErrInsufficientTimelock)
	require.NoError(t, e.Consume("alice", big.NewInt(4)))
	entry, ok := e.Get("alice")
	require.True(t, ok)
	require.Equal(t, "6", entry.Amount.String())

	require.NoError(t, e.Consume("alice", big.NewInt(6)))
	_, ok = e.Get("alice")
	require.False(t, ok)
	require.Equal(t, "0", e.Total().String())
}

func TestPutRestoresEntry(t *testing.T) {
	e := NewEngine()
	e.Lock("alice", big.NewInt(10), 100)
	before, ok := e.Get("alice")

	e.Lock("alice", big.NewInt(5), 200)
	e.Put("alice", before, ok)

	entry, _ := e.Get("alice")
	require.Equal(t, "10", entry.Amount.String())
	require.Equal(t, int64(100), entry.UnlockAt)
	require.Equal(t, "10", e.Total().String())
}

func TestMaturedListsSweepable(t *testing.T) {
	e := NewEngine()
	e.Lock("bob", big.NewInt(1), 5)
	e.Lock("alice", big.NewInt(1), 5)
	e.Lock("carol", big.NewInt(1), 50)
	require.Equal(t, []string{"alice", "bob"}, e.Matured(10))
}
