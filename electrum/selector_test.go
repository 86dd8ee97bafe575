package electrum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(value uint64, height int32) UnspentEntry {
	return UnspentEntry{Value: value, Height: height}
}

func TestSelectUnspent_FewEntriesTakesAll(t *testing.T) {
	pool := []UnspentEntry{entry(10, 1), entry(20, 1), entry(30, 1)}
	selected := SelectUnspent(pool, []uint64{15}, 0, false)
	assert.Len(t, selected, 3)
}

func TestSelectUnspent_FiltersBelowMinAmount(t *testing.T) {
	pool := []UnspentEntry{entry(5, 1), entry(10, 1), entry(20, 1), entry(30, 1)}
	selected := SelectUnspent(pool, []uint64{15}, 10, false)
	for _, u := range selected {
		assert.GreaterOrEqual(t, u.Value, uint64(10))
	}
}

func TestSelectUnspent_FiltersUnconfirmedWhenRequested(t *testing.T) {
	pool := []UnspentEntry{entry(10, 0), entry(20, 1), entry(30, 1), entry(40, 1)}
	selected := SelectUnspent(pool, []uint64{25}, 0, true)
	for _, u := range selected {
		assert.Greater(t, u.Height, int32(0))
	}
}

func TestSelectUnspent_MultiTargetRemovesChosenFromPool(t *testing.T) {
	pool := make([]UnspentEntry, 10)
	for i := range pool {
		pool[i] = entry(uint64((i+1)*10), 1)
	}
	selected := SelectUnspent(pool, []uint64{25, 60}, 0, false)
	require.NotEmpty(t, selected)

	seen := make(map[UnspentEntry]int)
	for _, u := range selected {
		seen[u]++
	}
	for u, count := range seen {
		assert.LessOrEqualf(t, count, 1, "entry %v selected more than once across targets", u)
	}
}

func TestSelectUnspent_EmptyPoolReturnsEmpty(t *testing.T) {
	selected := SelectUnspent(nil, []uint64{100}, 0, false)
	assert.Empty(t, selected)
}

func TestSelectForTarget_PivotAtStart(t *testing.T) {
	pool := []UnspentEntry{entry(50, 1), entry(60, 1), entry(70, 1), entry(80, 1)}
	chosen, idx := selectForTarget(pool, 10)
	assert.Equal(t, []int{0, 1, 2}, idx)
	assert.Len(t, chosen, 3)
}

func TestSelectForTarget_PivotAtEnd(t *testing.T) {
	pool := []UnspentEntry{entry(10, 1), entry(20, 1), entry(30, 1), entry(40, 1)}
	chosen, idx := selectForTarget(pool, 40)
	assert.Equal(t, []int{0, 2, 3}, idx)
	assert.Len(t, chosen, 3)
}

func TestSelectForTarget_NoPivotAccumulatesFromLargest(t *testing.T) {
	pool := []UnspentEntry{entry(1, 1), entry(2, 1), entry(3, 1), entry(4, 1)}
	chosen, _ := selectForTarget(pool, 100)
	var total uint64
	for _, u := range chosen {
		total += u.Value
	}
	assert.Equal(t, uint64(1+2+3+4), total)
}
