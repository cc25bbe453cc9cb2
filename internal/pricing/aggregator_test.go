package pricing

import (
	"testing"

	. "fractal/internal/common"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stats(total, average uint64) PriceStats {
	return PriceStats{
		TotalPrice:   *uint256.NewInt(total),
		AveragePrice: *uint256.NewInt(average),
	}
}

func TestOpen(t *testing.T) {
	agg := New()

	got, err := agg.Open(1, 1000, 1000, 50_000)
	require.NoError(t, err)
	assert.Equal(t, stats(50_000_000, 50_000), got)

	current, ok := agg.Stats(1)
	assert.True(t, ok)
	assert.Equal(t, got, current)
}

func TestApply_Sequence(t *testing.T) {
	agg := New()
	_, err := agg.Open(1, 1000, 1000, 50_000)
	require.NoError(t, err)

	// 50 votes repriced from the 50.000 average to 52.000.
	got, err := agg.Apply(1, 50, 52_000)
	require.NoError(t, err)
	assert.Equal(t, stats(50_100_000, 50_100), got)

	// 60 votes traded at 53.000.
	got, err = agg.Apply(1, 60, 53_000)
	require.NoError(t, err)
	assert.Equal(t, stats(50_274_000, 50_274), got)
}

func TestOpen_SecondListingIsApplied(t *testing.T) {
	agg := New()
	_, err := agg.Open(1, 1000, 500, 40_000)
	require.NoError(t, err)

	got, err := agg.Open(1, 1000, 500, 60_000)
	require.NoError(t, err)
	// 20,000,000 - 500*20,000 + 500*60,000
	assert.Equal(t, stats(40_000_000, 40_000), got)
}

func TestApply_ItemNotFound(t *testing.T) {
	agg := New()
	_, err := agg.Apply(1, 10, 1)
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, ok := agg.Stats(1)
	assert.False(t, ok)
}

func TestApply_UnderflowLeavesStats(t *testing.T) {
	agg := New()
	_, err := agg.Open(1, 1000, 1, 1000)
	require.NoError(t, err)

	_, err = agg.Apply(1, 2000, 0)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	current, _ := agg.Stats(1)
	assert.Equal(t, stats(1000, 1), current)
}

// Truncating division loses precision: average*supply no longer rebuilds
// the total. Only average == total/supply is guaranteed.
func TestApply_RoundingDrift(t *testing.T) {
	agg := New()
	got, err := agg.Open(1, 3, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, stats(10, 3), got)

	got, err = agg.Apply(1, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, stats(17, 5), got)

	rebuilt := new(uint256.Int).Mul(&got.AveragePrice, uint256.NewInt(3))
	assert.Equal(t, uint64(15), rebuilt.Uint64())
	assert.Equal(t, uint64(17), got.TotalPrice.Uint64())
}

func TestQuote_DoesNotCommit(t *testing.T) {
	agg := New()
	q, err := agg.QuoteOpen(1, 1000, 1000, 50_000)
	require.NoError(t, err)
	_, ok := agg.Stats(1)
	assert.False(t, ok)

	agg.Commit(q)
	q, err = agg.QuoteApply(1, 50, 52_000)
	require.NoError(t, err)
	assert.Equal(t, stats(50_100_000, 50_100), q.Stats)

	current, _ := agg.Stats(1)
	assert.Equal(t, stats(50_000_000, 50_000), current)
}

func TestEach_ItemOrder(t *testing.T) {
	agg := New()
	for _, item := range []ItemID{3, 1, 2} {
		_, err := agg.Open(item, 10, 10, uint64(item))
		require.NoError(t, err)
	}

	var seen []ItemID
	agg.Each(func(item ItemID, _ PriceStats) {
		seen = append(seen, item)
	})
	assert.Equal(t, []ItemID{1, 2, 3}, seen)
}
