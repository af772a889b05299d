package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stablecoin-mm-bot/internal/ledger"
)

func TestSizesFlatInventory(t *testing.T) {
	s := NewSizer(testConfig())

	buy, sell := s.Sizes(ledger.State{})
	assert.InDelta(t, 50.0, buy, 1e-9)
	assert.InDelta(t, 50.0, sell, 1e-9)
}

func TestSizesSkewAgainstInventory(t *testing.T) {
	s := NewSizer(testConfig())

	// ratio 0.5, skew_factor 2: buy halves, sell grows 1.5x.
	buy, sell := s.Sizes(ledger.State{Position: 250})
	assert.InDelta(t, 25.0, buy, 1e-9)
	assert.InDelta(t, 75.0, sell, 1e-9)

	// Short inventory mirrors: buys grow, sells shrink.
	buy, sell = s.Sizes(ledger.State{Position: -250})
	assert.InDelta(t, 75.0, buy, 1e-9)
	assert.InDelta(t, 25.0, sell, 1e-9)
}

func TestSizesFlooredUnderHeavySkew(t *testing.T) {
	s := NewSizer(testConfig())

	// ratio 0.9 pushes the raw buy multiplier to 0.1; the 20% floor
	// keeps a token bid alive.
	buy, sell := s.Sizes(ledger.State{Position: 450})
	assert.InDelta(t, 10.0, buy, 1e-9)
	assert.InDelta(t, 95.0, sell, 1e-9)
}

func TestSmallPositionExitsInSingleTranche(t *testing.T) {
	s := NewSizer(testConfig())

	tranches := s.Tranches(0.99900, ledger.State{Position: 40, AverageCost: 0.99850})
	require.Len(t, tranches, 1)
	assert.InDelta(t, 40*0.99, tranches[0].Size, 1e-9)
	assert.InDelta(t, 0.99900, tranches[0].Price, 1e-9)
}

func TestIncrementalSellDisabledSingleTranche(t *testing.T) {
	cfg := testConfig()
	cfg.IncrementalSell = false
	s := NewSizer(cfg)

	tranches := s.Tranches(0.99900, ledger.State{Position: 300, AverageCost: 0.99850})
	require.Len(t, tranches, 1)
	assert.InDelta(t, 297.0, tranches[0].Size, 1e-9)
}

func TestTranchesSumAndPricing(t *testing.T) {
	s := NewSizer(testConfig())

	st := ledger.State{Position: 200, AverageCost: 0.99800}
	breakeven := st.AverageCost / (1 - 0.0004)

	tranches := s.Tranches(0.99900, st)
	require.Len(t, tranches, 4)

	var total float64
	for i, tr := range tranches {
		total += tr.Size
		assert.GreaterOrEqual(t, tr.Price, RoundTo(breakeven, 5), "tranche %d below breakeven", i)
		if i > 0 {
			assert.Greater(t, tr.Price, tranches[i-1].Price, "ladder must step up")
		}
	}
	assert.InDelta(t, st.Position*0.99, total, 0.01, "tranches cover ~99%% of the position")
}

func TestTranchesSkipBelowBreakeven(t *testing.T) {
	s := NewSizer(testConfig())

	// Ask sits below breakeven, so the first slices are loss-making
	// and only the higher ladder steps survive.
	st := ledger.State{Position: 200, AverageCost: 0.99900}
	breakeven := st.AverageCost / (1 - 0.0004) // ~0.99940

	tranches := s.Tranches(0.99935, st)
	require.NotEmpty(t, tranches)
	assert.Less(t, len(tranches), 4)
	for _, tr := range tranches {
		assert.GreaterOrEqual(t, tr.Price, RoundTo(breakeven, 5))
	}
}

func TestNoTranchesForEmptyPosition(t *testing.T) {
	s := NewSizer(testConfig())

	assert.Empty(t, s.Tranches(0.99900, ledger.State{}))
}
