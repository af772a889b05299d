package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stablecoin-mm-bot/internal/ledger"
	"stablecoin-mm-bot/internal/models"
)

func testConfig() *models.Config {
	return &models.Config{
		Symbol:                  "USDCUSDT",
		MakerFee:                0.0004,
		OrderSize:               50,
		MaxPosition:             500,
		TickSize:                0.00001,
		SkewFactor:              2.0,
		TargetInventory:         0,
		MinSpreadBps:            3,
		MaxBuyPrice:             0.999,
		IncrementalSell:         true,
		SellTranches:            4,
		TrancheSpreadBps:        2,
		InventorySkewThreshold:  0.6,
		AverageDownThresholdBps: 5,
	}
}

func TestSpreadTooTightWithholdsBothSides(t *testing.T) {
	p := NewPricer(testConfig())

	// 2 bps < 3 bps minimum and a flat book means no inventory actions.
	q := p.Prices(0.99800, 0.99810, 0.99790, 2, ledger.State{})

	assert.False(t, q.HasBid)
	assert.False(t, q.HasAsk)
}

func TestTightSpreadStillAllowsAverageDown(t *testing.T) {
	p := NewPricer(testConfig())

	// Holding inventory bought higher: best bid with fee is well below
	// the average cost, so the spread gate must not block the cycle.
	st := ledger.State{Position: 100, AverageCost: 0.99900}
	q := p.Prices(0.99800, 0.99810, 0.99790, 2, st)

	assert.True(t, q.HasBid)
	assert.InDelta(t, 0.99790, q.BidPrice, 1e-9)
}

func TestAskNeverBelowBreakeven(t *testing.T) {
	p := NewPricer(testConfig())

	st := ledger.State{Position: 100, AverageCost: 0.99900}
	breakeven := st.AverageCost / (1 - 0.0004)

	// Best ask below breakeven: ask side must be withheld.
	q := p.Prices(0.99850, breakeven-0.0001, 0.99800, 5, st)
	assert.False(t, q.HasAsk)

	// Best ask clearing breakeven: ask side quoted.
	q = p.Prices(0.99990, breakeven+0.0001, 0.99950, 5, st)
	assert.True(t, q.HasAsk)
	assert.GreaterOrEqual(t, q.AskPrice, RoundTo(breakeven, 5))
}

func TestBidNeverAtOrAbovePegCeiling(t *testing.T) {
	p := NewPricer(testConfig())

	q := p.Prices(0.99910, 0.99920, 0.99900, 5, ledger.State{})
	assert.False(t, q.HasBid, "bid at 0.999 must be withheld")

	q = p.Prices(0.99880, 0.99890, 0.99870, 5, ledger.State{})
	assert.True(t, q.HasBid)
	assert.Less(t, q.BidPrice, 0.999)
}

func TestHighInventoryWithholdsBid(t *testing.T) {
	p := NewPricer(testConfig())

	// 400/500 = 0.8 > 0.6 threshold, and the bid is only marginally
	// below average so the average-down override does not apply.
	st := ledger.State{Position: 400, AverageCost: 0.99820}
	q := p.Prices(0.99815, 0.99830, 0.99810, 5, st)

	assert.False(t, q.HasBid)
}

func TestHighInventoryAverageDownOverride(t *testing.T) {
	p := NewPricer(testConfig())

	// Same inventory, but the bid is far enough below average cost
	// (>5 bps improvement) that averaging down stays allowed.
	st := ledger.State{Position: 400, AverageCost: 0.99900}
	q := p.Prices(0.99805, 0.99820, 0.99790, 5, st)

	assert.True(t, q.HasBid)
}

func TestPricesRoundedToTick(t *testing.T) {
	p := NewPricer(testConfig())

	q := p.Prices(0.998004, 0.9980071, 0.9980012, 6, ledger.State{})
	assert.True(t, q.HasBid)
	assert.True(t, q.HasAsk)
	assert.InDelta(t, 0.99800, q.BidPrice, 1e-12)
	assert.InDelta(t, 0.99801, q.AskPrice, 1e-12)
}

func TestInventoryRatioClamped(t *testing.T) {
	cfg := testConfig()

	assert.InDelta(t, 0.5, InventoryRatio(250, cfg), 1e-9)
	assert.InDelta(t, 1.0, InventoryRatio(900, cfg), 1e-9, "overshoot clamps to +1")
	assert.InDelta(t, -1.0, InventoryRatio(-900, cfg), 1e-9)

	cfg.TargetInventory = 100
	assert.InDelta(t, 0.2, InventoryRatio(200, cfg), 1e-9)
}
