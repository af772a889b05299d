package strategy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stablecoin-mm-bot/internal/exchange"
	"stablecoin-mm-bot/internal/ledger"
	"stablecoin-mm-bot/internal/models"
)

func makerConfig() *models.Config {
	return &models.Config{
		Symbol:                  "USDCUSDT",
		MakerFee:                0.0004,
		OrderSize:               50,
		MaxPosition:             500,
		TickSize:                0.00001,
		SkewFactor:              2.0,
		MinSpreadBps:            3,
		MaxBuyPrice:             0.999,
		IncrementalSell:         true,
		SellTranches:            4,
		TrancheSpreadBps:        2,
		InventorySkewThreshold:  0.6,
		AverageDownThresholdBps: 5,
		RequoteThresholdTicks:   3,
		RequoteOnPositionChange: true,
		MaxOrderAgeSeconds:      30,
		PositionEpsilon:         5,
		ResyncEpsilon:           0.1,
		MaxPositionDrift:        50,
		MinOrderNotional:        10,
		InitialBalance:          1000,
	}
}

// stubExchange lets tests force balances and books the sim cannot.
type stubExchange struct {
	base, quote float64
	book        *models.OrderBook
	created     int
}

func (s *stubExchange) FetchBalances() (float64, float64, error) { return s.base, s.quote, nil }
func (s *stubExchange) FetchOrderBook(int) (*models.OrderBook, error) {
	if s.book == nil {
		return &models.OrderBook{}, nil
	}
	return s.book, nil
}
func (s *stubExchange) FetchMyTrades(int) ([]models.Trade, error)  { return nil, nil }
func (s *stubExchange) FetchOpenOrders() ([]models.Order, error)   { return nil, nil }
func (s *stubExchange) CancelOrder(string) error                   { return nil }
func (s *stubExchange) CancelAllOrders() error                     { return nil }
func (s *stubExchange) CreateOrder(side models.Side, size, price float64) (*models.Order, error) {
	s.created++
	return &models.Order{ID: "stub", Side: side, Price: price, Size: size, Status: "NEW"}, nil
}

func TestMakerPlacesInitialBid(t *testing.T) {
	cfg := makerConfig()
	sim := exchange.NewSimExchange(cfg)
	sim.SetBook(topOfBook(0.99780, 0.99820), 1000)
	store := &mockRecorder{}

	m := NewMakerStrategy(cfg, sim, store)
	require.NoError(t, m.Init())
	require.NoError(t, m.Tick())

	open, err := sim.FetchOpenOrders()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.Buy, open[0].Side)
	assert.InDelta(t, 0.99780, open[0].Price, 1e-9)
	assert.InDelta(t, 50, open[0].Size, 1e-9)

	require.NotEmpty(t, store.orderEvents)
	assert.Equal(t, "placed", store.orderEvents[0].EventType)
	assert.Empty(t, store.trades, "no fills yet")
}

func TestMakerCapturesFillThenAveragesDown(t *testing.T) {
	cfg := makerConfig()
	sim := exchange.NewSimExchange(cfg)
	sim.SetBook(topOfBook(0.99780, 0.99820), 1000)
	store := &mockRecorder{}

	m := NewMakerStrategy(cfg, sim, store)
	require.NoError(t, m.Init())
	require.NoError(t, m.Tick())

	// Market drops through the resting bid: it fills.
	sim.SetBook(topOfBook(0.99750, 0.99760), 2000)
	require.NoError(t, m.Tick())

	require.Len(t, store.trades, 1)
	assert.Equal(t, models.Buy, store.trades[0].Side)

	last := store.posSnaps[len(store.posSnaps)-1]
	assert.InDelta(t, 50, last.Position, 1e-9)
	assert.InDelta(t, 0.99780*1.0004, last.AverageCost, 1e-6)

	// Spread is only 1 bps now, but averaging down stays available, so
	// a fresh bid goes out. The ask is below breakeven and withheld.
	open, err := sim.FetchOpenOrders()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.Buy, open[0].Side)
	assert.InDelta(t, 0.99750, open[0].Price, 1e-9)
	assert.InDelta(t, 45, open[0].Size, 1e-9, "buy size skewed down by inventory")
}

func TestMakerPlacesTrancheLadder(t *testing.T) {
	cfg := makerConfig()
	sim := exchange.NewSimExchange(cfg)
	sim.SetBalances(100, 1000)
	sim.SetBook(topOfBook(0.99790, 0.99810), 1000)
	store := &mockRecorder{
		seedTrades: []models.Trade{
			{ID: "t1", Timestamp: 1, Side: models.Buy, Price: 0.99700, Amount: 100, Cost: 99.7},
		},
	}

	m := NewMakerStrategy(cfg, sim, store)
	require.NoError(t, m.Init())
	require.NoError(t, m.Tick())

	open, err := sim.FetchOpenOrders()
	require.NoError(t, err)

	var buys, sells []models.Order
	for _, o := range open {
		if o.Side == models.Buy {
			buys = append(buys, o)
		} else {
			sells = append(sells, o)
		}
	}
	require.Len(t, buys, 1)
	require.Len(t, sells, 4)

	breakeven := 0.99700 * 1.0004 / (1 - 0.0004)
	var total float64
	for _, o := range sells {
		total += o.Size
		assert.GreaterOrEqual(t, o.Price, breakeven, "every exit clears breakeven")
	}
	assert.InDelta(t, 99, total, 1e-9, "ladder covers ~99%% of the position")
	assert.Greater(t, sells[3].Price, sells[0].Price, "ladder steps up")
}

func TestMakerOnlyAverageDownSkipsBuy(t *testing.T) {
	cfg := makerConfig()
	cfg.OnlyAverageDown = true
	sim := exchange.NewSimExchange(cfg)
	sim.SetBalances(100, 1000)
	sim.SetBook(topOfBook(0.99790, 0.99810), 1000)
	store := &mockRecorder{
		seedTrades: []models.Trade{
			{ID: "t1", Timestamp: 1, Side: models.Buy, Price: 0.99700, Amount: 100, Cost: 99.7},
		},
	}

	m := NewMakerStrategy(cfg, sim, store)
	require.NoError(t, m.Init())
	require.NoError(t, m.Tick())

	open, err := sim.FetchOpenOrders()
	require.NoError(t, err)
	for _, o := range open {
		assert.Equal(t, models.Sell, o.Side, "buying above average is disallowed")
	}
	assert.NotEmpty(t, open)
}

func TestMakerHaltsOnPositionMismatch(t *testing.T) {
	cfg := makerConfig()
	ex := &stubExchange{base: 100, quote: 1000, book: topOfBook(0.99790, 0.99810)}
	store := &mockRecorder{}

	m := NewMakerStrategy(cfg, ex, store)
	require.NoError(t, m.Init())

	// Ledger says flat, exchange says 100: drift beyond the halt limit.
	err := m.Tick()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrPositionMismatch))
	assert.Zero(t, ex.created, "no orders after a fatal mismatch")

	require.NotEmpty(t, store.systemEvents)
	last := store.systemEvents[len(store.systemEvents)-1]
	assert.Equal(t, "position_mismatch", last.EventType)
	assert.Equal(t, "critical", last.Severity)
}

func TestMakerSkipsIncompleteBook(t *testing.T) {
	cfg := makerConfig()
	ex := &stubExchange{book: &models.OrderBook{}}
	store := &mockRecorder{}

	m := NewMakerStrategy(cfg, ex, store)
	require.NoError(t, m.Init())
	require.NoError(t, m.Tick())
	assert.Zero(t, ex.created)
}
