package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stablecoin-mm-bot/internal/exchange"
	"stablecoin-mm-bot/internal/models"
)

func gridConfig() *models.Config {
	return &models.Config{
		Symbol:                    "USDCUSDT",
		MakerFee:                  0.0004,
		TickSize:                  0.00001,
		ResyncEpsilon:             0.1,
		GridLevels:                4,
		GridSize:                  20,
		GridSpacingBps:            10,
		ProfitTargetBps:           20,
		MaxGridPosition:           200,
		GridRebalanceThresholdBps: 50,
		GridMinOrderValue:         10,
		GridMaxBuyPrice:           0.999,
		InitialBalance:            1000,
	}
}

func newGridUnderTest(t *testing.T, cfg *models.Config) (*GridStrategy, *exchange.SimExchange, *mockRecorder) {
	t.Helper()
	sim := exchange.NewSimExchange(cfg)
	store := &mockRecorder{}
	g := NewGridStrategy(cfg, sim, store)
	require.NoError(t, g.Init())
	return g, sim, store
}

func TestGridInitializesSymmetricLadder(t *testing.T) {
	cfg := gridConfig()
	g, sim, store := newGridUnderTest(t, cfg)

	sim.SetBook(topOfBook(0.99795, 0.99805), 1000)
	require.NoError(t, g.Tick())

	require.NotNil(t, store.gridState)
	grid := store.gridState
	assert.True(t, grid.Active)
	assert.InDelta(t, 0.99800, grid.CenterPrice, 1e-9)
	require.Len(t, grid.Levels, 4)

	// Levels step by 10 bps around the center, exits 20 bps above entry.
	assert.InDelta(t, 0.99600, grid.Levels[0].BuyPrice, 1e-9)
	assert.InDelta(t, 0.99700, grid.Levels[1].BuyPrice, 1e-9)
	assert.InDelta(t, 0.99800, grid.Levels[2].BuyPrice, 1e-9)
	assert.InDelta(t, 0.99900, grid.Levels[3].BuyPrice, 1e-9)
	for _, l := range grid.Levels {
		assert.Equal(t, models.LevelBuyPlaced, l.Status)
		assert.InDelta(t, l.BuyPrice*1.002, l.SellPrice, 1e-5)
	}
}

func TestGridLevelLifecycle(t *testing.T) {
	cfg := gridConfig()
	g, sim, store := newGridUnderTest(t, cfg)

	sim.SetBook(topOfBook(0.99795, 0.99805), 1000)
	require.NoError(t, g.Tick())

	// The top level (0.99900) was marketable and filled on placement.
	// Its fill is processed on the next tick and the paired sell goes out.
	sim.SetBook(topOfBook(0.99795, 0.99805), 2000)
	require.NoError(t, g.Tick())

	grid := store.gridState
	top := grid.Levels[3]
	assert.Equal(t, models.LevelSellPlaced, top.Status)
	assert.NotEmpty(t, top.SellOrderID)
	require.NotEmpty(t, store.trades)

	// Price rallies through the exit at 1.00100: the level completes
	// and recycles.
	sim.SetBook(topOfBook(1.00105, 1.00115), 3000)
	require.NoError(t, g.Tick())

	assert.Equal(t, models.LevelBuyPlaced, top.Status)
	assert.Equal(t, 1, top.Completed)
	assert.Greater(t, top.Profit, 0.0)
	assert.NotEmpty(t, top.BuyOrderID)
	assert.Empty(t, top.SellOrderID)

	expected := (top.SellPrice*(1-cfg.MakerFee) - top.BuyPrice*(1+cfg.MakerFee)) * top.Size
	assert.InDelta(t, expected, top.Profit, 1e-9)
}

func TestGridRebalancesOnCenterDrift(t *testing.T) {
	cfg := gridConfig()
	g, sim, store := newGridUnderTest(t, cfg)

	sim.SetBook(topOfBook(0.99795, 0.99805), 1000)
	require.NoError(t, g.Tick())
	oldID := store.gridState.ID

	// 60 bps below center, past the 50 bps rebalance threshold.
	sim.SetBook(topOfBook(0.99195, 0.99205), 2000)
	require.NoError(t, g.Tick())

	grid := store.gridState
	assert.NotEqual(t, oldID, grid.ID)
	assert.True(t, grid.Active)
	assert.InDelta(t, 0.99200, grid.CenterPrice, 1e-9)

	// The old ladder's resting orders were torn down with it.
	open, err := sim.FetchOpenOrders()
	require.NoError(t, err)
	for _, o := range open {
		if o.Side == models.Buy {
			assert.LessOrEqual(t, o.Price, 0.99200*1.002)
		}
	}
}

func TestGridCapsCenterAtPegCeiling(t *testing.T) {
	cfg := gridConfig()
	g, sim, store := newGridUnderTest(t, cfg)

	sim.SetBook(topOfBook(0.99920, 0.99930), 1000)
	require.NoError(t, g.Tick())

	grid := store.gridState
	assert.InDelta(t, 0.999, grid.CenterPrice, 1e-9)
	for _, l := range grid.Levels {
		assert.LessOrEqual(t, l.BuyPrice, 0.999)
	}
	// Levels that would land above the ceiling are never created.
	assert.Less(t, len(grid.Levels), cfg.GridLevels)
}

func TestGridResumesFromStorage(t *testing.T) {
	cfg := gridConfig()
	sim := exchange.NewSimExchange(cfg)
	saved := &models.GridState{
		ID:          "grid_prev",
		CenterPrice: 0.99800,
		Active:      true,
		Levels: []*models.GridLevel{
			{Index: 0, BuyPrice: 0.99700, SellPrice: 0.99900, Size: 20, Status: models.LevelPending},
		},
	}
	store := &mockRecorder{seedGrid: saved}

	g := NewGridStrategy(cfg, sim, store)
	require.NoError(t, g.Init())

	sim.SetBook(topOfBook(0.99795, 0.99805), 1000)
	require.NoError(t, g.Tick())

	// The saved grid is reused, and its pending level gets its buy.
	assert.Equal(t, "grid_prev", store.gridState.ID)
	assert.Equal(t, models.LevelBuyPlaced, saved.Levels[0].Status)
}
