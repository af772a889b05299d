package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stablecoin-mm-bot/internal/models"
)

func requoteConfig() *models.Config {
	return &models.Config{
		TickSize:                0.00001,
		RequoteThresholdTicks:   3,
		RequoteOnPositionChange: true,
		MaxOrderAgeSeconds:      30,
		ResyncEpsilon:           0.1,
	}
}

func topOfBook(bid, ask float64) *models.OrderBook {
	return &models.OrderBook{
		Bids: []models.PriceLevel{{Price: bid, Size: 1000}},
		Asks: []models.PriceLevel{{Price: ask, Size: 1000}},
	}
}

func TestRequoteInitial(t *testing.T) {
	r := NewRequoteController(requoteConfig())

	need, reason := r.ShouldRequote(topOfBook(0.99800, 0.99810), 0, 1000)
	assert.True(t, need)
	assert.Equal(t, "initial", reason)
}

func TestRequoteStableMarketHolds(t *testing.T) {
	r := NewRequoteController(requoteConfig())
	r.MarkQuoted(topOfBook(0.99800, 0.99810), 0, 1000)

	need, _ := r.ShouldRequote(topOfBook(0.99800, 0.99810), 0, 2000)
	assert.False(t, need)
}

func TestRequoteTickThreshold(t *testing.T) {
	r := NewRequoteController(requoteConfig())
	r.MarkQuoted(topOfBook(0.99800, 0.99810), 0, 1000)

	// 2 ticks of movement stays under the 3-tick threshold.
	need, _ := r.ShouldRequote(topOfBook(0.99802, 0.99810), 0, 2000)
	assert.False(t, need)

	// 4 ticks crosses it.
	need, reason := r.ShouldRequote(topOfBook(0.99804, 0.99810), 0, 2000)
	assert.True(t, need)
	assert.Equal(t, "price_moved", reason)

	// Ask-side movement triggers the same way.
	need, reason = r.ShouldRequote(topOfBook(0.99800, 0.99814), 0, 2000)
	assert.True(t, need)
	assert.Equal(t, "price_moved", reason)
}

func TestRequoteOnPositionChange(t *testing.T) {
	r := NewRequoteController(requoteConfig())
	r.MarkQuoted(topOfBook(0.99800, 0.99810), 100, 1000)

	// Noise below resync_epsilon is not a fill.
	need, _ := r.ShouldRequote(topOfBook(0.99800, 0.99810), 100.05, 2000)
	assert.False(t, need)

	need, reason := r.ShouldRequote(topOfBook(0.99800, 0.99810), 150, 2000)
	assert.True(t, need)
	assert.Equal(t, "position_changed", reason)
}

func TestRequotePositionChangeDisabled(t *testing.T) {
	cfg := requoteConfig()
	cfg.RequoteOnPositionChange = false
	r := NewRequoteController(cfg)
	r.MarkQuoted(topOfBook(0.99800, 0.99810), 100, 1000)

	need, _ := r.ShouldRequote(topOfBook(0.99800, 0.99810), 150, 2000)
	assert.False(t, need)
}

func TestRequoteMaxAge(t *testing.T) {
	r := NewRequoteController(requoteConfig())
	r.MarkQuoted(topOfBook(0.99800, 0.99810), 0, 1000)

	need, _ := r.ShouldRequote(topOfBook(0.99800, 0.99810), 0, 1000+30*1000)
	assert.False(t, need)

	need, reason := r.ShouldRequote(topOfBook(0.99800, 0.99810), 0, 1000+31*1000)
	assert.True(t, need)
	assert.Equal(t, "max_age", reason)
}

func TestRequoteReset(t *testing.T) {
	r := NewRequoteController(requoteConfig())
	r.MarkQuoted(topOfBook(0.99800, 0.99810), 0, 1000)
	r.Reset()

	need, reason := r.ShouldRequote(topOfBook(0.99800, 0.99810), 0, 1001)
	assert.True(t, need)
	assert.Equal(t, "initial", reason)
}
