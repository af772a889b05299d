package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stablecoin-mm-bot/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"symbol": "USDCUSDT", "maker_fee": 0.0004}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "USDCUSDT", cfg.Symbol)
	assert.InDelta(t, 0.00001, cfg.TickSize, 1e-12)
	assert.Equal(t, 3, cfg.LoopInterval)
	assert.InDelta(t, 500, cfg.MaxPosition, 1e-9)
	assert.InDelta(t, 0.999, cfg.MaxBuyPrice, 1e-9)
	assert.InDelta(t, 0.999, cfg.GridMaxBuyPrice, 1e-9)
	assert.Equal(t, ":8080", cfg.DashboardAddr)
}

func TestLoadConfigOverridesSurvive(t *testing.T) {
	path := writeConfig(t, `{
		"symbol": "USDCUSDT",
		"maker_fee": 0.001,
		"max_position": 200,
		"grid_max_buy_price": 0.9985
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.001, cfg.MakerFee, 1e-12)
	assert.InDelta(t, 200, cfg.MaxPosition, 1e-9)
	assert.InDelta(t, 0.9985, cfg.GridMaxBuyPrice, 1e-9)
}

func TestLoadConfigMissingSymbol(t *testing.T) {
	path := writeConfig(t, `{"maker_fee": 0.0004}`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidateDriftOrdering(t *testing.T) {
	cfg := &models.Config{
		Symbol:           "USDCUSDT",
		TickSize:         0.00001,
		MaxPosition:      500,
		SellTranches:     4,
		ResyncEpsilon:    1,
		MaxPositionDrift: 0.5,
	}
	assert.Error(t, Validate(cfg))
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestTickDecimals(t *testing.T) {
	cfg := &models.Config{TickSize: 0.00001}
	assert.Equal(t, 5, cfg.TickDecimals())
}
