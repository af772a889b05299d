package config

import (
	"encoding/json"
	"fmt"
	"os"

	"stablecoin-mm-bot/internal/models"
)

// LoadConfig 从指定路径加载JSON配置文件并解析到Config结构体中，
// 随后填充默认值并做基本校验。
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := &models.Config{}
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *models.Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = "data/mmbot"
	}
	if cfg.TickSize == 0 {
		cfg.TickSize = 0.00001
	}
	if cfg.LoopInterval == 0 {
		cfg.LoopInterval = 3
	}
	if cfg.OrderSize == 0 {
		cfg.OrderSize = 50
	}
	if cfg.MaxPosition == 0 {
		cfg.MaxPosition = 500
	}
	if cfg.SkewFactor == 0 {
		cfg.SkewFactor = 2.0
	}
	if cfg.MinSpreadBps == 0 {
		cfg.MinSpreadBps = 3
	}
	if cfg.MaxBuyPrice == 0 {
		cfg.MaxBuyPrice = 0.999
	}
	if cfg.SellTranches == 0 {
		cfg.SellTranches = 4
	}
	if cfg.TrancheSpreadBps == 0 {
		cfg.TrancheSpreadBps = 2
	}
	if cfg.InventorySkewThreshold == 0 {
		cfg.InventorySkewThreshold = 0.6
	}
	if cfg.AverageDownThresholdBps == 0 {
		cfg.AverageDownThresholdBps = 5
	}
	if cfg.RequoteThresholdTicks == 0 {
		cfg.RequoteThresholdTicks = 2
	}
	if cfg.MaxOrderAgeSeconds == 0 {
		cfg.MaxOrderAgeSeconds = 120
	}
	if cfg.PositionEpsilon == 0 {
		cfg.PositionEpsilon = 5
	}
	if cfg.ResyncEpsilon == 0 {
		cfg.ResyncEpsilon = 0.1
	}
	if cfg.MaxPositionDrift == 0 {
		cfg.MaxPositionDrift = 50
	}
	if cfg.MinOrderNotional == 0 {
		cfg.MinOrderNotional = 10
	}
	if cfg.CancelSettleMs == 0 {
		cfg.CancelSettleMs = 300
	}
	if cfg.PostPlaceWaitMs == 0 {
		cfg.PostPlaceWaitMs = 1000
	}
	if cfg.GridLevels == 0 {
		cfg.GridLevels = 10
	}
	if cfg.GridSize == 0 {
		cfg.GridSize = 50
	}
	if cfg.GridSpacingBps == 0 {
		cfg.GridSpacingBps = 5
	}
	if cfg.ProfitTargetBps == 0 {
		cfg.ProfitTargetBps = 10
	}
	if cfg.MaxGridPosition == 0 {
		cfg.MaxGridPosition = 500
	}
	if cfg.GridRebalanceThresholdBps == 0 {
		cfg.GridRebalanceThresholdBps = 50
	}
	if cfg.GridMinOrderValue == 0 {
		cfg.GridMinOrderValue = 10
	}
	if cfg.GridMaxBuyPrice == 0 {
		cfg.GridMaxBuyPrice = cfg.MaxBuyPrice
	}
	if cfg.GridCheckInterval == 0 {
		cfg.GridCheckInterval = 5
	}
	if cfg.DashboardAddr == "" {
		cfg.DashboardAddr = ":8080"
	}
	if cfg.InitialBalance == 0 {
		cfg.InitialBalance = 1000
	}
}

// Validate 检查配置中无法继续运行的组合。
func Validate(cfg *models.Config) error {
	if cfg.Symbol == "" {
		return fmt.Errorf("配置缺少 symbol")
	}
	if cfg.MakerFee < 0 || cfg.MakerFee >= 1 {
		return fmt.Errorf("maker_fee 必须在 [0,1) 区间内: %f", cfg.MakerFee)
	}
	if cfg.MaxPosition <= 0 {
		return fmt.Errorf("max_position 必须为正数")
	}
	if cfg.TickSize <= 0 {
		return fmt.Errorf("tick_size 必须为正数")
	}
	if cfg.MaxPositionDrift <= cfg.ResyncEpsilon {
		return fmt.Errorf("max_position_drift (%f) 必须大于 resync_epsilon (%f)",
			cfg.MaxPositionDrift, cfg.ResyncEpsilon)
	}
	if cfg.SellTranches < 1 {
		return fmt.Errorf("sell_tranches 至少为 1")
	}
	return nil
}
