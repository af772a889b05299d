package models

import "time"

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Trade 定义了单次成交的信息。成交记录一旦写入即不可变，
// 并以 ID 为主键在成交检测循环中去重。
type Trade struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"order_id,omitempty"` // 产生该成交的订单
	Timestamp int64   `json:"timestamp"`          // 毫秒
	Side      Side    `json:"side"`
	Price     float64 `json:"price"`
	Amount    float64 `json:"amount"`
	Cost      float64 `json:"cost"` // Price * Amount（计价货币）
}

// Order 定义了订单信息
type Order struct {
	ID        string  `json:"id"`
	ClientID  string  `json:"client_id,omitempty"`
	Side      Side    `json:"side"`
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Status    string  `json:"status"`
	CreatedAt int64   `json:"created_at"`
}

// PriceLevel 是盘口中的一个价格档位
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook 是交易所盘口的快照，买卖两侧均按最优价在前排序。
type OrderBook struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

// BestBid 返回最优买价，盘口为空时返回 0。
func (b *OrderBook) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk 返回最优卖价，盘口为空时返回 0。
func (b *OrderBook) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// Mid 返回盘口中间价。
func (b *OrderBook) Mid() float64 {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// SpreadBps 返回以基点计的买卖价差。
func (b *OrderBook) SpreadBps() float64 {
	mid := b.Mid()
	if mid == 0 {
		return 0
	}
	return (b.BestAsk() - b.BestBid()) / mid * 10000
}

// Depth 对一侧盘口前 n 档的数量求和。
func Depth(levels []PriceLevel, n int) float64 {
	if len(levels) < n {
		n = len(levels)
	}
	var total float64
	for _, l := range levels[:n] {
		total += l.Size
	}
	return total
}

// Quote 是定价引擎一次报价计算的结果。任意一侧都可能因
// 门控规则被抑制（HasBid/HasAsk 为 false）。每次重报价都会重新计算。
type Quote struct {
	BidPrice float64
	AskPrice float64
	HasBid   bool
	HasAsk   bool
	BuySize  float64
	SellSize float64
}

// Tranche 是梯次卖出计划中的一档：随档位序号递增，价格逐档改善。
type Tranche struct {
	Price          float64 `json:"price"`
	Size           float64 `json:"size"`
	Index          int     `json:"index"`
	ImprovementBps float64 `json:"improvement_bps"`
}

// PositionSnapshot 记录某一时刻的仓位、成本均价与计价货币余额。
type PositionSnapshot struct {
	Timestamp    int64   `json:"timestamp"`
	Position     float64 `json:"position"`
	AverageCost  float64 `json:"average_cost"`
	QuoteBalance float64 `json:"quote_balance"`
}

// MarketSnapshot 记录盘口快照，用于价差与波动分析。
type MarketSnapshot struct {
	Timestamp int64   `json:"timestamp"`
	MidPrice  float64 `json:"mid_price"`
	BestBid   float64 `json:"best_bid"`
	BestAsk   float64 `json:"best_ask"`
	SpreadBps float64 `json:"spread_bps"`
	BidDepth5 float64 `json:"bid_depth_5"`
	AskDepth5 float64 `json:"ask_depth_5"`
}

// OrderEvent 记录订单生命周期事件（placed/cancelled/rejected）。
type OrderEvent struct {
	Timestamp int64   `json:"timestamp"`
	OrderID   string  `json:"order_id"`
	EventType string  `json:"event_type"`
	Side      Side    `json:"side"`
	Price     float64 `json:"price"`
	Amount    float64 `json:"amount"`
	Reason    string  `json:"reason,omitempty"`
}

// SystemEvent 记录系统健康事件。
type SystemEvent struct {
	Timestamp int64  `json:"timestamp"`
	EventType string `json:"event_type"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
}

// Config 结构体定义了机器人的所有配置参数
type Config struct {
	Symbol     string    `json:"symbol"`      // 交易对, e.g. "USDCUSDT"
	BaseAsset  string    `json:"base_asset"`  // 基础资产, e.g. "USDC"
	QuoteAsset string    `json:"quote_asset"` // 计价资产, e.g. "USDT"
	IsTestnet  bool      `json:"is_testnet"`
	DBPath     string    `json:"db_path"`
	LogConfig  LogConfig `json:"log"`

	MakerFee     float64 `json:"maker_fee"`     // 挂单手续费率, e.g. 0.0004
	OrderSize    float64 `json:"order_size"`    // 单笔基础下单数量
	MaxPosition  float64 `json:"max_position"`  // 最大库存
	TickSize     float64 `json:"tick_size"`     // 最小价格增量
	LoopInterval int     `json:"loop_interval"` // 主循环间隔（秒）

	SkewFactor      float64 `json:"skew_factor"`      // 库存偏斜系数
	TargetInventory float64 `json:"target_inventory"` // 目标库存（通常为 0）

	MinSpreadBps    float64 `json:"min_spread_bps"` // 低于该价差不做市
	OnlyAverageDown bool    `json:"only_average_down"`
	MaxBuyPrice     float64 `json:"max_buy_price"` // 锚定保护：买单价格硬上限

	IncrementalSell  bool    `json:"incremental_sell"`
	SellTranches     int     `json:"sell_tranches"`
	TrancheSpreadBps float64 `json:"tranche_spread_bps"`

	InventorySkewThreshold  float64 `json:"inventory_skew_threshold"`
	AverageDownThresholdBps float64 `json:"average_down_threshold_bps"`

	RequoteThresholdTicks   int  `json:"requote_threshold_ticks"`
	RequoteOnPositionChange bool `json:"requote_on_position_change"`
	MaxOrderAgeSeconds      int  `json:"max_order_age_seconds"`

	// 对账阈值。小于 ResyncEpsilon 的偏差静默同步；超过
	// MaxPositionDrift 视为致命错误并停机。
	PositionEpsilon  float64 `json:"position_epsilon"`   // 均价清零阈值
	ResyncEpsilon    float64 `json:"resync_epsilon"`     // 仓位静默同步阈值
	MaxPositionDrift float64 `json:"max_position_drift"` // 停机阈值
	MinOrderNotional float64 `json:"min_order_notional"` // 最小订单名义价值

	CancelSettleMs  int `json:"cancel_settle_ms"`   // 撤单后的等待时间
	PostPlaceWaitMs int `json:"post_place_wait_ms"` // 下单后的等待时间

	// 网格模式参数
	GridLevels                int     `json:"grid_levels"`
	GridSize                  float64 `json:"grid_size"`
	GridSpacingBps            float64 `json:"grid_spacing_bps"`
	ProfitTargetBps           float64 `json:"profit_target_bps"`
	MaxGridPosition           float64 `json:"max_grid_position"`
	GridRebalanceThresholdBps float64 `json:"grid_rebalance_threshold_bps"`
	GridMinOrderValue         float64 `json:"grid_min_order_value"`
	GridPlaceBothSides        bool    `json:"grid_place_both_sides"`
	GridMaxBuyPrice           float64 `json:"grid_max_buy_price"`
	GridCheckInterval         int     `json:"grid_check_interval"`

	// 看板 API
	DashboardEnabled bool   `json:"dashboard_enabled"`
	DashboardAddr    string `json:"dashboard_addr"`

	// 回测引擎特定配置
	InitialBalance float64 `json:"initial_balance"` // 回测起始计价货币余额
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}

// TickDecimals 返回 TickSize 对应的小数位数，用于价格取整。
func (c *Config) TickDecimals() int {
	d := 0
	t := c.TickSize
	for t < 1 && d < 12 {
		t *= 10
		d++
	}
	return d
}

// Now 是统一的毫秒时间戳来源。
func Now() int64 {
	return time.Now().UnixMilli()
}
