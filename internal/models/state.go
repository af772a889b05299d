package models

// LevelStatus 是单个网格档位状态机的状态。
// 生命周期: pending -> buy_placed -> buy_filled -> sell_placed -> completed
// -> buy_placed (档位被复用，永不销毁)。
type LevelStatus string

const (
	LevelPending    LevelStatus = "pending"
	LevelBuyPlaced  LevelStatus = "buy_placed"
	LevelBuyFilled  LevelStatus = "buy_filled"
	LevelSellPlaced LevelStatus = "sell_placed"
	LevelCompleted  LevelStatus = "completed"
	// LevelIdle: 档位买价超过锚定保护上限后停用，等待网格整体重建。
	LevelIdle LevelStatus = "idle"
)

// GridLevel 代表网格中一个独立的买/卖对档位。
// 每个档位是独立的状态机，自带成交处理与重新挂单逻辑。
type GridLevel struct {
	Index        int         `json:"index"`
	BuyPrice     float64     `json:"buy_price"`
	SellPrice    float64     `json:"sell_price"`
	Size         float64     `json:"size"`
	BuyOrderID   string      `json:"buy_order_id,omitempty"`
	SellOrderID  string      `json:"sell_order_id,omitempty"`
	Status       LevelStatus `json:"status"`
	BuyFilledAt  int64       `json:"buy_filled_at,omitempty"`
	SellFilledAt int64       `json:"sell_filled_at,omitempty"`
	Profit       float64     `json:"profit"`
	Completed    int         `json:"completed"` // 完成的整轮次数
}

// GridState 是一张网格的完整状态。当价格偏离中心超过再平衡阈值时,
// 整张网格被停用并以新的中心价重建。
type GridState struct {
	ID          string       `json:"id"`
	CenterPrice float64      `json:"center_price"`
	CreatedAt   int64        `json:"created_at"`
	Active      bool         `json:"active"`
	Levels      []*GridLevel `json:"levels"`
}

// GridStatusSummary 汇总网格当前的运行状态。
type GridStatusSummary struct {
	GridID      string  `json:"grid_id"`
	CenterPrice float64 `json:"center_price"`
	TotalLevels int     `json:"total_levels"`
	BuyPlaced   int     `json:"buy_placed"`
	BuyFilled   int     `json:"buy_filled"`
	Completed   int     `json:"completed"`
	Position    float64 `json:"position"`
	TotalProfit float64 `json:"total_profit"`
}

// Summary 统计各档位状态并汇总利润。
func (g *GridState) Summary(position float64) GridStatusSummary {
	s := GridStatusSummary{
		GridID:      g.ID,
		CenterPrice: g.CenterPrice,
		TotalLevels: len(g.Levels),
		Position:    position,
	}
	for _, l := range g.Levels {
		switch l.Status {
		case LevelBuyPlaced, LevelBuyFilled, LevelSellPlaced:
			s.BuyPlaced++
		}
		if l.Status == LevelBuyFilled || l.Status == LevelSellPlaced {
			s.BuyFilled++
		}
		s.Completed += l.Completed
		if l.Profit > 0 {
			s.TotalProfit += l.Profit
		}
	}
	return s
}

// GridOrderRecord 是写入存储的网格订单记录。
type GridOrderRecord struct {
	GridID      string      `json:"grid_id"`
	LevelIndex  int         `json:"level_index"`
	BuyOrderID  string      `json:"buy_order_id"`
	SellOrderID string      `json:"sell_order_id,omitempty"`
	BuyPrice    float64     `json:"buy_price"`
	SellPrice   float64     `json:"sell_price"`
	Size        float64     `json:"size"`
	Status      LevelStatus `json:"status"`
	BuyFilledAt int64       `json:"buy_filled_at,omitempty"`
	SellFilledAt int64      `json:"sell_filled_at,omitempty"`
	Profit      float64     `json:"profit"`
	UpdatedAt   int64       `json:"updated_at"`
}
