package reporter

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"stablecoin-mm-bot/internal/exchange"
	"stablecoin-mm-bot/internal/ledger"
	"stablecoin-mm-bot/internal/models"
)

// Metrics 存储一次回测运行的全部性能指标
type Metrics struct {
	Symbol           string
	InitialBalance   float64
	FinalBalance     float64
	TotalProfit      float64
	ProfitPercentage float64
	RealizedProfit   float64
	TotalFees        float64
	TotalTrades      int
	Buys             int
	Sells            int
	MaxDrawdown      float64
	EndingCash       float64
	EndingInventory  float64
	EndingAssetValue float64
	StartTime        time.Time
	EndTime          time.Time
}

// Summarize 根据模拟交易所的期末状态计算性能指标。
func Summarize(sim *exchange.SimExchange, cfg *models.Config, equityCurve []float64, start, end time.Time) *Metrics {
	m := &Metrics{
		Symbol:         cfg.Symbol,
		InitialBalance: cfg.InitialBalance,
		TotalFees:      sim.TotalFees,
		StartTime:      start,
		EndTime:        end,
	}

	trades := sim.Trades()
	m.TotalTrades = len(trades)
	for _, t := range trades {
		if t.Side == models.Buy {
			m.Buys++
		} else {
			m.Sells++
		}
	}
	m.RealizedProfit = ledger.Realized(trades, cfg.MakerFee)

	base, quote, _ := sim.FetchBalances()
	m.EndingCash = quote
	m.EndingInventory = base
	m.FinalBalance = sim.Equity()
	m.EndingAssetValue = m.FinalBalance - m.EndingCash

	m.TotalProfit = m.FinalBalance - m.InitialBalance
	if m.InitialBalance != 0 {
		m.ProfitPercentage = m.TotalProfit / m.InitialBalance * 100
	}
	m.MaxDrawdown = maxDrawdown(equityCurve) * 100

	return m
}

// Render 打印回测结果报告。
func (m *Metrics) Render(w io.Writer, dataPath string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("回测结果报告")

	t.AppendRows([]table.Row{
		{"数据文件", dataPath},
		{"交易对", m.Symbol},
		{"回测周期", fmt.Sprintf("%s 到 %s",
			m.StartTime.Format("2006-01-02 15:04"), m.EndTime.Format("2006-01-02 15:04"))},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"初始资金", fmt.Sprintf("%.2f %s", m.InitialBalance, "USDT")},
		{"最终资金", fmt.Sprintf("%.2f %s", m.FinalBalance, "USDT")},
		{"总利润", fmt.Sprintf("%.2f", m.TotalProfit)},
		{"收益率", fmt.Sprintf("%.4f%%", m.ProfitPercentage)},
		{"已实现利润 (FIFO)", fmt.Sprintf("%.4f", m.RealizedProfit)},
		{"总手续费", fmt.Sprintf("%.4f", m.TotalFees)},
		{"最大回撤", fmt.Sprintf("%.4f%%", m.MaxDrawdown)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"总成交次数", m.TotalTrades},
		{"买入次数", m.Buys},
		{"卖出次数", m.Sells},
		{"期末现金", fmt.Sprintf("%.2f", m.EndingCash)},
		{"期末持仓", fmt.Sprintf("%.2f (市值 %.2f)", m.EndingInventory, m.EndingAssetValue)},
	})
	t.Render()
}

// RenderStatus 打印实盘模式下的周期性状态表。
func RenderStatus(w io.Writer, cfg *models.Config, pos *models.PositionSnapshot, mkt *models.MarketSnapshot, openOrders int) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(cfg.Symbol)

	rows := []table.Row{}
	if pos != nil {
		rows = append(rows,
			table.Row{"持仓", fmt.Sprintf("%.2f %s", pos.Position, cfg.BaseAsset)},
			table.Row{"成本均价", fmt.Sprintf("%.5f", pos.AverageCost)},
			table.Row{"计价余额", fmt.Sprintf("%.2f %s", pos.QuoteBalance, cfg.QuoteAsset)},
		)
	}
	if mkt != nil {
		rows = append(rows,
			table.Row{"中间价", fmt.Sprintf("%.5f", mkt.MidPrice)},
			table.Row{"买一/卖一", fmt.Sprintf("%.5f / %.5f", mkt.BestBid, mkt.BestAsk)},
			table.Row{"价差", fmt.Sprintf("%.2f bps", mkt.SpreadBps)},
		)
	}
	rows = append(rows, table.Row{"挂单数", openOrders})
	t.AppendRows(rows)
	t.Render()
}

func maxDrawdown(equityCurve []float64) float64 {
	if len(equityCurve) < 2 {
		return 0
	}
	peak := equityCurve[0]
	max := 0.0
	for _, equity := range equityCurve {
		if equity > peak {
			peak = equity
		}
		dd := (peak - equity) / peak
		if dd > max {
			max = dd
		}
	}
	return max
}
