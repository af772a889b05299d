package exchange

import "stablecoin-mm-bot/internal/models"

// Exchange 定义了策略层与交易所交互所需的全部操作。
// 这使得做市策略可以在真实交易、回测与单元测试之间切换。
type Exchange interface {
	// FetchBalances 返回基础资产与计价资产的可用余额。
	// 基础资产余额是仓位对账的权威来源。
	FetchBalances() (base float64, quote float64, err error)
	FetchOrderBook(limit int) (*models.OrderBook, error)
	// FetchMyTrades 返回最近的成交记录，按时间升序。
	FetchMyTrades(limit int) ([]models.Trade, error)
	FetchOpenOrders() ([]models.Order, error)
	CreateOrder(side models.Side, size, price float64) (*models.Order, error)
	CancelOrder(orderID string) error
	CancelAllOrders() error
}
