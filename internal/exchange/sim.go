package exchange

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"stablecoin-mm-bot/internal/models"
)

// SimExchange 实现了 Exchange 接口，模拟一个现货交易所，
// 用于回测和单元测试。挂单在价格穿越限价时以限价成交（Maker 假设），
// 手续费从计价货币余额中扣除。
type SimExchange struct {
	cfg *models.Config
	mu  sync.Mutex

	base  float64 // 基础资产余额
	quote float64 // 计价资产余额

	book    *models.OrderBook
	now     int64 // 当前模拟时间（毫秒）
	orders  map[string]*models.Order
	trades  []models.Trade
	nextID  int64
	fee     float64
	tick    float64

	TotalFees float64
}

// NewSimExchange 创建一个新的模拟交易所，起始资金为配置中的
// initial_balance（计价货币），基础资产余额为零。
func NewSimExchange(cfg *models.Config) *SimExchange {
	return &SimExchange{
		cfg:    cfg,
		quote:  cfg.InitialBalance,
		book:   &models.OrderBook{},
		orders: make(map[string]*models.Order),
		nextID: 1,
		fee:    cfg.MakerFee,
		tick:   cfg.TickSize,
	}
}

// SetBalances 直接设置余额，用于从既有仓位开始的回测和测试。
func (e *SimExchange) SetBalances(base, quote float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.base = base
	e.quote = quote
}

// SetBook 推进模拟行情到给定盘口，并检查所有挂单是否成交。
func (e *SimExchange) SetBook(book *models.OrderBook, timestamp int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = timestamp
	e.book = book
	if ask := book.BestAsk(); ask > 0 {
		e.crossAt(ask, models.Buy)
	}
	if bid := book.BestBid(); bid > 0 {
		e.crossAt(bid, models.Sell)
	}
}

// SetPrice 用一根K线推进模拟行情。按 开->低->高->收 的路径依次检查
// 成交，比仅用高低点更接近K线内部的真实价格行为。
func (e *SimExchange) SetPrice(open, high, low, close float64, timestamp int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = timestamp
	for _, p := range []float64{open, low, high, close} {
		e.crossAt(p, models.Buy)
		e.crossAt(p, models.Sell)
	}
	// 收盘后合成盘口：围绕收盘价各让一个tick
	e.book = &models.OrderBook{
		Bids: []models.PriceLevel{{Price: close - e.tick, Size: 1e6}},
		Asks: []models.PriceLevel{{Price: close + e.tick, Size: 1e6}},
	}
}

// crossAt 在给定价格点检查一侧的所有挂单。必须在持有锁的情况下调用。
func (e *SimExchange) crossAt(price float64, side models.Side) {
	ids := make([]string, 0, len(e.orders))
	for id := range e.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.ParseInt(ids[i], 10, 64)
		b, _ := strconv.ParseInt(ids[j], 10, 64)
		return a < b
	})

	for _, id := range ids {
		order := e.orders[id]
		if order.Side != side || order.Status != "NEW" {
			continue
		}
		// 买单在价格下穿限价时成交，卖单在价格上穿限价时成交
		if (side == models.Buy && price <= order.Price) ||
			(side == models.Sell && price >= order.Price) {
			e.fill(order)
		}
	}
}

// fill 以挂单价成交一笔订单并更新余额。必须在持有锁的情况下调用。
func (e *SimExchange) fill(order *models.Order) {
	order.Status = "FILLED"

	notional := order.Price * order.Size
	fee := notional * e.fee
	e.TotalFees += fee

	if order.Side == models.Buy {
		e.quote -= notional + fee
		e.base += order.Size
	} else {
		e.base -= order.Size
		e.quote += notional - fee
	}

	e.nextID++
	e.trades = append(e.trades, models.Trade{
		ID:        strconv.FormatInt(e.nextID, 10),
		OrderID:   order.ID,
		Timestamp: e.now,
		Side:      order.Side,
		Price:     order.Price,
		Amount:    order.Size,
		Cost:      notional,
	})
	delete(e.orders, order.ID)
}

// --- Exchange 接口实现 ---

func (e *SimExchange) FetchBalances() (float64, float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.base, e.quote, nil
}

func (e *SimExchange) FetchOrderBook(limit int) (*models.OrderBook, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cpy := &models.OrderBook{
		Bids: append([]models.PriceLevel(nil), e.book.Bids...),
		Asks: append([]models.PriceLevel(nil), e.book.Asks...),
	}
	return cpy, nil
}

func (e *SimExchange) FetchMyTrades(limit int) ([]models.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := 0
	if len(e.trades) > limit {
		start = len(e.trades) - limit
	}
	return append([]models.Trade(nil), e.trades[start:]...), nil
}

func (e *SimExchange) FetchOpenOrders() ([]models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	open := make([]models.Order, 0, len(e.orders))
	for _, o := range e.orders {
		open = append(open, *o)
	}
	sort.Slice(open, func(i, j int) bool { return open[i].ID < open[j].ID })
	return open, nil
}

func (e *SimExchange) CreateOrder(side models.Side, size, price float64) (*models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if size <= 0 || price <= 0 {
		return nil, fmt.Errorf("invalid order: size=%.3f price=%.5f", size, price)
	}
	if side == models.Buy {
		cost := price * size * (1 + e.fee)
		if cost > e.quote {
			return nil, fmt.Errorf("insufficient quote balance: need %.2f, have %.2f", cost, e.quote)
		}
	} else {
		var resting float64
		for _, o := range e.orders {
			if o.Side == models.Sell {
				resting += o.Size
			}
		}
		if size+resting > e.base {
			return nil, fmt.Errorf("insufficient base balance: need %.2f, have %.2f", size+resting, e.base)
		}
	}

	e.nextID++
	order := &models.Order{
		ID:        strconv.FormatInt(e.nextID, 10),
		Side:      side,
		Price:     price,
		Size:      size,
		Status:    "NEW",
		CreatedAt: e.now,
	}
	e.orders[order.ID] = order

	// 下单即检查是否立刻可成交
	if side == models.Buy {
		if ask := e.book.BestAsk(); ask > 0 && ask <= price {
			e.fill(order)
		}
	} else {
		if bid := e.book.BestBid(); bid > 0 && bid >= price {
			e.fill(order)
		}
	}

	cpy := *order
	return &cpy, nil
}

func (e *SimExchange) CancelOrder(orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	order, ok := e.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	order.Status = "CANCELED"
	delete(e.orders, orderID)
	return nil
}

func (e *SimExchange) CancelAllOrders() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, order := range e.orders {
		order.Status = "CANCELED"
		delete(e.orders, id)
	}
	return nil
}

// Equity 返回以当前中间价折算的账户总权益，用于回测汇总。
func (e *SimExchange) Equity() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	mid := e.book.Mid()
	if mid == 0 {
		mid = 1
	}
	return e.quote + e.base*mid
}

// Trades 返回全部成交记录的只读副本。
func (e *SimExchange) Trades() []models.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.Trade(nil), e.trades...)
}
