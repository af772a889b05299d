package exchange

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	"stablecoin-mm-bot/internal/logger"
	"stablecoin-mm-bot/internal/models"
)

const requestTimeout = 10 * time.Second

// BinanceExchange is the live spot adapter. All signing and transport is
// delegated to the SDK; this layer only converts between SDK types and
// the internal model. A websocket book-ticker feed keeps a fresh
// top-of-book that overlays the REST depth when available.
type BinanceExchange struct {
	client   *binance.Client
	cfg      *models.Config
	feed     *BookTickerFeed
	decimals int
}

func NewBinanceExchange(cfg *models.Config, apiKey, secretKey string) *BinanceExchange {
	binance.UseTestnet = cfg.IsTestnet
	ex := &BinanceExchange{
		client:   binance.NewClient(apiKey, secretKey),
		cfg:      cfg,
		decimals: cfg.TickDecimals(),
	}
	ex.feed = NewBookTickerFeed(cfg.Symbol, cfg.IsTestnet)
	ex.feed.Start()
	return ex
}

func (e *BinanceExchange) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func (e *BinanceExchange) FetchBalances() (float64, float64, error) {
	ctx, cancel := e.ctx()
	defer cancel()

	account, err := e.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch account: %w", err)
	}

	var base, quote float64
	for _, b := range account.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		switch b.Asset {
		case e.cfg.BaseAsset:
			base = free + locked
		case e.cfg.QuoteAsset:
			quote = free
		}
	}
	return base, quote, nil
}

func (e *BinanceExchange) FetchOrderBook(limit int) (*models.OrderBook, error) {
	ctx, cancel := e.ctx()
	defer cancel()

	res, err := e.client.NewDepthService().Symbol(e.cfg.Symbol).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch depth: %w", err)
	}

	book := &models.OrderBook{
		Bids: make([]models.PriceLevel, 0, len(res.Bids)),
		Asks: make([]models.PriceLevel, 0, len(res.Asks)),
	}
	for _, b := range res.Bids {
		p, _ := strconv.ParseFloat(b.Price, 64)
		q, _ := strconv.ParseFloat(b.Quantity, 64)
		book.Bids = append(book.Bids, models.PriceLevel{Price: p, Size: q})
	}
	for _, a := range res.Asks {
		p, _ := strconv.ParseFloat(a.Price, 64)
		q, _ := strconv.ParseFloat(a.Quantity, 64)
		book.Asks = append(book.Asks, models.PriceLevel{Price: p, Size: q})
	}

	// The stream is usually ahead of the REST snapshot; when fresh,
	// its top replaces level zero on both sides.
	if bid, ask, ok := e.feed.Top(); ok {
		if len(book.Bids) > 0 && bid.Price > 0 {
			book.Bids[0] = bid
		}
		if len(book.Asks) > 0 && ask.Price > 0 {
			book.Asks[0] = ask
		}
	}
	return book, nil
}

func (e *BinanceExchange) FetchMyTrades(limit int) ([]models.Trade, error) {
	ctx, cancel := e.ctx()
	defer cancel()

	raw, err := e.client.NewListTradesService().Symbol(e.cfg.Symbol).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch my trades: %w", err)
	}

	trades := make([]models.Trade, 0, len(raw))
	for _, t := range raw {
		price, _ := strconv.ParseFloat(t.Price, 64)
		qty, _ := strconv.ParseFloat(t.Quantity, 64)
		side := models.Sell
		if t.IsBuyer {
			side = models.Buy
		}
		trades = append(trades, models.Trade{
			ID:        strconv.FormatInt(t.ID, 10),
			OrderID:   strconv.FormatInt(t.OrderID, 10),
			Timestamp: t.Time,
			Side:      side,
			Price:     price,
			Amount:    qty,
			Cost:      price * qty,
		})
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].Timestamp < trades[j].Timestamp })
	return trades, nil
}

func (e *BinanceExchange) FetchOpenOrders() ([]models.Order, error) {
	ctx, cancel := e.ctx()
	defer cancel()

	raw, err := e.client.NewListOpenOrdersService().Symbol(e.cfg.Symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch open orders: %w", err)
	}

	orders := make([]models.Order, 0, len(raw))
	for _, o := range raw {
		price, _ := strconv.ParseFloat(o.Price, 64)
		qty, _ := strconv.ParseFloat(o.OrigQuantity, 64)
		side := models.Sell
		if o.Side == binance.SideTypeBuy {
			side = models.Buy
		}
		orders = append(orders, models.Order{
			ID:        strconv.FormatInt(o.OrderID, 10),
			ClientID:  o.ClientOrderID,
			Side:      side,
			Price:     price,
			Size:      qty,
			Status:    string(o.Status),
			CreatedAt: o.Time,
		})
	}
	return orders, nil
}

func (e *BinanceExchange) CreateOrder(side models.Side, size, price float64) (*models.Order, error) {
	ctx, cancel := e.ctx()
	defer cancel()

	sdkSide := binance.SideTypeSell
	if side == models.Buy {
		sdkSide = binance.SideTypeBuy
	}

	res, err := e.client.NewCreateOrderService().
		Symbol(e.cfg.Symbol).
		Side(sdkSide).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(strconv.FormatFloat(size, 'f', 3, 64)).
		Price(strconv.FormatFloat(price, 'f', e.decimals, 64)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("create %s order %.3f@%.*f: %w", side, size, e.decimals, price, err)
	}

	logger.S().Infof("placed %s %.3f @ %.*f (order %d)", side, size, e.decimals, price, res.OrderID)
	return &models.Order{
		ID:        strconv.FormatInt(res.OrderID, 10),
		ClientID:  res.ClientOrderID,
		Side:      side,
		Price:     price,
		Size:      size,
		Status:    string(res.Status),
		CreatedAt: res.TransactTime,
	}, nil
}

func (e *BinanceExchange) CancelOrder(orderID string) error {
	ctx, cancel := e.ctx()
	defer cancel()

	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad order id %q: %w", orderID, err)
	}
	if _, err := e.client.NewCancelOrderService().Symbol(e.cfg.Symbol).OrderID(id).Do(ctx); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

// CancelAllOrders 撤销该交易对下所有挂单。交易所在无挂单时会报错，
// 因此先查询再撤销。
func (e *BinanceExchange) CancelAllOrders() error {
	open, err := e.FetchOpenOrders()
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return nil
	}

	ctx, cancel := e.ctx()
	defer cancel()
	if _, err := e.client.NewCancelOpenOrdersService().Symbol(e.cfg.Symbol).Do(ctx); err != nil {
		return fmt.Errorf("cancel all orders: %w", err)
	}
	logger.S().Infof("cancelled %d open orders", len(open))
	return nil
}

// Close 停止行情推送。
func (e *BinanceExchange) Close() {
	e.feed.Close()
}
