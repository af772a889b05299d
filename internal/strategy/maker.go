package strategy

import (
	"fmt"
	"time"

	"stablecoin-mm-bot/internal/exchange"
	"stablecoin-mm-bot/internal/ledger"
	"stablecoin-mm-bot/internal/logger"
	"stablecoin-mm-bot/internal/models"
	"stablecoin-mm-bot/internal/pricing"
)

const (
	tradeFetchLimit = 50
	bookDepthLimit  = 20
	dedupCapacity   = 200
)

// MakerStrategy is the single-quote market-making cycle: detect fills,
// reconcile the ledger against the exchange balance, then tear down and
// replace quotes when the requote controller fires. One Tick is one
// full synchronous iteration.
type MakerStrategy struct {
	cfg     *models.Config
	ex      exchange.Exchange
	store   Recorder
	book    *ledger.Ledger
	dedup   *ledger.Dedup
	pricer  *pricing.Pricer
	sizer   *pricing.Sizer
	requote *RequoteController

	quoteBalance float64
}

func NewMakerStrategy(cfg *models.Config, ex exchange.Exchange, store Recorder) *MakerStrategy {
	return &MakerStrategy{
		cfg:     cfg,
		ex:      ex,
		store:   store,
		book:    ledger.New(cfg.MakerFee, cfg.PositionEpsilon),
		dedup:   ledger.NewDedup(dedupCapacity),
		pricer:  pricing.NewPricer(cfg),
		sizer:   pricing.NewSizer(cfg),
		requote: NewRequoteController(cfg),
	}
}

// Init reconstructs the cost basis from stored trades. Stored trade IDs
// seed the dedup set so historical fills are not double-applied.
func (s *MakerStrategy) Init() error {
	trades, err := s.store.Trades(0)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}
	for _, t := range trades {
		s.dedup.Add(t.ID)
	}
	st := s.book.Reconstruct(trades)
	logger.S().Infof("reconstructed from %d trades: position=%.2f avg=%.5f",
		len(trades), st.Position, st.AverageCost)
	s.store.RecordSystemEvent(models.SystemEvent{
		Timestamp: models.Now(),
		EventType: "bot_start",
		Severity:  "info",
		Message:   "market maker started",
		Details:   fmt.Sprintf("position=%.2f avg=%.5f", st.Position, st.AverageCost),
	})
	return nil
}

func (s *MakerStrategy) Tick() error {
	basePos, quoteBal, err := s.ex.FetchBalances()
	if err != nil {
		return fmt.Errorf("fetch balances: %w", err)
	}
	s.quoteBalance = quoteBal

	if err := s.captureFills(); err != nil {
		return err
	}

	// Fills first, then the balance check: a fill between the two calls
	// shows up as benign drift instead of an unexplained mismatch.
	drift, err := s.book.Reconcile(basePos, s.cfg.ResyncEpsilon, s.cfg.MaxPositionDrift)
	if err != nil {
		s.store.RecordSystemEvent(models.SystemEvent{
			Timestamp: models.Now(),
			EventType: "position_mismatch",
			Severity:  "critical",
			Message:   "halting: exchange position diverged from ledger",
			Details:   fmt.Sprintf("drift=%.2f limit=%.2f", drift, s.cfg.MaxPositionDrift),
		})
		return err
	}

	orderBook, err := s.ex.FetchOrderBook(bookDepthLimit)
	if err != nil {
		return fmt.Errorf("fetch order book: %w", err)
	}
	if orderBook.BestBid() == 0 || orderBook.BestAsk() == 0 {
		logger.S().Warnf("incomplete order book, skipping iteration")
		return nil
	}

	st := s.book.Current()
	now := models.Now()
	s.snapshot(orderBook, st, now)

	need, reason := s.requote.ShouldRequote(orderBook, st.Position, now)
	if !need {
		logger.S().Debugf("keeping orders: market stable (bid=%.5f ask=%.5f)",
			orderBook.BestBid(), orderBook.BestAsk())
		return nil
	}
	logger.S().Infof("requoting: %s | bid=%.5f ask=%.5f mid=%.5f spread=%.1f bps",
		reason, orderBook.BestBid(), orderBook.BestAsk(), orderBook.Mid(), orderBook.SpreadBps())

	if err := s.ex.CancelAllOrders(); err != nil {
		return fmt.Errorf("cancel all: %w", err)
	}
	s.pause(s.cfg.CancelSettleMs)

	quote := s.pricer.Prices(orderBook.Mid(), orderBook.BestAsk(), orderBook.BestBid(),
		orderBook.SpreadBps(), st)
	buySize, _ := s.sizer.Sizes(st)

	placed := 0
	if quote.HasBid {
		placed += s.placeBid(quote.BidPrice, buySize, st)
	}
	if quote.HasAsk && st.Position > s.cfg.PositionEpsilon {
		placed += s.placeTranches(quote.AskPrice, st)
	}

	s.requote.MarkQuoted(orderBook, st.Position, now)
	if placed > 0 {
		s.pause(s.cfg.PostPlaceWaitMs)
	}
	return nil
}

// captureFills applies trades not seen before to the ledger and stores
// them. Trades arrive oldest first.
func (s *MakerStrategy) captureFills() error {
	trades, err := s.ex.FetchMyTrades(tradeFetchLimit)
	if err != nil {
		return fmt.Errorf("fetch trades: %w", err)
	}
	for _, t := range trades {
		if !s.dedup.Add(t.ID) {
			continue
		}
		profit := s.book.Apply(t)
		s.store.RecordTrade(t)
		if t.Side == models.Buy {
			logger.S().Infof("buy filled: %.3f @ %.5f, new avg %.5f",
				t.Amount, t.Price, s.book.AverageCost())
		} else {
			logger.S().Infof("sell filled: %.3f @ %.5f, net profit $%.4f",
				t.Amount, t.Price, profit)
		}
	}
	return nil
}

func (s *MakerStrategy) snapshot(book *models.OrderBook, st ledger.State, now int64) {
	s.store.RecordMarketSnapshot(models.MarketSnapshot{
		Timestamp: now,
		MidPrice:  book.Mid(),
		BestBid:   book.BestBid(),
		BestAsk:   book.BestAsk(),
		SpreadBps: book.SpreadBps(),
		BidDepth5: models.Depth(book.Bids, 5),
		AskDepth5: models.Depth(book.Asks, 5),
	})
	s.store.RecordPositionSnapshot(models.PositionSnapshot{
		Timestamp:    now,
		Position:     st.Position,
		AverageCost:  st.AverageCost,
		QuoteBalance: s.quoteBalance,
	})
}

// placeBid places the buy order, subject to the lifecycle checks that
// sit above pure pricing: only-average-down mode, the position cap, the
// minimum notional bump, and the available balance.
func (s *MakerStrategy) placeBid(price, size float64, st ledger.State) int {
	fee := s.cfg.MakerFee

	if s.cfg.OnlyAverageDown && st.Position > 0 && st.AverageCost > 0 {
		withFee := price * (1 + fee)
		if withFee >= st.AverageCost {
			logger.S().Infof("skipping buy: price with fee %.5f >= avg %.5f (would raise average)",
				withFee, st.AverageCost)
			return 0
		}
	}

	if st.Position+size > s.cfg.MaxPosition {
		logger.S().Warnf("max position reached (%.2f/%.0f), skipping buy",
			st.Position, s.cfg.MaxPosition)
		return 0
	}

	if price*size < s.cfg.MinOrderNotional {
		size = pricing.RoundTo(s.cfg.MinOrderNotional*1.1/price, 3)
		logger.S().Infof("bumped buy size to %.3f to clear minimum notional %.2f",
			size, s.cfg.MinOrderNotional)
	}

	cost := price * size
	if cost > s.quoteBalance {
		logger.S().Warnf("insufficient quote balance: have %.2f, need %.2f", s.quoteBalance, cost)
		return 0
	}

	order, err := s.ex.CreateOrder(models.Buy, size, price)
	if err != nil {
		logger.S().Warnf("buy order rejected: %v", err)
		s.orderEvent("", "rejected", models.Buy, price, size, err.Error())
		return 0
	}
	s.orderEvent(order.ID, "placed", models.Buy, price, size, fmt.Sprintf("cost %.2f", cost))
	return 1
}

// placeTranches places the exit ladder for the held inventory.
func (s *MakerStrategy) placeTranches(askPrice float64, st ledger.State) int {
	placed := 0
	for _, tr := range s.sizer.Tranches(askPrice, st) {
		if tr.Price*tr.Size < s.cfg.MinOrderNotional || tr.Size < 1 {
			logger.S().Debugf("skipping tranche %d: value %.2f below minimum", tr.Index, tr.Price*tr.Size)
			continue
		}
		order, err := s.ex.CreateOrder(models.Sell, tr.Size, tr.Price)
		if err != nil {
			logger.S().Warnf("sell tranche %d rejected: %v", tr.Index, err)
			s.orderEvent("", "rejected", models.Sell, tr.Price, tr.Size, err.Error())
			continue
		}
		expected := (tr.Price*(1-s.cfg.MakerFee) - st.AverageCost) * tr.Size
		s.orderEvent(order.ID, "placed", models.Sell, tr.Price, tr.Size,
			fmt.Sprintf("tranche %d, +%.0f bps, profit $%.4f", tr.Index, tr.ImprovementBps, expected))
		placed++
	}
	return placed
}

func (s *MakerStrategy) orderEvent(orderID, event string, side models.Side, price, size float64, reason string) {
	s.store.RecordOrderEvent(models.OrderEvent{
		Timestamp: models.Now(),
		OrderID:   orderID,
		EventType: event,
		Side:      side,
		Price:     price,
		Amount:    size,
		Reason:    reason,
	})
}

func (s *MakerStrategy) pause(ms int) {
	if ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
}

// Shutdown cancels open orders best-effort and records the final state.
func (s *MakerStrategy) Shutdown() {
	if err := s.ex.CancelAllOrders(); err != nil {
		logger.S().Warnf("shutdown cancel-all failed: %v", err)
	}
	st := s.book.Current()
	s.store.RecordSystemEvent(models.SystemEvent{
		Timestamp: models.Now(),
		EventType: "bot_stop",
		Severity:  "info",
		Message:   "market maker stopped",
		Details:   fmt.Sprintf("position=%.2f avg=%.5f", st.Position, st.AverageCost),
	})
}
