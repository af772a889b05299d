package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/jxskiss/base62"

	"stablecoin-mm-bot/internal/exchange"
	"stablecoin-mm-bot/internal/ledger"
	"stablecoin-mm-bot/internal/logger"
	"stablecoin-mm-bot/internal/models"
	"stablecoin-mm-bot/internal/pricing"
)

// GridStrategy runs a ladder of independent buy/sell pair levels. Each
// level is its own small state machine: its buy fills, a paired sell
// goes out at the level's profit target, and when the sell fills the
// level books its profit and recycles back to a fresh buy. The whole
// grid rebuilds only when the mid drifts too far from the center it was
// built around.
type GridStrategy struct {
	cfg   *models.Config
	ex    exchange.Exchange
	store Recorder

	grid     *models.GridState
	dedup    *ledger.Dedup
	position float64

	quoteBalance float64
}

func NewGridStrategy(cfg *models.Config, ex exchange.Exchange, store Recorder) *GridStrategy {
	return &GridStrategy{
		cfg:   cfg,
		ex:    ex,
		store: store,
		dedup: ledger.NewDedup(dedupCapacity),
	}
}

func newGridID() string {
	return "grid_" + string(base62.FormatInt(models.Now()))
}

// Init resumes the last active grid from storage when one exists and
// seeds the dedup set with stored trade IDs.
func (s *GridStrategy) Init() error {
	trades, err := s.store.Trades(0)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}
	for _, t := range trades {
		s.dedup.Add(t.ID)
	}

	grid, err := s.store.LoadGridState()
	if err != nil {
		return fmt.Errorf("load grid state: %w", err)
	}
	if grid != nil && grid.Active {
		s.grid = grid
		logger.S().Infof("resumed grid %s: center=%.5f, %d levels",
			grid.ID, grid.CenterPrice, len(grid.Levels))
	}

	s.store.RecordSystemEvent(models.SystemEvent{
		Timestamp: models.Now(),
		EventType: "bot_start",
		Severity:  "info",
		Message:   "grid bot started",
		Details: fmt.Sprintf("levels=%d size=%.1f spacing=%.1fbps profit=%.1fbps",
			s.cfg.GridLevels, s.cfg.GridSize, s.cfg.GridSpacingBps, s.cfg.ProfitTargetBps),
	})
	return nil
}

func (s *GridStrategy) Tick() error {
	basePos, quoteBal, err := s.ex.FetchBalances()
	if err != nil {
		return fmt.Errorf("fetch balances: %w", err)
	}
	s.quoteBalance = quoteBal

	// The exchange balance is the position of record.
	if diff := math.Abs(basePos - s.position); diff > s.cfg.ResyncEpsilon {
		logger.S().Infof("position sync: exchange=%.2f tracked=%.2f diff=%.2f",
			basePos, s.position, diff)
	}
	s.position = basePos
	s.store.RecordPositionSnapshot(models.PositionSnapshot{
		Timestamp:    models.Now(),
		Position:     s.position,
		QuoteBalance: quoteBal,
	})

	if err := s.checkFills(); err != nil {
		return err
	}

	book, err := s.ex.FetchOrderBook(bookDepthLimit)
	if err != nil {
		return fmt.Errorf("fetch order book: %w", err)
	}
	if book.BestBid() == 0 || book.BestAsk() == 0 {
		logger.S().Warnf("incomplete order book, skipping iteration")
		return nil
	}
	mid := book.Mid()

	switch {
	case s.grid == nil || !s.grid.Active:
		logger.S().Infof("no active grid, initializing at mid %.5f", mid)
		s.initGrid(mid)
		s.placeLevelOrders()
	case s.shouldRebalance(mid):
		s.rebalance(mid)
	default:
		placed := s.placeLevelOrders()
		sum := s.grid.Summary(s.position)
		logger.S().Infof("grid status: %d/%d filled, %d completed, $%.2f profit, %d orders placed",
			sum.BuyFilled, sum.TotalLevels, sum.Completed, sum.TotalProfit, placed)
	}

	s.store.SaveGridState(s.grid)
	return nil
}

// initGrid builds a fresh ladder symmetric around the mid, with the
// center capped at the peg-protection ceiling.
func (s *GridStrategy) initGrid(mid float64) {
	if mid > s.cfg.GridMaxBuyPrice {
		logger.S().Warnf("mid %.5f above max %.5f, capping center price", mid, s.cfg.GridMaxBuyPrice)
		mid = s.cfg.GridMaxBuyPrice
	}

	decimals := s.cfg.TickDecimals()
	half := s.cfg.GridLevels / 2

	grid := &models.GridState{
		ID:          newGridID(),
		CenterPrice: mid,
		CreatedAt:   models.Now(),
		Active:      true,
	}

	for i := -half; i < half; i++ {
		buyPrice := mid * (1 + float64(i)*s.cfg.GridSpacingBps/10000)
		if buyPrice > s.cfg.GridMaxBuyPrice {
			logger.S().Infof("skipping level %d: buy price %.5f > %.5f",
				i, buyPrice, s.cfg.GridMaxBuyPrice)
			continue
		}
		sellPrice := buyPrice * (1 + s.cfg.ProfitTargetBps/10000)
		grid.Levels = append(grid.Levels, &models.GridLevel{
			Index:     i + half,
			BuyPrice:  pricing.RoundTo(buyPrice, decimals),
			SellPrice: pricing.RoundTo(sellPrice, decimals),
			Size:      s.cfg.GridSize,
			Status:    models.LevelPending,
		})
	}

	s.grid = grid
	logger.S().Infof("grid %s initialized: %d levels centered at %.5f",
		grid.ID, len(grid.Levels), mid)
}

func (s *GridStrategy) shouldRebalance(mid float64) bool {
	if s.grid.CenterPrice == 0 {
		return true
	}
	moveBps := math.Abs(mid-s.grid.CenterPrice) / s.grid.CenterPrice * 10000
	if moveBps > s.cfg.GridRebalanceThresholdBps {
		logger.S().Warnf("grid rebalance needed: price moved %.1f bps from center (%.5f -> %.5f)",
			moveBps, s.grid.CenterPrice, mid)
		return true
	}
	return false
}

// rebalance tears down the current grid and rebuilds it around the new
// mid. Levels holding inventory lose their resting sells here; the new
// grid's fills reacquire the exit.
func (s *GridStrategy) rebalance(mid float64) {
	logger.S().Infof("rebalancing grid %s", s.grid.ID)

	if err := s.ex.CancelAllOrders(); err != nil {
		logger.S().Warnf("rebalance cancel-all failed: %v", err)
	}
	if s.cfg.CancelSettleMs > 0 {
		time.Sleep(time.Duration(s.cfg.CancelSettleMs) * time.Millisecond)
	}

	sum := s.grid.Summary(s.position)
	logger.S().Infof("old grid performance: %d completed, $%.2f profit", sum.Completed, sum.TotalProfit)
	s.grid.Active = false
	s.store.SaveGridState(s.grid)

	s.initGrid(mid)
	s.placeLevelOrders()
}

// placeLevelOrders walks the ladder and places whatever each level's
// state is missing: buys for pending and recycled levels, exits for
// filled buys whose paired sell failed to place earlier.
func (s *GridStrategy) placeLevelOrders() int {
	placed := 0
	balance := s.quoteBalance

	for _, level := range s.grid.Levels {
		switch level.Status {
		case models.LevelPending, models.LevelCompleted:
			if s.position >= s.cfg.MaxGridPosition {
				logger.S().Warnf("max grid position reached (%.2f/%.0f), skipping remaining buys",
					s.position, s.cfg.MaxGridPosition)
				return placed
			}
			if level.BuyPrice > s.cfg.GridMaxBuyPrice {
				level.Status = models.LevelIdle
				continue
			}
			needed := level.BuyPrice * level.Size
			if needed < s.cfg.GridMinOrderValue {
				logger.S().Debugf("skipping level %d: order value %.2f below minimum %.2f",
					level.Index, needed, s.cfg.GridMinOrderValue)
				continue
			}
			if needed > balance {
				logger.S().Debugf("skipping level %d: insufficient balance (need %.2f, have %.2f)",
					level.Index, needed, balance)
				continue
			}

			order, err := s.ex.CreateOrder(models.Buy, level.Size, level.BuyPrice)
			if err != nil {
				logger.S().Warnf("level %d buy rejected: %v", level.Index, err)
				continue
			}
			level.BuyOrderID = order.ID
			level.SellOrderID = ""
			level.Status = models.LevelBuyPlaced
			level.BuyFilledAt = 0
			level.SellFilledAt = 0
			balance -= needed
			placed++
			logger.S().Infof("level %d buy placed: %.1f @ %.5f", level.Index, level.Size, level.BuyPrice)

			// Optimistic paired sell: fails harmlessly without inventory.
			if s.cfg.GridPlaceBothSides {
				if sell, err := s.ex.CreateOrder(models.Sell, level.Size, level.SellPrice); err == nil {
					level.SellOrderID = sell.ID
					placed++
				}
			}
			s.recordLevel(level)

		case models.LevelBuyFilled:
			if level.SellOrderID != "" {
				continue
			}
			if s.placeExit(level) {
				placed++
			}
		}
	}
	return placed
}

// placeExit places the paired sell for a level whose buy has filled.
func (s *GridStrategy) placeExit(level *models.GridLevel) bool {
	order, err := s.ex.CreateOrder(models.Sell, level.Size, level.SellPrice)
	if err != nil {
		logger.S().Warnf("level %d paired sell rejected: %v", level.Index, err)
		return false
	}
	level.SellOrderID = order.ID
	level.Status = models.LevelSellPlaced

	fee := s.cfg.MakerFee
	expected := (level.SellPrice*(1-fee) - level.BuyPrice*(1+fee)) * level.Size
	logger.S().Infof("level %d paired sell placed: %.1f @ %.5f (target profit $%.4f)",
		level.Index, level.Size, level.SellPrice, expected)
	s.recordLevel(level)
	return true
}

// checkFills matches new trades to level order IDs and advances the
// level state machines.
func (s *GridStrategy) checkFills() error {
	if s.grid == nil {
		return nil
	}
	trades, err := s.ex.FetchMyTrades(tradeFetchLimit)
	if err != nil {
		return fmt.Errorf("fetch trades: %w", err)
	}

	for _, t := range trades {
		if !s.dedup.Add(t.ID) {
			continue
		}
		s.store.RecordTrade(t)

		for _, level := range s.grid.Levels {
			if level.BuyOrderID != "" && (t.OrderID == level.BuyOrderID || t.ID == level.BuyOrderID) {
				s.handleBuyFill(level, t)
				break
			}
			if level.SellOrderID != "" && (t.OrderID == level.SellOrderID || t.ID == level.SellOrderID) {
				s.handleSellFill(level, t)
				break
			}
		}
	}
	return nil
}

func (s *GridStrategy) handleBuyFill(level *models.GridLevel, t models.Trade) {
	level.BuyFilledAt = t.Timestamp
	level.Status = models.LevelBuyFilled
	s.position += t.Amount

	logger.S().Infof("grid buy filled L%d: %.3f @ %.5f", level.Index, t.Amount, t.Price)
	s.recordLevel(level)

	if level.SellOrderID == "" {
		s.placeExit(level)
	} else {
		level.Status = models.LevelSellPlaced
	}
}

func (s *GridStrategy) handleSellFill(level *models.GridLevel, t models.Trade) {
	fee := s.cfg.MakerFee
	level.SellFilledAt = t.Timestamp
	level.Status = models.LevelCompleted
	level.Completed++
	s.position -= t.Amount

	profit := (t.Price*(1-fee) - level.BuyPrice*(1+fee)) * t.Amount
	level.Profit += profit
	logger.S().Infof("grid sell filled L%d: %.3f @ %.5f, profit $%.4f",
		level.Index, t.Amount, t.Price, profit)
	s.recordLevel(level)

	// A level only recycles after its sell completes, never straight
	// after the buy fills.
	if level.BuyPrice > s.cfg.GridMaxBuyPrice {
		logger.S().Warnf("not recycling L%d: price %.5f > %.5f",
			level.Index, level.BuyPrice, s.cfg.GridMaxBuyPrice)
		level.Status = models.LevelIdle
		return
	}

	order, err := s.ex.CreateOrder(models.Buy, level.Size, level.BuyPrice)
	if err != nil {
		logger.S().Warnf("level %d recycle buy rejected: %v", level.Index, err)
		return
	}
	level.BuyOrderID = order.ID
	level.SellOrderID = ""
	level.Status = models.LevelBuyPlaced
	level.BuyFilledAt = 0
	level.SellFilledAt = 0
	logger.S().Infof("level %d recycled: new buy %.1f @ %.5f", level.Index, level.Size, level.BuyPrice)
	s.recordLevel(level)
}

func (s *GridStrategy) recordLevel(level *models.GridLevel) {
	s.store.RecordGridOrder(models.GridOrderRecord{
		GridID:       s.grid.ID,
		LevelIndex:   level.Index,
		BuyOrderID:   level.BuyOrderID,
		SellOrderID:  level.SellOrderID,
		BuyPrice:     level.BuyPrice,
		SellPrice:    level.SellPrice,
		Size:         level.Size,
		Status:       level.Status,
		BuyFilledAt:  level.BuyFilledAt,
		SellFilledAt: level.SellFilledAt,
		Profit:       level.Profit,
		UpdatedAt:    models.Now(),
	})
}

// Shutdown cancels open orders and persists the final grid state.
func (s *GridStrategy) Shutdown() {
	if err := s.ex.CancelAllOrders(); err != nil {
		logger.S().Warnf("shutdown cancel-all failed: %v", err)
	}
	details := ""
	if s.grid != nil {
		sum := s.grid.Summary(s.position)
		details = fmt.Sprintf("completed=%d profit=%.2f position=%.2f",
			sum.Completed, sum.TotalProfit, s.position)
		s.store.SaveGridState(s.grid)
	}
	s.store.RecordSystemEvent(models.SystemEvent{
		Timestamp: models.Now(),
		EventType: "bot_stop",
		Severity:  "info",
		Message:   "grid bot stopped",
		Details:   details,
	})
}
