// Package strategy contains the trading decision loops. Two strategies
// share the Exchange and Recorder surfaces: MakerStrategy runs the
// single-quote market-making cycle, GridStrategy runs the independent
// buy/sell pair ladder. Both are driven synchronously, one Tick at a
// time, by the runner in cmd/bot.
package strategy

import "stablecoin-mm-bot/internal/models"

// Strategy is one trading mode. Tick runs a full decision iteration;
// a returned error wrapping ledger.ErrPositionMismatch halts the bot,
// anything else is treated as transient.
type Strategy interface {
	Init() error
	Tick() error
	Shutdown()
}

// Recorder receives persistence writes from the strategies. Record*
// calls are fire-and-forget: implementations must never block the
// trading loop or surface storage failures into it. The read methods
// are only used during Init.
type Recorder interface {
	RecordTrade(models.Trade)
	RecordPositionSnapshot(models.PositionSnapshot)
	RecordMarketSnapshot(models.MarketSnapshot)
	RecordOrderEvent(models.OrderEvent)
	RecordSystemEvent(models.SystemEvent)
	RecordGridOrder(models.GridOrderRecord)
	SaveGridState(*models.GridState)

	Trades(limit int) ([]models.Trade, error)
	LoadGridState() (*models.GridState, error)
}
