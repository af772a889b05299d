package strategy

import "stablecoin-mm-bot/internal/models"

// mockRecorder captures persistence writes in memory. seedTrades feeds
// ledger reconstruction during Init.
type mockRecorder struct {
	seedTrades []models.Trade
	seedGrid   *models.GridState

	trades       []models.Trade
	posSnaps     []models.PositionSnapshot
	mktSnaps     []models.MarketSnapshot
	orderEvents  []models.OrderEvent
	systemEvents []models.SystemEvent
	gridOrders   []models.GridOrderRecord
	gridState    *models.GridState
}

func (m *mockRecorder) RecordTrade(t models.Trade) { m.trades = append(m.trades, t) }
func (m *mockRecorder) RecordPositionSnapshot(s models.PositionSnapshot) {
	m.posSnaps = append(m.posSnaps, s)
}
func (m *mockRecorder) RecordMarketSnapshot(s models.MarketSnapshot) {
	m.mktSnaps = append(m.mktSnaps, s)
}
func (m *mockRecorder) RecordOrderEvent(e models.OrderEvent) {
	m.orderEvents = append(m.orderEvents, e)
}
func (m *mockRecorder) RecordSystemEvent(e models.SystemEvent) {
	m.systemEvents = append(m.systemEvents, e)
}
func (m *mockRecorder) RecordGridOrder(r models.GridOrderRecord) {
	m.gridOrders = append(m.gridOrders, r)
}
func (m *mockRecorder) SaveGridState(g *models.GridState) { m.gridState = g }

func (m *mockRecorder) Trades(limit int) ([]models.Trade, error) { return m.seedTrades, nil }
func (m *mockRecorder) LoadGridState() (*models.GridState, error) {
	return m.seedGrid, nil
}
