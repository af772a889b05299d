// Package dashboard exposes a read-only HTTP API over the persistence
// layer so the bot can be monitored without touching its trading loop.
package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stablecoin-mm-bot/internal/ledger"
	"stablecoin-mm-bot/internal/logger"
	"stablecoin-mm-bot/internal/models"
	"stablecoin-mm-bot/internal/storage"
)

const (
	recentTradeLimit = 50
	statsTradeLimit  = 100
	eventLimit       = 50
)

type Server struct {
	store *storage.Store
	cfg   *models.Config
	srv   *http.Server
}

func New(store *storage.Store, cfg *models.Config) *Server {
	return &Server{store: store, cfg: cfg}
}

// Router builds the gin engine. Split out from Start so tests can drive
// it with httptest.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/stats", s.handleStats)
	api.GET("/trades", s.handleTrades)
	api.GET("/events", s.handleEvents)
	api.GET("/grid", s.handleGrid)
	return r
}

// Start runs the API server until Stop is called. Errors other than a
// clean shutdown are logged, never propagated to the trading loop.
func (s *Server) Start(addr string) {
	s.srv = &http.Server{Addr: addr, Handler: s.Router()}
	go func() {
		logger.S().Infof("看板 API 已启动: http://%s", addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.S().Errorf("看板 API 异常退出: %v", err)
		}
	}()
}

func (s *Server) Stop() {
	if s.srv != nil {
		_ = s.srv.Close()
	}
}

func (s *Server) handleStats(c *gin.Context) {
	trades, err := s.store.Trades(statsTradeLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var buys, sells int
	var volume float64
	var lastUpdate int64
	for _, t := range trades {
		if t.Side == models.Buy {
			buys++
		} else {
			sells++
		}
		volume += t.Cost
		if t.Timestamp > lastUpdate {
			lastUpdate = t.Timestamp
		}
	}

	stats := gin.H{
		"symbol":          s.cfg.Symbol,
		"total_trades":    len(trades),
		"total_buys":      buys,
		"total_sells":     sells,
		"total_volume":    volume,
		"realized_profit": ledger.Realized(trades, s.cfg.MakerFee),
		"last_update":     lastUpdate,
	}

	if snap, err := s.store.LatestPositionSnapshot(); err == nil && snap != nil {
		stats["position"] = snap.Position
		stats["average_cost"] = snap.AverageCost
		stats["quote_balance"] = snap.QuoteBalance
		if snap.Timestamp > lastUpdate {
			stats["last_update"] = snap.Timestamp
		}
	}

	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleTrades(c *gin.Context) {
	trades, err := s.store.Trades(recentTradeLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// Newest first for display.
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleEvents(c *gin.Context) {
	orderEvents, err := s.store.OrderEvents(eventLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	systemEvents, err := s.store.SystemEvents(eventLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_events":  orderEvents,
		"system_events": systemEvents,
	})
}

func (s *Server) handleGrid(c *gin.Context) {
	grid, err := s.store.LoadGridState()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if grid == nil {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}

	completed, profit, err := s.store.GridPerformance(grid.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"active":           grid.Active,
		"grid":             grid,
		"completed_trades": completed,
		"total_profit":     profit,
	})
}
