package strategy

import (
	"math"

	"stablecoin-mm-bot/internal/models"
)

// RequoteController decides whether the current quotes should be torn
// down and replaced. The baseline recorded by MarkQuoted is the market
// top-of-book at placement time, not the bot's own order prices, so
// drift is measured against what the market looked like when we quoted.
type RequoteController struct {
	cfg *models.Config

	initialized  bool
	lastBid      float64
	lastAsk      float64
	lastPosition float64
	quotedAt     int64
}

func NewRequoteController(cfg *models.Config) *RequoteController {
	return &RequoteController{cfg: cfg}
}

// ShouldRequote reports whether a new quote cycle is needed and why.
// Triggers, in priority order: no quote yet, position changed, either
// side of the top-of-book moved beyond the tick threshold, or the
// standing quote exceeded its maximum age.
func (r *RequoteController) ShouldRequote(book *models.OrderBook, position float64, now int64) (bool, string) {
	if !r.initialized {
		return true, "initial"
	}

	if r.cfg.RequoteOnPositionChange &&
		math.Abs(position-r.lastPosition) > r.cfg.ResyncEpsilon {
		return true, "position_changed"
	}

	threshold := float64(r.cfg.RequoteThresholdTicks) * r.cfg.TickSize
	if math.Abs(book.BestBid()-r.lastBid) > threshold ||
		math.Abs(book.BestAsk()-r.lastAsk) > threshold {
		return true, "price_moved"
	}

	if now-r.quotedAt > int64(r.cfg.MaxOrderAgeSeconds)*1000 {
		return true, "max_age"
	}

	return false, ""
}

// MarkQuoted records the post-placement baseline.
func (r *RequoteController) MarkQuoted(book *models.OrderBook, position float64, now int64) {
	r.initialized = true
	r.lastBid = book.BestBid()
	r.lastAsk = book.BestAsk()
	r.lastPosition = position
	r.quotedAt = now
}

// Reset forces a requote on the next cycle.
func (r *RequoteController) Reset() {
	r.initialized = false
}
