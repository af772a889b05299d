// Package pricing computes quote prices and order sizes for the
// stablecoin pair. Pricing decisions are pure functions over the market
// top-of-book and the ledger state, so the whole decision surface is
// testable without an exchange.
package pricing

import (
	"fmt"
	"math"
	"strconv"

	"stablecoin-mm-bot/internal/ledger"
	"stablecoin-mm-bot/internal/logger"
	"stablecoin-mm-bot/internal/models"
)

// Pricer decides bid/ask quote prices. Either side may be withheld:
// the bid by inventory-skew gating or the peg-protection ceiling, the
// ask by the breakeven floor, and both by the minimum-spread gate.
type Pricer struct {
	cfg *models.Config
}

func NewPricer(cfg *models.Config) *Pricer {
	return &Pricer{cfg: cfg}
}

// InventoryRatio returns the clamped inventory ratio in [-1, 1].
// All downstream skew formulas operate on the clamped value, so an
// overshoot beyond max_position does not amplify the skew further.
func InventoryRatio(position float64, cfg *models.Config) float64 {
	if cfg.MaxPosition <= 0 {
		return 0
	}
	ratio := (position - cfg.TargetInventory) / cfg.MaxPosition
	return math.Max(-1, math.Min(1, ratio))
}

// Prices computes the quote for one cycle. Rules, in order:
//
//  1. can_average_down / can_sell_profit gates from the cost basis.
//  2. Spread floor: below min_spread_bps with no inventory action
//     available, withhold both sides.
//  3. Inventory skew: over-long beyond the skew threshold withholds the
//     bid unless the price improvement versus average cost clears the
//     average-down threshold.
//  4. Breakeven floor: never return an ask that would sell at a loss.
//
// The peg ceiling additionally withholds any bid at or above
// max_buy_price regardless of the rules above.
func (p *Pricer) Prices(mid, bestAsk, bestBid, spreadBps float64, st ledger.State) models.Quote {
	cfg := p.cfg
	fee := cfg.MakerFee

	q := models.Quote{
		BidPrice: bestBid,
		AskPrice: bestAsk,
		HasBid:   bestBid > 0,
		HasAsk:   bestAsk > 0,
	}

	var canAverageDown, canSellProfit bool
	var breakeven float64
	if st.Position > 0 && st.AverageCost > 0 {
		canAverageDown = bestBid*(1+fee) < st.AverageCost
		breakeven = st.AverageCost / (1 - fee)
		canSellProfit = bestAsk >= breakeven
	}

	// The spread floor only applies when no inventory action is on the
	// table; averaging down or taking profit is allowed into a tight book.
	if spreadBps < cfg.MinSpreadBps {
		if !canAverageDown && !canSellProfit {
			logger.S().Infof("spread too tight: %.2f bps < %.2f bps minimum, no inventory actions, skipping cycle",
				spreadBps, cfg.MinSpreadBps)
			return models.Quote{}
		}
		logger.S().Debugf("spread tight (%.2f bps) but inventory management available: avg_down=%v sell_profit=%v",
			spreadBps, canAverageDown, canSellProfit)
	}

	ratio := InventoryRatio(st.Position, cfg)
	if ratio > cfg.InventorySkewThreshold && q.HasBid {
		blockBuy := true
		if canAverageDown {
			buyPriceWithFee := q.BidPrice * (1 + fee)
			improvementBps := (st.AverageCost - buyPriceWithFee) / st.AverageCost * 10000
			if improvementBps >= cfg.AverageDownThresholdBps {
				blockBuy = false
				logger.S().Infof("high inventory (%.2f) but price %.1f bps below avg, allowing buy",
					st.Position, improvementBps)
			} else {
				logger.S().Debugf("high inventory (%.2f), improvement %.1f bps < %.1f bps threshold",
					st.Position, improvementBps, cfg.AverageDownThresholdBps)
			}
		}
		if blockBuy {
			logger.S().Infof("high inventory (%.2f/%.0f), withholding bid", st.Position, cfg.MaxPosition)
			q.HasBid = false
		}
	}

	// Peg protection: a stablecoin bid at or above the ceiling is never
	// acceptable, whatever the inventory state says.
	if q.HasBid && q.BidPrice >= cfg.MaxBuyPrice {
		logger.S().Infof("withholding bid: price %.5f >= peg ceiling %.5f", q.BidPrice, cfg.MaxBuyPrice)
		q.HasBid = false
	}

	if q.HasAsk && st.Position > 0 && st.AverageCost > 0 {
		if q.AskPrice >= breakeven {
			profit := (q.AskPrice*(1-fee) - st.AverageCost) * st.Position
			logger.S().Debugf("profitable sell: ask=%.5f >= breakeven=%.5f, expected=%.4f",
				q.AskPrice, breakeven, profit)
		} else {
			logger.S().Infof("waiting for profit: ask=%.5f < breakeven=%.5f (avg=%.5f, mid=%.5f)",
				q.AskPrice, breakeven, st.AverageCost, mid)
			q.HasAsk = false
		}
	}

	decimals := cfg.TickDecimals()
	if q.HasBid {
		q.BidPrice = RoundTo(q.BidPrice, decimals)
	}
	if q.HasAsk {
		q.AskPrice = RoundTo(q.AskPrice, decimals)
	}
	return q
}

// RoundTo rounds v to the given number of decimal places, normalizing
// through the string form to avoid binary-float residue.
func RoundTo(v float64, decimals int) float64 {
	out, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', decimals, 64), 64)
	return out
}

// FormatPrice renders a price at tick precision for order submission.
func FormatPrice(v float64, decimals int) string {
	return fmt.Sprintf("%.*f", decimals, v)
}
