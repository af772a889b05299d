package pricing

import (
	"math"

	"stablecoin-mm-bot/internal/ledger"
	"stablecoin-mm-bot/internal/logger"
	"stablecoin-mm-bot/internal/models"
)

// Positions at or below this many units are exited in a single tranche;
// splitting them any further produces orders too small to place.
const singleTrancheLimit = 50.0

// Fraction of the position a full exit targets. The remaining ~1% covers
// balance-precision dust so the exchange does not reject the order.
const exitReserve = 0.99

// Sizer computes inventory-skewed order sizes and the tranche schedule
// for incremental exits.
type Sizer struct {
	cfg *models.Config
}

func NewSizer(cfg *models.Config) *Sizer {
	return &Sizer{cfg: cfg}
}

// Sizes returns (buySize, sellSize), skewed opposite the inventory:
// the longer the book, the smaller the buys and the larger the sells.
// Each side is floored at 20% of the base order size so a heavily
// skewed quote never disappears entirely.
func (s *Sizer) Sizes(st ledger.State) (float64, float64) {
	ratio := InventoryRatio(st.Position, s.cfg)

	buySkew := 1 - ratio*s.cfg.SkewFactor*0.5
	sellSkew := 1 + ratio*s.cfg.SkewFactor*0.5

	buySize := s.cfg.OrderSize * math.Max(0.2, buySkew)
	sellSize := s.cfg.OrderSize * math.Max(0.2, sellSkew)

	return RoundTo(buySize, 3), RoundTo(sellSize, 3)
}

// Tranches builds the exit schedule for the current position. Small
// positions (or incremental selling disabled) exit in a single tranche.
// Otherwise the position splits into sell_tranches equal slices priced at
// ask * (1 + i*tranche_spread_bps/10000), skipping any slice that would
// land below breakeven; the last slice absorbs rounding remainder so the
// allocated total stays at ~99% of the position.
func (s *Sizer) Tranches(askPrice float64, st ledger.State) []models.Tranche {
	cfg := s.cfg
	decimals := cfg.TickDecimals()

	if !cfg.IncrementalSell || st.Position <= singleTrancheLimit {
		size := RoundTo(st.Position*exitReserve, 3)
		if size <= 0 {
			return nil
		}
		return []models.Tranche{{
			Price: RoundTo(askPrice, decimals),
			Size:  size,
			Index: 0,
		}}
	}

	var breakeven float64
	if st.AverageCost > 0 {
		breakeven = st.AverageCost / (1 - cfg.MakerFee)
	}
	baseSize := RoundTo(st.Position/float64(cfg.SellTranches), 3)
	logger.S().Debugf("incremental exit: %d tranches of ~%.2f each", cfg.SellTranches, baseSize)

	var tranches []models.Tranche
	var allocated float64
	for i := 0; i < cfg.SellTranches; i++ {
		improvementBps := float64(i) * cfg.TrancheSpreadBps
		price := askPrice * (1 + improvementBps/10000)

		// Never schedule a loss-making slice.
		if price < breakeven {
			continue
		}

		size := baseSize
		if i == cfg.SellTranches-1 {
			size = RoundTo(st.Position*exitReserve-allocated, 3)
		}
		allocated += size

		if size >= 1 {
			tranches = append(tranches, models.Tranche{
				Price:          RoundTo(price, decimals),
				Size:           size,
				Index:          i,
				ImprovementBps: improvementBps,
			})
		}
	}
	return tranches
}
