package ledger

import "stablecoin-mm-bot/internal/models"

type lot struct {
	price  float64
	amount float64
}

// FIFOMatcher computes realized profit by matching each sell against
// the oldest open buy lots. Both legs carry the maker fee, so the
// result is net profit. Sells with no open lots contribute nothing.
type FIFOMatcher struct {
	fee  float64
	lots []lot
}

func NewFIFOMatcher(fee float64) *FIFOMatcher {
	return &FIFOMatcher{fee: fee}
}

// Add feeds one trade and returns the realized profit it produced.
func (m *FIFOMatcher) Add(t models.Trade) float64 {
	if t.Side == models.Buy {
		m.lots = append(m.lots, lot{price: t.Price, amount: t.Amount})
		return 0
	}

	var profit float64
	remaining := t.Amount
	for remaining > 0 && len(m.lots) > 0 {
		first := &m.lots[0]
		matched := remaining
		if first.amount < matched {
			matched = first.amount
		}
		buyCost := first.price * (1 + m.fee)
		sellRevenue := t.Price * (1 - m.fee)
		profit += matched * (sellRevenue - buyCost)

		remaining -= matched
		first.amount -= matched
		if first.amount <= 0 {
			m.lots = m.lots[1:]
		}
	}
	return profit
}

// Realized replays a trade sequence and returns the total net profit.
func Realized(trades []models.Trade, fee float64) float64 {
	m := NewFIFOMatcher(fee)
	var total float64
	for _, t := range trades {
		total += m.Add(t)
	}
	return total
}
