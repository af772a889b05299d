// Package ledger maintains the bot's view of position size and
// volume-weighted average cost, reconstructed from the trade stream.
// The exchange balance is always the authoritative position; the ledger
// is a fee-aware cost-basis overlay on top of it.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"stablecoin-mm-bot/internal/models"
)

// ErrPositionMismatch is returned by Reconcile when the drift between the
// exchange-reported position and the tracked position exceeds the fatal
// threshold. Trading must halt: the ledger can no longer reason about
// inventory it did not observe changing.
var ErrPositionMismatch = errors.New("position mismatch beyond drift limit")

// State is a point-in-time snapshot of the ledger.
type State struct {
	Position    float64
	AverageCost float64
}

// Ledger tracks position and fee-inclusive average cost across a trade
// stream. It is owned by a single strategy loop and is not safe for
// concurrent use.
type Ledger struct {
	fee     float64
	epsilon float64 // floor-clear threshold, not an exact-zero compare

	position float64
	avgCost  float64
}

// New creates a ledger. epsilon is the floor-clearing threshold: once a
// sell leaves the position at or below it, both position and average cost
// are forced to zero so floating-point residue cannot drive stale
// average-cost signals.
func New(fee, epsilon float64) *Ledger {
	return &Ledger{fee: fee, epsilon: epsilon}
}

// Apply folds one trade into the ledger and returns the realized profit
// for sells (zero for buys). Buys fold the maker fee into the cost basis;
// sells deduct it from revenue.
func (l *Ledger) Apply(t models.Trade) float64 {
	switch t.Side {
	case models.Buy:
		priceWithFee := t.Price * (1 + l.fee)
		totalCost := l.avgCost*l.position + priceWithFee*t.Amount
		l.position += t.Amount
		if l.position > 0 {
			l.avgCost = totalCost / l.position
		}
		return 0
	case models.Sell:
		profit := (t.Price*(1-l.fee) - l.avgCost) * t.Amount
		l.position -= t.Amount
		if l.position <= l.epsilon {
			l.position = 0
			l.avgCost = 0
		}
		return profit
	}
	return 0
}

// Reconstruct rebuilds the ledger from scratch by replaying a trade
// stream in timestamp order. Returns the resulting state.
func (l *Ledger) Reconstruct(trades []models.Trade) State {
	l.position = 0
	l.avgCost = 0

	sorted := make([]models.Trade, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	for _, t := range sorted {
		l.Apply(t)
	}
	return l.Current()
}

// Current returns the ledger state.
func (l *Ledger) Current() State {
	return State{Position: l.position, AverageCost: l.avgCost}
}

// Position returns the tracked position. Advisory only: the exchange
// balance is the source of truth and is re-read every cycle.
func (l *Ledger) Position() float64 { return l.position }

// AverageCost returns the fee-inclusive average cost. Only meaningful
// while the position is non-zero.
func (l *Ledger) AverageCost() float64 { return l.avgCost }

// Breakeven returns the minimum sell price that realizes non-negative
// profit after the maker fee. Zero when there is no cost basis.
func (l *Ledger) Breakeven() float64 {
	if l.avgCost <= 0 {
		return 0
	}
	return l.avgCost / (1 - l.fee)
}

// Resync overwrites the tracked position with the exchange-reported one.
func (l *Ledger) Resync(position float64) {
	l.position = position
	if l.position <= l.epsilon {
		l.position = 0
		l.avgCost = 0
	}
}

// Reconcile compares the exchange-reported position against the tracked
// one. Small drift is silently resynced (exchange wins); drift beyond
// maxDrift is fatal and returns ErrPositionMismatch without touching the
// ledger, signalling an out-of-band state change such as a manual
// withdrawal or a missed fill.
func (l *Ledger) Reconcile(exchangePos, resyncEpsilon, maxDrift float64) (float64, error) {
	drift := math.Abs(exchangePos - l.position)
	if drift > maxDrift {
		return drift, fmt.Errorf("%w: exchange=%.4f tracked=%.4f drift=%.4f",
			ErrPositionMismatch, exchangePos, l.position, drift)
	}
	if drift > resyncEpsilon {
		// Exchange is truth: adopt its value and keep going.
		l.Resync(exchangePos)
	}
	return drift, nil
}
