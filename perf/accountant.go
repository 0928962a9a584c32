// Package perf aggregates the equity curve and summary statistics from
// the stream of fills. It derives everything from the fill ledger, so
// replaying the same ledger reproduces the same curve.
package perf

import (
	"fmt"
	"math"
	"time"

	"github.com/tradeforge/cryptobt/broker"
	"github.com/tradeforge/cryptobt/journal"
)

type Accountant struct {
	initial float64

	// signed inventory for the single tracked instrument
	qty   float64
	avgPx float64

	realized float64 // net of fees
	fees     float64

	// per-round-trip tracking
	tradeStartRealized float64
	trades, wins       int
	losses             int
	grossProfit        float64
	grossLoss          float64

	peak     float64
	lastTime time.Time
	curve    []journal.EquitySnapshot

	prevEquity float64
	returns    []float64
}

func NewAccountant(initialBalance float64) *Accountant {
	return &Accountant{
		initial:    initialBalance,
		peak:       initialBalance,
		prevEquity: initialBalance,
	}
}

// RecordFill folds one execution into the inventory. Fills that reduce
// or flip the position realize P/L against the average entry price;
// fees always reduce realized P/L immediately.
func (a *Accountant) RecordFill(f broker.Fill) error {
	if f.Quantity <= 0 {
		return fmt.Errorf("perf: fill quantity %v must be positive", f.Quantity)
	}

	signed := float64(f.Side) * f.Quantity
	wasFlat := a.qty == 0
	flipped := false

	if wasFlat || sameSign(a.qty, signed) {
		// opening or adding
		notional := a.avgPx*math.Abs(a.qty) + f.Price*f.Quantity
		a.qty += signed
		a.avgPx = notional / math.Abs(a.qty)
	} else {
		closeQty := math.Min(math.Abs(signed), math.Abs(a.qty))
		dir := sign(a.qty)
		a.realized += (f.Price - a.avgPx) * dir * closeQty
		a.qty += signed
		switch {
		case a.qty == 0:
			a.avgPx = 0
		case !sameSign(a.qty, dir):
			// flipped through flat: remainder opens at the fill price
			a.avgPx = f.Price
			flipped = true
		}
	}

	a.realized -= f.Fee
	a.fees += f.Fee

	if !wasFlat && (a.qty == 0 || flipped) {
		a.closeRoundTrip()
	}
	if a.qty != 0 && (wasFlat || flipped) {
		a.tradeStartRealized = a.realized
	}
	return nil
}

func (a *Accountant) closeRoundTrip() {
	pnl := a.realized - a.tradeStartRealized
	a.trades++
	if pnl >= 0 {
		a.wins++
		a.grossProfit += pnl
	} else {
		a.losses++
		a.grossLoss += -pnl
	}
}

// Mark appends an equity snapshot at the given mark price. Snapshot
// timestamps must be non-decreasing.
func (a *Accountant) Mark(now time.Time, price float64) (journal.EquitySnapshot, error) {
	if !a.lastTime.IsZero() && now.Before(a.lastTime) {
		return journal.EquitySnapshot{}, fmt.Errorf(
			"perf: mark at %s precedes last snapshot %s", now, a.lastTime)
	}
	a.lastTime = now

	unreal := (price - a.avgPx) * a.qty
	equity := a.initial + a.realized + unreal
	if equity > a.peak {
		a.peak = equity
	}

	dd := 0.0
	if a.peak > 0 {
		dd = (a.peak - equity) / a.peak
	}

	snap := journal.EquitySnapshot{
		Time:       now,
		Balance:    a.initial + a.realized,
		Realized:   a.realized,
		Unrealized: unreal,
		Equity:     equity,
		Drawdown:   dd,
	}
	a.curve = append(a.curve, snap)

	if a.prevEquity > 0 {
		a.returns = append(a.returns, equity/a.prevEquity-1)
	}
	a.prevEquity = equity

	return snap, nil
}

func (a *Accountant) Realized() float64               { return a.realized }
func (a *Accountant) Fees() float64                   { return a.fees }
func (a *Accountant) Curve() []journal.EquitySnapshot { return a.curve }

// Summary is the end-of-run statistics block.
type Summary struct {
	Trades int
	Wins   int
	Losses int

	NetPL     float64
	ReturnPct float64
	Fees      float64

	WinRate      float64
	ProfitFactor float64
	MaxDDPct     float64
	Sharpe       float64 // mean/stddev of per-mark returns, not annualized
}

func (a *Accountant) Summarize() Summary {
	s := Summary{
		Trades: a.trades,
		Wins:   a.wins,
		Losses: a.losses,
		NetPL:  a.realized,
		Fees:   a.fees,
	}
	if a.initial > 0 {
		s.ReturnPct = 100 * a.realized / a.initial
	}
	if a.trades > 0 {
		s.WinRate = float64(a.wins) / float64(a.trades)
	}
	if a.grossLoss > 0 {
		s.ProfitFactor = a.grossProfit / a.grossLoss
	}

	for _, snap := range a.curve {
		if snap.Drawdown*100 > s.MaxDDPct {
			s.MaxDDPct = snap.Drawdown * 100
		}
	}
	s.Sharpe = sharpe(a.returns)
	return s
}

func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}

func sameSign(a, b float64) bool { return a*b > 0 }

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}
