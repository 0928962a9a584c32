// Package indicators provides streaming technical analysis indicators.
package indicators

import "github.com/tradeforge/cryptobt/market"

// Indicator computes a single streaming value from bars.
// It is causal (output for bar t uses only bars <= t), deterministic,
// and safe to use in live, replay, and backtests.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)" or "RSI(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	// (Some indicators may become ready earlier; that's fine.)
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next *closed* bar and updates internal state.
	Update(b market.Bar)

	// Ready reports whether Value() is meaningful (warmup completed).
	Ready() bool

	// Value returns the current indicator value. If !Ready(), it should
	// return 0 — callers should always check Ready().
	Value() float64
}

// MultiValue is implemented by indicators that expose more than one
// output series (MACD signal line, Bollinger bands, ...). Keys are
// suffixes on Name(), e.g. "MACD(12,26,9).signal".
type MultiValue interface {
	Values() map[string]float64
}

// emaAcc is a plain EMA accumulator over scalar inputs, seeded with the
// SMA of the first period values.
type emaAcc struct {
	period int
	mult   float64
	count  int
	sum    float64
	v      float64
}

func newEMAAcc(period int) emaAcc {
	return emaAcc{period: period, mult: 2.0 / float64(period+1)}
}

func (e *emaAcc) update(x float64) {
	if e.count < e.period {
		e.sum += x
		e.count++
		if e.count == e.period {
			e.v = e.sum / float64(e.period)
		}
		return
	}
	e.v = (x-e.v)*e.mult + e.v
}

func (e *emaAcc) ready() bool { return e.count >= e.period }

func (e *emaAcc) reset() {
	e.count = 0
	e.sum = 0
	e.v = 0
}
