package indicators

import (
	"fmt"

	"github.com/tradeforge/cryptobt/market"
)

// MACD is a streaming Moving Average Convergence Divergence indicator:
// fast EMA minus slow EMA, with a signal-line EMA of that difference.
type MACD struct {
	fastN, slowN, signalN int

	fast   emaAcc
	slow   emaAcc
	signal emaAcc
}

// NewMACD creates a MACD indicator. Conventional parameters are (12, 26, 9).
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fastN:   fast,
		slowN:   slow,
		signalN: signal,
		fast:    newEMAAcc(fast),
		slow:    newEMAAcc(slow),
		signal:  newEMAAcc(signal),
	}
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD(%d,%d,%d)", m.fastN, m.slowN, m.signalN)
}

func (m *MACD) Warmup() int {
	// Line defined once the slow EMA seeds; signal needs signalN lines.
	return m.slowN + m.signalN - 1
}

func (m *MACD) Reset() {
	m.fast.reset()
	m.slow.reset()
	m.signal.reset()
}

func (m *MACD) Update(b market.Bar) {
	m.fast.update(b.Close)
	m.slow.update(b.Close)
	if m.fast.ready() && m.slow.ready() {
		m.signal.update(m.fast.v - m.slow.v)
	}
}

func (m *MACD) Ready() bool {
	return m.signal.ready()
}

// Value returns the MACD line (fast EMA - slow EMA).
func (m *MACD) Value() float64 {
	if !m.Ready() {
		return 0
	}
	return m.fast.v - m.slow.v
}

// Signal returns the signal line.
func (m *MACD) Signal() float64 {
	if !m.Ready() {
		return 0
	}
	return m.signal.v
}

// Histogram returns line minus signal.
func (m *MACD) Histogram() float64 {
	if !m.Ready() {
		return 0
	}
	return m.Value() - m.signal.v
}

func (m *MACD) Values() map[string]float64 {
	if !m.Ready() {
		return nil
	}
	name := m.Name()
	return map[string]float64{
		name:             m.Value(),
		name + ".signal": m.Signal(),
		name + ".hist":   m.Histogram(),
	}
}
