package indicators

import (
	"fmt"

	"github.com/tradeforge/cryptobt/market"
)

// SimpleMA is a streaming Simple Moving Average over bar closes.
type SimpleMA struct {
	period int
	window []float64
}

// NewMA creates a new Simple Moving Average indicator with the given period.
func NewMA(period int) *SimpleMA {
	return &SimpleMA{
		period: period,
		window: make([]float64, 0, period),
	}
}

func (m *SimpleMA) Name() string {
	return fmt.Sprintf("MA(%d)", m.period)
}

func (m *SimpleMA) Warmup() int {
	return m.period
}

func (m *SimpleMA) Reset() {
	m.window = m.window[:0]
}

func (m *SimpleMA) Update(b market.Bar) {
	m.window = append(m.window, b.Close)
	if len(m.window) > m.period {
		m.window = m.window[1:]
	}
}

func (m *SimpleMA) Ready() bool {
	return len(m.window) >= m.period
}

func (m *SimpleMA) Value() float64 {
	if !m.Ready() {
		return 0
	}
	sum := 0.0
	for _, c := range m.window {
		sum += c
	}
	return sum / float64(len(m.window))
}

// ExponentialMA is a streaming Exponential Moving Average over bar
// closes, seeded with the SMA of the warmup window.
type ExponentialMA struct {
	period int
	acc    emaAcc
}

// NewEMA creates a new Exponential Moving Average indicator with the given period.
func NewEMA(period int) *ExponentialMA {
	return &ExponentialMA{period: period, acc: newEMAAcc(period)}
}

func (e *ExponentialMA) Name() string {
	return fmt.Sprintf("EMA(%d)", e.period)
}

func (e *ExponentialMA) Warmup() int {
	return e.period
}

func (e *ExponentialMA) Reset() {
	e.acc.reset()
}

func (e *ExponentialMA) Update(b market.Bar) {
	e.acc.update(b.Close)
}

func (e *ExponentialMA) Ready() bool {
	return e.acc.ready()
}

func (e *ExponentialMA) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return e.acc.v
}

// MA calculates the Simple Moving Average of the last period closes.
// Batch reference for cross-checking the streaming implementation.
func MA(bars []market.Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(bars) < period {
		return 0, fmt.Errorf("not enough bars: need %d, got %d", period, len(bars))
	}

	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += bars[i].Close
	}
	return sum / float64(period), nil
}

// EMA calculates the Exponential Moving Average over the whole bar
// slice. Batch reference for cross-checking the streaming implementation.
func EMA(bars []market.Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(bars) < period {
		return 0, fmt.Errorf("not enough bars: need %d, got %d", period, len(bars))
	}

	multiplier := 2.0 / float64(period+1)

	sma := 0.0
	for i := 0; i < period; i++ {
		sma += bars[i].Close
	}
	ema := sma / float64(period)

	for i := period; i < len(bars); i++ {
		ema = (bars[i].Close-ema)*multiplier + ema
	}
	return ema, nil
}
