package indicators

import (
	"fmt"
	"math"

	"github.com/tradeforge/cryptobt/market"
)

// Bollinger is a streaming Bollinger Bands indicator: rolling SMA of
// closes plus/minus k sample standard deviations.
type Bollinger struct {
	period int
	k      float64
	window []float64
}

// NewBollinger creates a Bollinger Bands indicator. Conventional
// parameters are (20, 2.0).
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{
		period: period,
		k:      k,
		window: make([]float64, 0, period),
	}
}

func (bb *Bollinger) Name() string {
	return fmt.Sprintf("BB(%d,%g)", bb.period, bb.k)
}

func (bb *Bollinger) Warmup() int {
	return bb.period
}

func (bb *Bollinger) Reset() {
	bb.window = bb.window[:0]
}

func (bb *Bollinger) Update(b market.Bar) {
	bb.window = append(bb.window, b.Close)
	if len(bb.window) > bb.period {
		bb.window = bb.window[1:]
	}
}

func (bb *Bollinger) Ready() bool {
	return len(bb.window) >= bb.period
}

// Value returns the middle band (SMA).
func (bb *Bollinger) Value() float64 {
	if !bb.Ready() {
		return 0
	}
	return mean(bb.window)
}

func (bb *Bollinger) Upper() float64 {
	if !bb.Ready() {
		return 0
	}
	m := mean(bb.window)
	return m + bb.k*stddev(bb.window, m)
}

func (bb *Bollinger) Lower() float64 {
	if !bb.Ready() {
		return 0
	}
	m := mean(bb.window)
	return m - bb.k*stddev(bb.window, m)
}

func (bb *Bollinger) Values() map[string]float64 {
	if !bb.Ready() {
		return nil
	}
	m := mean(bb.window)
	sd := stddev(bb.window, m)
	name := bb.Name()
	return map[string]float64{
		name:            m,
		name + ".upper": m + bb.k*sd,
		name + ".lower": m - bb.k*sd,
	}
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation (n-1 divisor).
func stddev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
