package indicators

import (
	"fmt"
	"math"

	"github.com/tradeforge/cryptobt/market"
)

func trueRange(cur, prev market.Bar) float64 {
	a := cur.High - cur.Low
	b := math.Abs(cur.High - prev.Close)
	c := math.Abs(cur.Low - prev.Close)
	return math.Max(a, math.Max(b, c))
}

// ATR is a streaming Average True Range indicator with Wilder smoothing.
type ATR struct {
	period    int
	atr       float64
	count     int
	warmupSum float64
	prevBar   market.Bar
	hasPrev   bool
}

// NewATR creates a new Average True Range indicator with the given period.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR(%d)", a.period)
}

func (a *ATR) Warmup() int {
	// Need period+1 bars because TR requires the previous bar
	return a.period + 1
}

func (a *ATR) Reset() {
	a.atr = 0
	a.count = 0
	a.warmupSum = 0
	a.hasPrev = false
}

func (a *ATR) Update(b market.Bar) {
	if !a.hasPrev {
		a.prevBar = b
		a.hasPrev = true
		return
	}

	tr := trueRange(b, a.prevBar)
	a.prevBar = b

	if a.count < a.period {
		a.warmupSum += tr
		a.count++
		if a.count == a.period {
			a.atr = a.warmupSum / float64(a.period)
		}
		return
	}

	a.atr = (a.atr*float64(a.period-1) + tr) / float64(a.period)
}

func (a *ATR) Ready() bool {
	return a.count >= a.period
}

func (a *ATR) Value() float64 {
	if !a.Ready() {
		return 0
	}
	return a.atr
}
