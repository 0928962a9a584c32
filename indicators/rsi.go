package indicators

import (
	"fmt"

	"github.com/tradeforge/cryptobt/market"
)

// RSI is a streaming Relative Strength Index with Wilder smoothing.
//
// Degenerate inputs map to defined sentinels instead of dividing by
// zero: zero average loss with positive gain reads 100, zero average
// gain with positive loss reads 0, and a perfectly flat series reads a
// neutral 50.
type RSI struct {
	period int

	prevClose float64
	hasPrev   bool

	count   int
	gainSum float64
	lossSum float64

	avgGain float64
	avgLoss float64
}

// NewRSI creates a new Relative Strength Index indicator with the given period.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI(%d)", r.period)
}

func (r *RSI) Warmup() int {
	// Need period+1 closes to observe period changes
	return r.period + 1
}

func (r *RSI) Reset() {
	r.prevClose = 0
	r.hasPrev = false
	r.count = 0
	r.gainSum = 0
	r.lossSum = 0
	r.avgGain = 0
	r.avgLoss = 0
}

func (r *RSI) Update(b market.Bar) {
	if !r.hasPrev {
		r.prevClose = b.Close
		r.hasPrev = true
		return
	}

	delta := b.Close - r.prevClose
	r.prevClose = b.Close

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count < r.period {
		r.gainSum += gain
		r.lossSum += loss
		r.count++
		if r.count == r.period {
			r.avgGain = r.gainSum / float64(r.period)
			r.avgLoss = r.lossSum / float64(r.period)
		}
		return
	}

	// Wilder smoothing
	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
}

func (r *RSI) Ready() bool {
	return r.count >= r.period
}

func (r *RSI) Value() float64 {
	if !r.Ready() {
		return 0
	}
	switch {
	case r.avgGain == 0 && r.avgLoss == 0:
		return 50
	case r.avgLoss == 0:
		return 100
	case r.avgGain == 0:
		return 0
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}

// RSIBatch calculates the final RSI value for the bar slice. Batch
// reference for cross-checking the streaming implementation.
func RSIBatch(bars []market.Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(bars) < period+1 {
		return 0, fmt.Errorf("not enough bars: need %d, got %d", period+1, len(bars))
	}

	r := NewRSI(period)
	for _, b := range bars {
		r.Update(b)
	}
	return r.Value(), nil
}
