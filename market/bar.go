// Package market provides the core price data model: OHLCV bars,
// instrument metadata, and dense bar series with gap accounting.
package market

import "time"

// Bar is one OHLCV record for a fixed time interval. Bars are immutable
// once emitted by a feed.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Mid returns the midpoint of the bar's range.
func (b Bar) Mid() float64 {
	return (b.High + b.Low) / 2
}

// Event is what a Feed yields: a bar plus the number of missing bars
// since the previous one. GapBars is 0 for contiguous data; a positive
// value is an explicit gap marker, never an interpolated bar.
type Event struct {
	Bar     Bar
	GapBars int
}

// Feed is an ordered stream of bar events with strictly increasing
// timestamps. Implementations must be deterministic and return
// (ok=false, err=nil) at end of data.
type Feed interface {
	Next() (ev Event, ok bool, err error)
	Close() error
}
