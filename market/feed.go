package market

import "fmt"

// SeriesFeed replays a Series through the Feed contract: valid bars in
// order with explicit gap markers for missing slots.
type SeriesFeed struct {
	it *Iterator
}

func NewSeriesFeed(s *Series) *SeriesFeed {
	return &SeriesFeed{it: s.Iterator()}
}

func (f *SeriesFeed) Next() (Event, bool, error) {
	if !f.it.Next() {
		return Event{}, false, nil
	}
	return Event{Bar: f.it.Bar(), GapBars: f.it.GapBars()}, true, nil
}

func (f *SeriesFeed) Close() error { return nil }

// BarFeed wraps a plain bar slice as a Feed, enforcing strictly
// increasing timestamps. An out-of-order bar is dropped and reported as
// a gap marker on the next in-order bar rather than fabricated into the
// stream.
type BarFeed struct {
	bars []Bar
	tf   int64 // seconds per bar, for gap sizing
	pos  int
	prev int64
	skew int
}

func NewBarFeed(bars []Bar, timeframeSeconds int64) (*BarFeed, error) {
	if timeframeSeconds <= 0 {
		return nil, fmt.Errorf("market: timeframe must be positive, got %d", timeframeSeconds)
	}
	return &BarFeed{bars: bars, tf: timeframeSeconds, prev: -1}, nil
}

func (f *BarFeed) Next() (Event, bool, error) {
	for f.pos < len(f.bars) {
		b := f.bars[f.pos]
		f.pos++

		ts := b.Time.Unix()
		if f.prev >= 0 && ts <= f.prev {
			// duplicate or out-of-order: drop, surface as skew on the
			// next good bar
			f.skew++
			continue
		}

		gap := 0
		if f.prev >= 0 {
			gap = int((ts-f.prev)/f.tf) - 1
			if gap < 0 {
				gap = 0
			}
		}
		f.prev = ts
		f.skew = 0
		return Event{Bar: b, GapBars: gap}, true, nil
	}
	return Event{}, false, nil
}

func (f *BarFeed) Close() error { return nil }
