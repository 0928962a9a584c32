package market

import (
	"fmt"
	"io"
	"time"
)

// Series is a dense, timeframe-aligned grid of bars with a validity
// bitmap. Slots with no real bar stay invalid; the iterator skips them
// and reports how many were skipped, so downstream code never sees a
// fabricated or interpolated bar.
type Series struct {
	Instrument string
	Start      int64 // unix seconds of slot 0 open
	Timeframe  int64 // seconds per bar

	Bars  []Bar
	Valid []uint64

	Gaps       []Gap
	duplicates int
	outOfRange int
}

type Gap struct {
	StartIdx int
	Len      int
	Kind     string // "minor" or "outage"
}

type GapStats struct {
	TotalSlots   int
	PresentSlots int
	MissingSlots int
	GapCount     int
	LongestGap   int
}

// NewSeries allocates a dense grid covering [start, end] at tf seconds.
// start is truncated to the timeframe boundary.
func NewSeries(instrument string, start, end time.Time, tf time.Duration) (*Series, error) {
	tfs := int64(tf / time.Second)
	if tfs <= 0 {
		return nil, fmt.Errorf("market: timeframe must be at least 1s, got %v", tf)
	}
	s0 := (start.Unix() / tfs) * tfs
	s1 := (end.Unix() / tfs) * tfs
	if s1 < s0 {
		return nil, fmt.Errorf("market: series end %v before start %v", end, start)
	}
	n := int((s1-s0)/tfs) + 1

	return &Series{
		Instrument: instrument,
		Start:      s0,
		Timeframe:  tfs,
		Bars:       make([]Bar, n),
		Valid:      make([]uint64, (n+63)/64),
	}, nil
}

// Time returns the open time of slot idx.
func (s *Series) Time(idx int) time.Time {
	return time.Unix(s.Start+int64(idx)*s.Timeframe, 0).UTC()
}

// Index returns the slot for t, or -1 when t falls outside the grid.
func (s *Series) Index(t time.Time) int {
	idx := int((t.Unix() - s.Start) / s.Timeframe)
	if idx < 0 || idx >= len(s.Bars) {
		return -1
	}
	return idx
}

// Add places a bar into its slot. Duplicate timestamps are rejected with
// a keep-first policy and counted; bars outside the grid are counted and
// dropped. Neither is fatal.
func (s *Series) Add(b Bar) {
	idx := s.Index(b.Time)
	if idx < 0 {
		s.outOfRange++
		return
	}
	if bitIsSet(s.Valid, idx) {
		s.duplicates++
		return
	}
	b.Time = s.Time(idx)
	s.Bars[idx] = b
	bitSet(s.Valid, idx)
}

// Len reports the number of valid bars in the series.
func (s *Series) Len() int {
	n := 0
	for i := range s.Bars {
		if bitIsSet(s.Valid, i) {
			n++
		}
	}
	return n
}

// Duplicates reports how many duplicate-timestamp bars were rejected.
func (s *Series) Duplicates() int { return s.duplicates }

// outageGapSlots is the threshold above which a gap is classified as an
// outage rather than routine missing data. Crypto markets trade around
// the clock, so anything beyond a handful of missing bars is suspect.
const outageGapSlots = 5

// BuildGapReport scans the validity bitmap and records every run of
// missing slots.
func (s *Series) BuildGapReport() {
	s.Gaps = s.Gaps[:0]

	n := len(s.Bars)
	i := 0
	for i < n {
		if bitIsSet(s.Valid, i) {
			i++
			continue
		}
		start := i
		for i < n && !bitIsSet(s.Valid, i) {
			i++
		}
		length := i - start

		kind := "minor"
		if length > outageGapSlots {
			kind = "outage"
		}
		s.Gaps = append(s.Gaps, Gap{StartIdx: start, Len: length, Kind: kind})
	}
}

func (s *Series) Stats() GapStats {
	if len(s.Gaps) == 0 {
		s.BuildGapReport()
	}

	var st GapStats
	st.TotalSlots = len(s.Bars)
	st.PresentSlots = s.Len()
	st.MissingSlots = st.TotalSlots - st.PresentSlots

	for _, g := range s.Gaps {
		st.GapCount++
		if g.Len > st.LongestGap {
			st.LongestGap = g.Len
		}
	}
	return st
}

// Resample aggregates the series into a coarser timeframe. The target
// must be a multiple of the source timeframe. A target slot is valid
// only when at least one real source bar falls inside it.
func (s *Series) Resample(tf time.Duration) (*Series, error) {
	tfs := int64(tf / time.Second)
	if tfs <= 0 || tfs%s.Timeframe != 0 {
		return nil, fmt.Errorf("market: resample target %v is not a multiple of %ds", tf, s.Timeframe)
	}
	if tfs == s.Timeframe {
		return s, nil
	}

	step := int(tfs / s.Timeframe)
	start := (s.Start / tfs) * tfs
	end := s.Start + int64(len(s.Bars)-1)*s.Timeframe
	n := int((end-start)/tfs) + 1

	out := &Series{
		Instrument: s.Instrument,
		Start:      start,
		Timeframe:  tfs,
		Bars:       make([]Bar, n),
		Valid:      make([]uint64, (n+63)/64),
	}

	for slot := 0; slot < n; slot++ {
		slotStart := start + int64(slot)*tfs
		firstIdx := int((slotStart - s.Start) / s.Timeframe)

		var agg Bar
		seen := false
		for m := 0; m < step; m++ {
			idx := firstIdx + m
			if idx < 0 || idx >= len(s.Bars) || !bitIsSet(s.Valid, idx) {
				continue
			}
			b := s.Bars[idx]
			if !seen {
				agg = b
				seen = true
			} else {
				if b.High > agg.High {
					agg.High = b.High
				}
				if b.Low < agg.Low {
					agg.Low = b.Low
				}
				agg.Close = b.Close
				agg.Volume += b.Volume
			}
		}
		if seen {
			agg.Time = out.Time(slot)
			out.Bars[slot] = agg
			bitSet(out.Valid, slot)
		}
	}
	return out, nil
}

func (s *Series) PrintStats(w io.Writer) {
	s.BuildGapReport()
	st := s.Stats()

	fmt.Fprintln(w, "---- Series Stats ----")
	fmt.Fprintf(w, "Instrument: %s  Timeframe: %ds\n", s.Instrument, s.Timeframe)
	fmt.Fprintf(w, "Range: %s -> %s\n", s.Time(0), s.Time(len(s.Bars)-1))
	fmt.Fprintf(w, "   Total Slots: %d\n", st.TotalSlots)
	fmt.Fprintf(w, " Present Slots: %d\n", st.PresentSlots)
	fmt.Fprintf(w, " Missing Slots: %d\n", st.MissingSlots)
	fmt.Fprintf(w, "    Total Gaps: %d\n", st.GapCount)
	fmt.Fprintf(w, "   Longest Gap: %d bars\n", st.LongestGap)
	fmt.Fprintf(w, "    Duplicates: %d\n", s.duplicates)
	fmt.Fprintln(w, "----------------------")
}

// Iterator walks valid bars in timestamp order, skipping missing slots.
type Iterator struct {
	s    *Series
	idx  int
	prev int
}

func (s *Series) Iterator() *Iterator {
	return &Iterator{s: s, idx: -1, prev: -1}
}

func (it *Iterator) Next() bool {
	n := len(it.s.Bars)
	it.prev = it.idx
	for {
		it.idx++
		if it.idx >= n {
			return false
		}
		if bitIsSet(it.s.Valid, it.idx) {
			return true
		}
	}
}

func (it *Iterator) Bar() Bar {
	return it.s.Bars[it.idx]
}

func (it *Iterator) Index() int { return it.idx }

func (it *Iterator) Time() time.Time { return it.s.Time(it.idx) }

// GapBars reports how many slots were skipped between the previous valid
// bar and the current one. 0 means contiguous.
func (it *Iterator) GapBars() int {
	if it.prev < 0 {
		return 0
	}
	return it.idx - it.prev - 1
}

func bitSet(bits []uint64, idx int) {
	bits[idx/64] |= 1 << (uint(idx) % 64)
}

func bitIsSet(bits []uint64, idx int) bool {
	return bits[idx/64]&(1<<(uint(idx)%64)) != 0
}
