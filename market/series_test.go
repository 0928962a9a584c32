package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkBar(t time.Time, close float64) Bar {
	return Bar{Time: t, Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 10}
}

func TestSeriesAddAndIterate(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s, err := NewSeries("BTC_USDT", base, base.Add(9*time.Minute), time.Minute)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		s.Add(mkBar(base.Add(time.Duration(i)*time.Minute), 100+float64(i)))
	}

	assert.Equal(t, 10, s.Len())

	it := s.Iterator()
	i := 0
	for it.Next() {
		assert.Equal(t, base.Add(time.Duration(i)*time.Minute), it.Time())
		assert.Equal(t, 0, it.GapBars())
		i++
	}
	assert.Equal(t, 10, i)
}

func TestSeriesRejectsDuplicates(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s, err := NewSeries("BTC_USDT", base, base.Add(4*time.Minute), time.Minute)
	require.NoError(t, err)

	s.Add(mkBar(base, 100))
	s.Add(mkBar(base, 999)) // duplicate timestamp, keep-first

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.Duplicates())
	assert.Equal(t, 100.0, s.Bars[0].Close)
}

func TestSeriesGapReport(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s, err := NewSeries("BTC_USDT", base, base.Add(19*time.Minute), time.Minute)
	require.NoError(t, err)

	// bars 0..4, then a 3-bar gap, then 8..19
	for i := 0; i < 20; i++ {
		if i >= 5 && i < 8 {
			continue
		}
		s.Add(mkBar(base.Add(time.Duration(i)*time.Minute), 100))
	}

	s.BuildGapReport()
	require.Len(t, s.Gaps, 1)
	assert.Equal(t, 5, s.Gaps[0].StartIdx)
	assert.Equal(t, 3, s.Gaps[0].Len)
	assert.Equal(t, "minor", s.Gaps[0].Kind)

	st := s.Stats()
	assert.Equal(t, 17, st.PresentSlots)
	assert.Equal(t, 3, st.MissingSlots)
	assert.Equal(t, 3, st.LongestGap)

	// iterator marks the gap, it does not fabricate bars
	it := s.Iterator()
	sawGap := 0
	for it.Next() {
		if g := it.GapBars(); g > 0 {
			sawGap = g
			assert.Equal(t, 8, it.Index())
		}
	}
	assert.Equal(t, 3, sawGap)
}

func TestSeriesResample(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s, err := NewSeries("ETH_USDT", base, base.Add(119*time.Minute), time.Minute)
	require.NoError(t, err)

	for i := 0; i < 120; i++ {
		b := Bar{
			Time:   base.Add(time.Duration(i) * time.Minute),
			Open:   100 + float64(i),
			High:   101 + float64(i),
			Low:    99 + float64(i),
			Close:  100.5 + float64(i),
			Volume: 2,
		}
		s.Add(b)
	}

	h1, err := s.Resample(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, h1.Len())

	first := h1.Bars[0]
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 101.0+59, first.High)
	assert.Equal(t, 99.0, first.Low)
	assert.Equal(t, 100.5+59, first.Close)
	assert.Equal(t, 120.0, first.Volume)

	_, err = s.Resample(90 * time.Second)
	assert.Error(t, err)
}

func TestBarFeedGapMarkers(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := []Bar{
		mkBar(base, 100),
		mkBar(base.Add(1*time.Minute), 101),
		mkBar(base.Add(1*time.Minute), 999), // duplicate, dropped
		mkBar(base.Add(5*time.Minute), 102), // 3 missing bars
	}

	f, err := NewBarFeed(bars, 60)
	require.NoError(t, err)

	var events []Event
	for {
		ev, ok, err := f.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		events = append(events, ev)
	}

	require.Len(t, events, 3)
	assert.Equal(t, 0, events[0].GapBars)
	assert.Equal(t, 0, events[1].GapBars)
	assert.Equal(t, 3, events[2].GapBars)
	assert.Equal(t, 102.0, events[2].Bar.Close)
}
