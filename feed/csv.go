// Package feed provides bar sources for the pipeline: CSV datasets
// for backtests and the Binance websocket kline stream for live
// sessions. Every source implements market.Feed.
package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tradeforge/cryptobt/market"
)

// CSVFeed reads canonical bar CSV rows:
//
//	time,open,high,low,close,volume
//
// where time is RFC3339 or unix seconds. A header row is allowed.
// Rows at or after To, or before From, are skipped when the bounds are
// set. Out-of-order and duplicate rows are dropped and counted.
type CSVFeed struct {
	f    *os.File
	r    *csv.Reader
	from time.Time
	to   time.Time

	timeframe time.Duration
	prev      time.Time
	sawFirst  bool

	// Dropped counts out-of-order or duplicate rows skipped.
	Dropped int
}

func NewCSVFeed(path string, timeframe time.Duration, from, to time.Time) (*CSVFeed, error) {
	if timeframe <= 0 {
		return nil, fmt.Errorf("feed: timeframe must be positive")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	return &CSVFeed{f: f, r: r, from: from, to: to, timeframe: timeframe}, nil
}

func (c *CSVFeed) Close() error {
	if c.f != nil {
		return c.f.Close()
	}
	return nil
}

func (c *CSVFeed) Next() (market.Event, bool, error) {
	for {
		row, err := c.r.Read()
		if err == io.EOF {
			return market.Event{}, false, nil
		}
		if err != nil {
			return market.Event{}, false, err
		}
		if len(row) < 6 {
			continue
		}

		if !c.sawFirst {
			c.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		b, err := parseBarRow(row)
		if err != nil {
			return market.Event{}, false, err
		}

		if !c.from.IsZero() && b.Time.Before(c.from) {
			continue
		}
		if !c.to.IsZero() && !b.Time.Before(c.to) {
			return market.Event{}, false, nil
		}

		// strictly increasing timestamps; late rows never rewind state
		if !c.prev.IsZero() && !b.Time.After(c.prev) {
			c.Dropped++
			continue
		}

		gap := 0
		if !c.prev.IsZero() {
			gap = int(b.Time.Sub(c.prev)/c.timeframe) - 1
			if gap < 0 {
				gap = 0
			}
		}
		c.prev = b.Time

		return market.Event{Bar: b, GapBars: gap}, true, nil
	}
}

func parseBarRow(row []string) (market.Bar, error) {
	ts, err := parseTime(strings.TrimSpace(row[0]))
	if err != nil {
		return market.Bar{}, fmt.Errorf("feed: bad time %q: %w", row[0], err)
	}

	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return market.Bar{}, fmt.Errorf("feed: bad field %q: %w", row[i+1], err)
		}
		vals[i] = v
	}

	return market.Bar{
		Time:   ts,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

func parseTime(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}
