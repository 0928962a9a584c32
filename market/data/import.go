// Package data imports historical candle datasets into dense series.
// It accepts plain CSV, xz-compressed CSV, and zip archives of CSVs
// (the format Binance Vision monthly dumps ship in).
package data

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
	"github.com/xyproto/unzip"

	"github.com/tradeforge/cryptobt/market"
)

// Stats summarizes one import.
type Stats struct {
	Rows       int // data rows seen
	Parsed     int // bars accepted into the series
	Skipped    int // malformed rows
	Duplicates int // duplicate-timestamp bars rejected (keep-first)
	Gaps       market.GapStats
}

// ImportFile reads the dataset at path into a dense series at the
// given timeframe. The container format is chosen by extension.
func ImportFile(instrument, path string, tf time.Duration) (*market.Series, Stats, error) {
	var bars []market.Bar
	var stats Stats
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		bars, stats, err = readZip(path)
	case ".xz":
		bars, stats, err = readXZ(path)
	default:
		bars, stats, err = readCSVFile(path)
	}
	if err != nil {
		return nil, stats, err
	}
	if len(bars) == 0 {
		return nil, stats, fmt.Errorf("data: no bars in %s", path)
	}

	start, end := bars[0].Time, bars[0].Time
	for _, b := range bars[1:] {
		if b.Time.Before(start) {
			start = b.Time
		}
		if b.Time.After(end) {
			end = b.Time
		}
	}

	s, err := market.NewSeries(instrument, start, end, tf)
	if err != nil {
		return nil, stats, err
	}
	for _, b := range bars {
		s.Add(b)
	}
	s.BuildGapReport()

	stats.Parsed = s.Len()
	stats.Duplicates = s.Duplicates()
	stats.Gaps = s.Stats()
	return s, stats, nil
}

func readCSVFile(path string) ([]market.Bar, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer f.Close()
	return readCSV(f)
}

func readXZ(path string) ([]market.Bar, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer f.Close()

	r, err := xz.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, Stats{}, fmt.Errorf("data: bad xz stream: %w", err)
	}
	return readCSV(r)
}

// readZip extracts the archive to a scratch directory and imports
// every CSV it contains, in name order.
func readZip(path string) ([]market.Bar, Stats, error) {
	tmp, err := os.MkdirTemp("", "cryptobt-zip-")
	if err != nil {
		return nil, Stats{}, err
	}
	defer os.RemoveAll(tmp)

	if err := unzip.Extract(path, tmp); err != nil {
		return nil, Stats{}, fmt.Errorf("data: extract %s: %w", path, err)
	}

	var csvs []string
	err = filepath.WalkDir(tmp, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".csv") {
			csvs = append(csvs, p)
		}
		return nil
	})
	if err != nil {
		return nil, Stats{}, err
	}
	if len(csvs) == 0 {
		return nil, Stats{}, fmt.Errorf("data: no CSV files in %s", path)
	}
	sort.Strings(csvs)

	var bars []market.Bar
	var stats Stats
	for _, p := range csvs {
		bs, st, err := readCSVFile(p)
		if err != nil {
			return nil, stats, err
		}
		bars = append(bars, bs...)
		stats.Rows += st.Rows
		stats.Skipped += st.Skipped
	}
	return bars, stats, nil
}

// readCSV accepts both the canonical 6-column layout
// (time,open,high,low,close,volume) and Binance Vision kline rows,
// where the first column is the open time in milliseconds and extra
// columns follow volume.
func readCSV(r io.Reader) ([]market.Bar, Stats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var bars []market.Bar
	var stats Stats
	sawFirst := false

	for {
		row, err := cr.Read()
		if err == io.EOF {
			return bars, stats, nil
		}
		if err != nil {
			return nil, stats, err
		}
		if len(row) < 6 {
			continue
		}

		if !sawFirst {
			sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") ||
				strings.EqualFold(strings.TrimSpace(row[0]), "open_time") {
				continue
			}
		}
		stats.Rows++

		b, err := parseRow(row)
		if err != nil {
			stats.Skipped++
			continue
		}
		bars = append(bars, b)
	}
}

func parseRow(row []string) (market.Bar, error) {
	ts, err := parseTimestamp(strings.TrimSpace(row[0]))
	if err != nil {
		return market.Bar{}, err
	}

	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return market.Bar{}, err
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

// parseTimestamp reads unix seconds, unix milliseconds (Binance
// Vision), or RFC3339.
func parseTimestamp(s string) (time.Time, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
