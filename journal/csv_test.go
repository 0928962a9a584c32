package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tradeforge/cryptobt/broker"
)

func TestCSVJournalRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fillsPath := filepath.Join(dir, "fills.csv")
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(fillsPath, tradesPath, equityPath)
	assert.NoError(t, err)

	ts := time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC)

	assert.NoError(t, j.RecordFill(broker.Fill{
		OrderID:    "O1",
		Instrument: "BTC_USDT",
		Side:       broker.Sell,
		Price:      48000,
		Quantity:   0.1,
		Fee:        4.8,
		Time:       ts,
	}))
	assert.NoError(t, j.RecordTrade(TradeRecord{
		PositionID: "P1",
		Instrument: "BTC_USDT",
		Side:       "long",
		Quantity:   0.1,
		EntryPrice: 47000,
		ExitPrice:  48000,
		OpenTime:   ts.Add(-time.Hour),
		CloseTime:  ts,
		RealizedPL: 90.5,
		Fees:       9.5,
		Reason:     "signal",
	}))
	assert.NoError(t, j.RecordEquity(EquitySnapshot{
		Time:    ts,
		Balance: 10090.5,
		Equity:  10090.5,
	}))
	assert.NoError(t, j.Close())

	rows := readCSV(t, fillsPath)
	assert.Len(t, rows, 2) // header + row
	assert.Equal(t, []string{"order_id", "instrument", "side", "price", "quantity", "fee", "time"}, rows[0])
	assert.Equal(t, "O1", rows[1][0])
	assert.Equal(t, "sell", rows[1][2])

	rows = readCSV(t, tradesPath)
	assert.Len(t, rows, 2)
	assert.Equal(t, "P1", rows[1][0])
	assert.Equal(t, "long", rows[1][2])
	assert.Equal(t, "signal", rows[1][10])

	rows = readCSV(t, equityPath)
	assert.Len(t, rows, 2)
	assert.Equal(t, ts.Format(time.RFC3339), rows[1][0])
	assert.Equal(t, "10090.500000", rows[1][4])
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	fh, err := os.Open(path)
	assert.NoError(t, err)
	defer fh.Close()

	rows, err := csv.NewReader(fh).ReadAll()
	assert.NoError(t, err)
	return rows
}
