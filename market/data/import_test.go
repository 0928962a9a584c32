package data

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

const sampleCSV = `time,open,high,low,close,volume
2024-01-01T00:00:00Z,42000,42100,41900,42050,100
2024-01-01T01:00:00Z,42050,42200,42000,42150,110
2024-01-01T03:00:00Z,42150,42300,42100,42250,95
`

func TestImportCSV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0644))

	s, stats, err := ImportFile("BTC_USDT", path, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Rows)
	assert.Equal(t, 3, stats.Parsed)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, 3, s.Len())

	// hour 02 is missing
	assert.Equal(t, 4, stats.Gaps.TotalSlots)
	assert.Equal(t, 1, stats.Gaps.MissingSlots)
	assert.Equal(t, 1, stats.Gaps.GapCount)
}

func TestImportBinanceVisionRow(t *testing.T) {
	t.Parallel()

	// ms open time plus trailing kline columns
	body := "1704067200000,42000,42100,41900,42050,100,1704070799999,4200000,150,50,2100000,0\n" +
		"1704070800000,42050,42200,42000,42150,110,1704074399999,4300000,160,55,2150000,0\n"
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	s, stats, err := ImportFile("BTC_USDT", path, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Parsed)
	assert.Equal(t, 2, s.Len())
	it := s.Iterator()
	require.True(t, it.Next())
	assert.True(t, it.Time().Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.InDelta(t, 42050.0, it.Bar().Close, 1e-9)
}

func TestImportXZ(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bars.csv.xz")

	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := xz.NewWriter(f)
	require.NoError(t, err)
	_, err = w.Write([]byte(sampleCSV))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	s, stats, err := ImportFile("BTC_USDT", path, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Parsed)
	assert.Equal(t, 3, s.Len())
}

func TestImportZip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bars.zip")

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	zf, err := zw.Create("BTCUSDT-1h-2024-01.csv")
	require.NoError(t, err)
	_, err = zf.Write([]byte(sampleCSV))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	s, stats, err := ImportFile("BTC_USDT", path, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Parsed)
	assert.Equal(t, 3, s.Len())
}

func TestImportSkipsMalformedRows(t *testing.T) {
	t.Parallel()

	body := sampleCSV + "not-a-time,1,2,3,4,5\n"
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	_, stats, err := ImportFile("BTC_USDT", path, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 3, stats.Parsed)
}

func TestImportEmptyFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte("time,open,high,low,close,volume\n"), 0644))

	_, _, err := ImportFile("BTC_USDT", path, time.Hour)
	assert.Error(t, err)
}
