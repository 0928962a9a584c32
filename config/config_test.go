package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestValidateFailFast(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no currency", func(c *Config) { c.Account.Currency = "" }},
		{"no balance", func(c *Config) { c.Account.Balance = 0 }},
		{"unknown instrument", func(c *Config) { c.Strategy.Instrument = "DOGE_MOON" }},
		{"bad timeframe", func(c *Config) { c.Strategy.Timeframe = "yearly" }},
		{"bad stop", func(c *Config) { c.Strategy.StopPct = 0 }},
		{"bad risk", func(c *Config) { c.Risk.RiskPct = 0 }},
		{"empty rules", func(c *Config) { c.Rules = nil }},
		{"unknown rule series", func(c *Config) { c.Rules[0].Cond.Left.Key = "WMA(9)" }},
		{"bad journal type", func(c *Config) { c.Journal.Type = "parquet" }},
		{"sqlite without path", func(c *Config) { c.Journal.DBPath = "" }},
		{"bad slippage", func(c *Config) { c.Sim.SlippagePct = 1.5 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	orig := Default()
	require.NoError(t, orig.SaveToFile(path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, orig.Strategy.Instrument, got.Strategy.Instrument)
	assert.Equal(t, orig.Risk.RiskPct, got.Risk.RiskPct)
	require.Len(t, got.Rules, len(orig.Rules))
	assert.Equal(t, orig.Rules[0].Name, got.Rules[0].Name)
	assert.Equal(t, orig.Rules[0].Direction, got.Rules[0].Direction)
	require.NotNil(t, got.Rules[0].Cond.Right.Const)
	assert.Equal(t, 30.0, *got.Rules[0].Cond.Right.Const)
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	orig := Default()
	require.NoError(t, orig.SaveToFile(path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, orig.Strategy.Instrument, got.Strategy.Instrument)
	require.Len(t, got.Rules, len(orig.Rules))
	assert.Equal(t, orig.Rules[0].Name, got.Rules[0].Name)
	assert.Equal(t, orig.Rules[0].Cond.Op, got.Rules[0].Cond.Op)
	assert.Equal(t, orig.Rules[0].Direction, got.Rules[0].Direction)
	require.NotNil(t, got.Rules[0].Cond.Right.Const)
	assert.Equal(t, 30.0, *got.Rules[0].Cond.Right.Const)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Account.Balance = -1
	require.NoError(t, cfg.SaveToFile(path))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestBuildIndicatorsKeys(t *testing.T) {
	t.Parallel()

	set, err := Default().BuildIndicators()
	require.NoError(t, err)

	keys := set.Keys()
	assert.Contains(t, keys, "RSI(14)")
	assert.Contains(t, keys, "MACD(12,26,9)")
	assert.Contains(t, keys, "MACD(12,26,9).signal")
	assert.Contains(t, keys, "BB(20,2).lower")
	assert.Contains(t, keys, "SR(20).support")
	assert.Contains(t, keys, "FIB(14).618")
}

func TestTimeframeParsing(t *testing.T) {
	t.Parallel()

	cfg := Default()

	cfg.Strategy.Timeframe = "15m"
	tf, err := cfg.Timeframe()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, tf)

	cfg.Strategy.Timeframe = "1d"
	tf, err = cfg.Timeframe()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, tf)

	cfg.Strategy.Timeframe = ""
	_, err = cfg.Timeframe()
	assert.Error(t, err)
}
