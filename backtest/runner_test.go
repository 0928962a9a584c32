package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/cryptobt/broker"
	"github.com/tradeforge/cryptobt/engine"
	"github.com/tradeforge/cryptobt/indicators"
	"github.com/tradeforge/cryptobt/journal"
	"github.com/tradeforge/cryptobt/market"
	"github.com/tradeforge/cryptobt/perf"
	"github.com/tradeforge/cryptobt/risk"
	"github.com/tradeforge/cryptobt/signal"
	"github.com/tradeforge/cryptobt/sim"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// trendBars dips then rallies so MA(2) crosses above MA(5), then sells
// off so it crosses back below.
func trendBars() []market.Bar {
	closes := []float64{
		100, 99, 98, 97, 96, // down
		98, 101, 104, 107, 110, // rally: fast crosses above slow
		106, 102, 98, 94, 90, // sell-off: fast crosses below
	}
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Time:   t0.Add(time.Duration(i) * time.Hour),
			Open:   c,
			High:   c + 0.5,
			Low:    c - 0.5,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func maCrossRules() []signal.Rule {
	return []signal.Rule{
		{
			Name: "ma_cross_up",
			Cond: signal.Condition{
				Op:    signal.CrossAbove,
				Left:  signal.Operand{Key: "MA(2)"},
				Right: signal.Operand{Key: "MA(5)"},
			},
			Direction: signal.Long,
			Priority:  1,
			Weight:    1,
		},
		{
			Name: "ma_cross_down",
			Cond: signal.Condition{
				Op:    signal.CrossBelow,
				Left:  signal.Operand{Key: "MA(2)"},
				Right: signal.Operand{Key: "MA(5)"},
			},
			Direction: signal.Short,
			Priority:  1,
			Weight:    1,
		},
	}
}

func newTestRunner(t *testing.T, bars []market.Bar, opts Options) (*Runner, *journal.Memory) {
	t.Helper()

	set := indicators.NewSet()
	require.NoError(t, set.Add(indicators.NewMA(2)))
	require.NoError(t, set.Add(indicators.NewMA(5)))

	ev, err := signal.NewEvaluator("BTC_USDT", maCrossRules(), set.Keys())
	require.NoError(t, err)

	ex, err := sim.New(sim.Config{})
	require.NoError(t, err)

	mem := journal.NewMemory()
	eng, err := engine.New(engine.Config{
		Instrument:     market.InstrumentMeta{Name: "BTC_USDT", Base: "BTC", Quote: "USDT"},
		Policy:         risk.Policy{RiskPct: 0.01, MaxExposurePct: 1, MaxOpenPositions: 1},
		StopPct:        0.10,
		InitialBalance: 10000,
	}, ex, mem)
	require.NoError(t, err)

	feed, err := market.NewBarFeed(bars, 3600)
	require.NoError(t, err)

	return &Runner{
		Engine:     eng,
		Feed:       feed,
		Indicators: set,
		Evaluator:  ev,
		Accountant: perf.NewAccountant(10000),
		Journal:    mem,
		Options:    opts,
	}, mem
}

func TestRunnerEndToEnd(t *testing.T) {
	t.Parallel()

	r, mem := newTestRunner(t, trendBars(), Options{CloseEnd: true})
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 15, res.Bars)
	assert.True(t, res.Start.Equal(t0))

	// one long entry on the cross up, closed by the cross down
	require.Len(t, mem.Fills, 2)
	require.Len(t, mem.Trades, 1)
	assert.Equal(t, "opposing_signal", mem.Trades[0].Reason)
	assert.Greater(t, mem.Trades[0].RealizedPL, 0.0)

	assert.Equal(t, 1, res.Summary.Trades)
	assert.InDelta(t, res.FinalBalance, 10000+res.Summary.NetPL, 1e-6)

	// one snapshot per bar plus the close-all pass
	assert.Len(t, mem.Equities, 16)
	for i := 1; i < len(mem.Equities); i++ {
		assert.False(t, mem.Equities[i].Time.Before(mem.Equities[i-1].Time))
	}
}

func TestRunnerFillsAtDecisionPrice(t *testing.T) {
	t.Parallel()

	// The cross that produces the entry signal only exists at the bar's
	// close, so the fill must use the close even when the open is far
	// away. Filling at the open would trade on a price that predates
	// the signal.
	closes := []float64{100, 99, 98, 97, 96, 120, 121, 122, 123, 124}
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Time:   t0.Add(time.Duration(i) * time.Hour),
			Open:   c - 60,
			High:   c + 1,
			Low:    c - 61,
			Close:  c,
			Volume: 1000,
		}
	}

	r, mem := newTestRunner(t, bars, Options{})
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, mem.Fills)
	entry := mem.Fills[0]
	assert.Equal(t, broker.Buy, entry.Side)
	assert.Equal(t, 120.0, entry.Price)
	assert.Equal(t, bars[5].Time, entry.Time)
}

func TestRunnerCloseEnd(t *testing.T) {
	t.Parallel()

	// stop before the cross down so the long is still open at the end
	r, mem := newTestRunner(t, trendBars()[:10], Options{CloseEnd: true})
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, res.Bars)
	require.Len(t, mem.Trades, 1)
	assert.Equal(t, "end_of_replay", mem.Trades[0].Reason)
	assert.InDelta(t, 110.0, mem.Trades[0].ExitPrice, 1e-9)
}

func TestRunnerDeterminism(t *testing.T) {
	t.Parallel()

	run := func() ([]broker.Fill, []journal.EquitySnapshot) {
		r, mem := newTestRunner(t, trendBars(), Options{CloseEnd: true})
		_, err := r.Run(context.Background())
		require.NoError(t, err)
		return mem.Fills, mem.Equities
	}

	fills1, curve1 := run()
	fills2, curve2 := run()

	require.Len(t, fills2, len(fills1))
	for i := range fills1 {
		assert.Equal(t, fills1[i].Price, fills2[i].Price)
		assert.Equal(t, fills1[i].Quantity, fills2[i].Quantity)
		assert.Equal(t, fills1[i].Side, fills2[i].Side)
		assert.True(t, fills1[i].Time.Equal(fills2[i].Time))
	}

	require.Len(t, curve2, len(curve1))
	for i := range curve1 {
		assert.Equal(t, curve1[i].Equity, curve2[i].Equity)
		assert.Equal(t, curve1[i].Drawdown, curve2[i].Drawdown)
	}
}

func TestRunnerDateRange(t *testing.T) {
	t.Parallel()

	bars := trendBars()
	opts := Options{
		Start: bars[2].Time,
		End:   bars[7].Time, // exclusive
	}

	r, _ := newTestRunner(t, bars, opts)
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, res.Bars)
	assert.True(t, res.Start.Equal(bars[2].Time))
	assert.True(t, res.End.Equal(bars[6].Time))
}

func TestRunnerGapCounting(t *testing.T) {
	t.Parallel()

	bars := trendBars()
	// drop three bars in the middle: feed marks the gap, indicators
	// keep running on real bars only
	gapped := append(append([]market.Bar{}, bars[:6]...), bars[9:]...)

	r, _ := newTestRunner(t, gapped, Options{})
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 12, res.Bars)
	assert.Equal(t, 1, res.Gaps)
}

func TestRunnerMissingFields(t *testing.T) {
	t.Parallel()

	r, _ := newTestRunner(t, trendBars(), Options{})
	r.Evaluator = nil

	_, err := r.Run(context.Background())
	assert.Error(t, err)
}

func TestRunnerCancelled(t *testing.T) {
	t.Parallel()

	r, _ := newTestRunner(t, trendBars(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
