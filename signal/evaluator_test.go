package signal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradeforge/cryptobt/market"
)

func f(v float64) *float64 { return &v }

func bar(close float64) market.Bar {
	return market.Bar{
		Time:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Open:  close, High: close + 1, Low: close - 1, Close: close,
	}
}

var testKeys = []string{"RSI(14)", "MACD(12,26,9)", "MACD(12,26,9).signal", "BB(20,2).upper", "BB(20,2).lower"}

func TestValidateRules(t *testing.T) {
	good := []Rule{{
		Name:      "rsi-oversold",
		Cond:      Condition{Op: CrossBelow, Left: Operand{Key: "RSI(14)"}, Right: Operand{Const: f(30)}},
		Direction: Long,
		Priority:  1,
		Weight:    0.3,
	}}
	assert.NoError(t, ValidateRules(good, testKeys))

	t.Run("empty set", func(t *testing.T) {
		assert.Error(t, ValidateRules(nil, testKeys))
	})
	t.Run("unknown series", func(t *testing.T) {
		bad := []Rule{{
			Name:      "r",
			Cond:      Condition{Op: Above, Left: Operand{Key: "EMA(999)"}, Right: Operand{Const: f(1)}},
			Direction: Long,
		}}
		assert.Error(t, ValidateRules(bad, testKeys))
	})
	t.Run("unknown op", func(t *testing.T) {
		bad := []Rule{{
			Name:      "r",
			Cond:      Condition{Op: "crosses", Left: Operand{Key: "close"}, Right: Operand{Const: f(1)}},
			Direction: Long,
		}}
		assert.Error(t, ValidateRules(bad, testKeys))
	})
	t.Run("duplicate names", func(t *testing.T) {
		dup := append(append([]Rule{}, good...), good...)
		assert.Error(t, ValidateRules(dup, testKeys))
	})
	t.Run("flat direction rejected", func(t *testing.T) {
		bad := []Rule{{
			Name:      "r",
			Cond:      Condition{Op: Above, Left: Operand{Key: "close"}, Right: Operand{Const: f(1)}},
			Direction: Flat,
		}}
		assert.Error(t, ValidateRules(bad, testKeys))
	})
}

func TestRuleJSONRoundTrip(t *testing.T) {
	t.Parallel()

	orig := Rule{
		Name: "rsi_oversold",
		Cond: Condition{
			Op:    Below,
			Left:  Operand{Key: "RSI(14)"},
			Right: Operand{Const: f(30)},
		},
		Direction: Long,
		Priority:  2,
		Weight:    0.3,
	}

	data, err := json.Marshal(orig)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"direction":"long"`)
	assert.Contains(t, string(data), `"when"`)

	var got Rule
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, orig, got)

	var bad Rule
	assert.Error(t, json.Unmarshal([]byte(`{"name":"x","direction":"sideways"}`), &bad))
}

func TestCrossoverDetection(t *testing.T) {
	rules := []Rule{{
		Name:      "rsi-oversold",
		Cond:      Condition{Op: CrossBelow, Left: Operand{Key: "RSI(14)"}, Right: Operand{Const: f(30)}},
		Direction: Long,
		Priority:  1,
		Weight:    0.3,
	}}
	ev, err := NewEvaluator("BTC_USDT", rules, testKeys)
	require.NoError(t, err)

	// first bar: no previous value yet, a cross cannot fire
	sig := ev.Evaluate(bar(100), map[string]float64{"RSI(14)": 25})
	assert.Equal(t, Flat, sig.Direction)

	// already below: no cross
	sig = ev.Evaluate(bar(100), map[string]float64{"RSI(14)": 28})
	assert.Equal(t, Flat, sig.Direction)

	// back above
	sig = ev.Evaluate(bar(100), map[string]float64{"RSI(14)": 35})
	assert.Equal(t, Flat, sig.Direction)

	// crosses below 30: fires once
	sig = ev.Evaluate(bar(100), map[string]float64{"RSI(14)": 29})
	assert.Equal(t, Long, sig.Direction)
	assert.Equal(t, "rsi-oversold", sig.Rule)
	assert.InDelta(t, 0.3, sig.Strength, 1e-12)

	// stays below: does not fire again
	sig = ev.Evaluate(bar(100), map[string]float64{"RSI(14)": 27})
	assert.Equal(t, Flat, sig.Direction)
}

func TestSeriesVsSeriesCross(t *testing.T) {
	rules := []Rule{{
		Name:      "macd-bull",
		Cond:      Condition{Op: CrossAbove, Left: Operand{Key: "MACD(12,26,9)"}, Right: Operand{Key: "MACD(12,26,9).signal"}},
		Direction: Long,
		Priority:  1,
		Weight:    0.3,
	}}
	ev, err := NewEvaluator("BTC_USDT", rules, testKeys)
	require.NoError(t, err)

	sig := ev.Evaluate(bar(100), map[string]float64{"MACD(12,26,9)": -1, "MACD(12,26,9).signal": 0})
	assert.Equal(t, Flat, sig.Direction)

	sig = ev.Evaluate(bar(100), map[string]float64{"MACD(12,26,9)": 1, "MACD(12,26,9).signal": 0.5})
	assert.Equal(t, Long, sig.Direction)
}

func TestWarmupSkipsRule(t *testing.T) {
	rules := []Rule{{
		Name:      "price-above-upper-bb",
		Cond:      Condition{Op: Above, Left: Operand{Key: "close"}, Right: Operand{Key: "BB(20,2).upper"}},
		Direction: Short,
		Priority:  1,
		Weight:    0.2,
	}}
	ev, err := NewEvaluator("BTC_USDT", rules, testKeys)
	require.NoError(t, err)

	// indicator missing entirely (warm-up): rule is skipped, no fault
	sig := ev.Evaluate(bar(200), map[string]float64{})
	assert.Equal(t, Flat, sig.Direction)

	sig = ev.Evaluate(bar(200), map[string]float64{"BB(20,2).upper": 150})
	assert.Equal(t, Short, sig.Direction)
}

func TestPriorityAndTieResolution(t *testing.T) {
	long := Rule{
		Name:      "go-long",
		Cond:      Condition{Op: Above, Left: Operand{Key: "close"}, Right: Operand{Const: f(50)}},
		Direction: Long,
		Priority:  1,
		Weight:    0.5,
	}
	short := Rule{
		Name:      "go-short",
		Cond:      Condition{Op: Above, Left: Operand{Key: "close"}, Right: Operand{Const: f(40)}},
		Direction: Short,
		Priority:  1,
		Weight:    0.5,
	}

	t.Run("equal priority conflict resolves flat", func(t *testing.T) {
		ev, err := NewEvaluator("BTC_USDT", []Rule{long, short}, testKeys)
		require.NoError(t, err)
		sig := ev.Evaluate(bar(100), nil)
		assert.Equal(t, Flat, sig.Direction)
	})

	t.Run("higher priority wins", func(t *testing.T) {
		short2 := short
		short2.Priority = 2
		ev, err := NewEvaluator("BTC_USDT", []Rule{long, short2}, testKeys)
		require.NoError(t, err)
		sig := ev.Evaluate(bar(100), nil)
		assert.Equal(t, Short, sig.Direction)
		assert.Equal(t, "go-short", sig.Rule)
	})

	t.Run("agreeing rules sum strength", func(t *testing.T) {
		long2 := long
		long2.Name = "go-long-too"
		long2.Weight = 0.3
		ev, err := NewEvaluator("BTC_USDT", []Rule{long, long2}, testKeys)
		require.NoError(t, err)
		sig := ev.Evaluate(bar(100), nil)
		assert.Equal(t, Long, sig.Direction)
		assert.InDelta(t, 0.8, sig.Strength, 1e-12)
	})
}
