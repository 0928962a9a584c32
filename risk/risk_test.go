package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSize(t *testing.T) {
	t.Run("basic sizing", func(t *testing.T) {
		// risk 100 over a 5-wide stop -> 20 units, floored to lot step
		r := Size(Inputs{Equity: 10_000, RiskPct: 0.01, Entry: 100, Stop: 95, LotStep: 0.001})
		assert.InDelta(t, 20.0, r.Quantity, 1e-9)
		assert.Equal(t, 5.0, r.StopDist)
		assert.Equal(t, 100.0, r.RiskAmount)
	})

	t.Run("lot step floors", func(t *testing.T) {
		r := Size(Inputs{Equity: 10_000, RiskPct: 0.01, Entry: 100, Stop: 97, LotStep: 1})
		assert.Equal(t, 33.0, r.Quantity) // 33.33 floored
	})

	t.Run("zero stop distance yields nothing", func(t *testing.T) {
		r := Size(Inputs{Equity: 10_000, RiskPct: 0.01, Entry: 100, Stop: 100})
		assert.Equal(t, 0.0, r.Quantity)
	})
}

func TestEvaluate(t *testing.T) {
	policy := Policy{
		RiskPct:          0.01,
		MaxRiskPct:       0.02,
		MaxExposurePct:   0.5,
		MaxOpenPositions: 2,
		MaxDailyLossPct:  0.03,
		MinRR:            1.5,
	}
	acct := AccountSnapshot{Balance: 10_000, Equity: 10_000}

	intent := TradeIntent{
		Instrument: "BTC_USDT",
		Quantity:   0.02,
		Entry:      100_000,
		Stop:       95_000,
		Take:       110_000,
	}

	t.Run("clean entry allowed", func(t *testing.T) {
		d := Evaluate(policy, intent, acct, PnLSnapshot{})
		assert.True(t, d.Allowed, "violations: %v", d.Violations)
		assert.InDelta(t, 100.0, d.PlannedRisk, 1e-9)
		assert.InDelta(t, 0.01, d.PlannedRiskPct, 1e-9)
		assert.InDelta(t, 2.0, d.PlannedRR, 1e-9)
	})

	t.Run("risk cap", func(t *testing.T) {
		big := intent
		big.Quantity = 0.1
		d := Evaluate(policy, big, acct, PnLSnapshot{})
		assert.False(t, d.Allowed)
		assert.Equal(t, "RISK_TOO_HIGH", d.Violations[0].Code)
	})

	t.Run("exposure cap counts existing positions", func(t *testing.T) {
		loaded := acct
		loaded.OpenExposure = 4000
		d := Evaluate(policy, intent, loaded, PnLSnapshot{})
		assert.False(t, d.Allowed)
		assert.Equal(t, "EXPOSURE_TOO_HIGH", d.Violations[0].Code)
	})

	t.Run("max open positions", func(t *testing.T) {
		full := acct
		full.OpenPositions = 2
		d := Evaluate(policy, intent, full, PnLSnapshot{})
		assert.False(t, d.Allowed)
		assert.Equal(t, "TOO_MANY_OPEN_POSITIONS", d.Violations[0].Code)
	})

	t.Run("daily loss circuit breaker", func(t *testing.T) {
		d := Evaluate(policy, intent, acct, PnLSnapshot{DayRealized: -400})
		assert.False(t, d.Allowed)
		assert.Equal(t, "DAILY_LOSS_LIMIT", d.Violations[0].Code)
	})

	t.Run("poor reward-risk", func(t *testing.T) {
		poor := intent
		poor.Take = 101_000
		d := Evaluate(policy, poor, acct, PnLSnapshot{})
		assert.False(t, d.Allowed)
		assert.Equal(t, "RR_TOO_LOW", d.Violations[0].Code)
	})

	t.Run("missing stop short-circuits", func(t *testing.T) {
		bad := intent
		bad.Stop = 0
		d := Evaluate(policy, bad, acct, PnLSnapshot{})
		assert.False(t, d.Allowed)
		assert.Equal(t, "NO_STOP_OR_ENTRY", d.Violations[0].Code)
	})
}
