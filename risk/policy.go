// Package risk holds the pre-trade policy checks and position sizing
// used by the position state machine.
package risk

import "time"

type Policy struct {
	// Per-trade risk
	RiskPct    float64 // equity fraction risked per trade, e.g. 0.01
	MaxRiskPct float64 // hard cap, e.g. 0.02

	// Exposure limits
	MaxExposurePct   float64 // aggregate open notional / equity cap, e.g. 0.5
	MaxOpenPositions int     // across instruments

	// Circuit breaker
	MaxDailyLossPct float64 // e.g. 0.03

	// Trade constraints
	MinRR float64 // minimum reward:risk, e.g. 1.5; 0 disables
}

type TradeIntent struct {
	Now        time.Time
	Instrument string
	Quantity   float64

	Entry float64
	Stop  float64
	Take  float64
}

type AccountSnapshot struct {
	Balance float64
	Equity  float64

	// Aggregate open notional in quote currency and count of open
	// positions, including pending entries.
	OpenExposure  float64
	OpenPositions int
}

type PnLSnapshot struct {
	DayRealized float64 // realized P/L since session-day start
}
