package risk

import "fmt"

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation

	PlannedRisk    float64 // quote currency lost if the stop is hit
	PlannedRiskPct float64
	PlannedRR      float64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Evaluate runs every policy check against a proposed entry. It is a
// pure function: same inputs, same decision.
func Evaluate(p Policy, intent TradeIntent, acct AccountSnapshot, pnl PnLSnapshot) Decision {
	d := Decision{Allowed: true}

	if intent.Entry == 0 || intent.Stop == 0 {
		d.add("NO_STOP_OR_ENTRY", "entry/stop must be set")
		return d
	}
	if intent.Quantity <= 0 {
		d.add("NO_QUANTITY", "quantity must be positive")
		return d
	}

	d.PlannedRisk = PlannedRisk(intent.Quantity, intent.Entry, intent.Stop)
	d.PlannedRiskPct = RiskPct(d.PlannedRisk, acct.Equity)
	d.PlannedRR = RR(intent.Entry, intent.Stop, intent.Take)

	if p.MaxRiskPct > 0 && d.PlannedRiskPct > p.MaxRiskPct {
		d.add("RISK_TOO_HIGH",
			fmt.Sprintf("planned risk %.2f%% exceeds max %.2f%%",
				100*d.PlannedRiskPct, 100*p.MaxRiskPct))
	}
	if p.MinRR > 0 && intent.Take != 0 && d.PlannedRR < p.MinRR {
		d.add("RR_TOO_LOW",
			fmt.Sprintf("RR %.2f below minimum %.2f", d.PlannedRR, p.MinRR))
	}

	if p.MaxOpenPositions > 0 && acct.OpenPositions >= p.MaxOpenPositions {
		d.add("TOO_MANY_OPEN_POSITIONS",
			fmt.Sprintf("open positions %d >= max %d", acct.OpenPositions, p.MaxOpenPositions))
	}

	if p.MaxExposurePct > 0 && acct.Equity > 0 {
		newExposure := acct.OpenExposure + intent.Quantity*intent.Entry
		if newExposure/acct.Equity > p.MaxExposurePct {
			d.add("EXPOSURE_TOO_HIGH",
				fmt.Sprintf("exposure %.2f%% of equity exceeds max %.2f%%",
					100*newExposure/acct.Equity, 100*p.MaxExposurePct))
		}
	}

	if p.MaxDailyLossPct > 0 {
		dayLimit := -p.MaxDailyLossPct * acct.Equity
		if pnl.DayRealized <= dayLimit {
			d.add("DAILY_LOSS_LIMIT",
				fmt.Sprintf("day realized %.2f <= limit %.2f", pnl.DayRealized, dayLimit))
		}
	}

	return d
}
