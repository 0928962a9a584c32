package risk

import "math"

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// PlannedRisk computes quote-currency loss if the stop is hit.
func PlannedRisk(qty, entry, stop float64) float64 {
	return qty * abs(entry-stop)
}

func RR(entry, stop, take float64) float64 {
	r := abs(entry - stop)
	if r == 0 {
		return 0
	}
	return abs(take-entry) / r
}

func RiskPct(plannedRisk, equity float64) float64 {
	if equity <= 0 {
		return math.Inf(1)
	}
	return plannedRisk / equity
}

type Inputs struct {
	Equity  float64
	RiskPct float64 // 0.01
	Entry   float64
	Stop    float64
	LotStep float64 // exchange quantity increment
}

type Result struct {
	Quantity   float64
	StopDist   float64
	RiskAmount float64
}

// Size converts an equity risk fraction into an order quantity given
// the stop distance, floored to the instrument's lot step.
func Size(in Inputs) Result {
	dist := abs(in.Entry - in.Stop)
	if dist == 0 || in.Equity <= 0 || in.RiskPct <= 0 {
		return Result{}
	}

	riskAmt := in.Equity * in.RiskPct
	qty := riskAmt / dist

	if in.LotStep > 0 {
		qty = math.Floor(qty/in.LotStep) * in.LotStep
	}

	return Result{
		Quantity:   qty,
		StopDist:   dist,
		RiskAmount: riskAmt,
	}
}
