// Package sim is the backtest execution simulator: it fills orders
// against historical bars with modeled slippage, fees, and optional
// volume-capped partial fills.
package sim

import (
	"context"
	"fmt"

	"github.com/tradeforge/cryptobt/broker"
	"github.com/tradeforge/cryptobt/market"
)

type Config struct {
	// SlippagePct is applied against the trader on every fill
	// (0.001 = 0.1%).
	SlippagePct float64

	// FeePct of executed notional, recorded on the fill (0.001 = 0.1%).
	FeePct float64

	// FillAtOpen makes market orders fill at the bar open instead of
	// the close. The close is the price the decision was made on, so
	// open fills are only honest when orders are executed against the
	// bar after the decision bar.
	FillAtOpen bool

	// PartialFills caps each fill at MaxParticipationPct of the bar
	// volume; the remainder rests. Off means all-or-nothing.
	PartialFills        bool
	MaxParticipationPct float64
}

func (c Config) Validate() error {
	if c.SlippagePct < 0 || c.SlippagePct >= 1 {
		return fmt.Errorf("sim: slippage_pct %v outside [0,1)", c.SlippagePct)
	}
	if c.FeePct < 0 || c.FeePct >= 1 {
		return fmt.Errorf("sim: fee_pct %v outside [0,1)", c.FeePct)
	}
	if c.PartialFills && (c.MaxParticipationPct <= 0 || c.MaxParticipationPct > 1) {
		return fmt.Errorf("sim: max_participation_pct %v outside (0,1]", c.MaxParticipationPct)
	}
	return nil
}

// Simulator implements broker.Executor for backtests. It is stateless
// between calls, so replays are deterministic by construction.
type Simulator struct {
	cfg Config
}

func New(cfg Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Simulator{cfg: cfg}, nil
}

// Execute fills the order against the bar, or reports ok=false when a
// limit/stop order does not trigger inside the bar's range. Ambiguity
// inside a bar always resolves against the trader: stops fill at the
// stop (or worse on a gap-through open), limits never assume price
// improvement.
func (s *Simulator) Execute(ctx context.Context, o broker.Order, b market.Bar) (broker.Fill, bool, error) {
	if err := ctx.Err(); err != nil {
		return broker.Fill{}, false, err
	}
	if o.Remaining() <= 0 {
		return broker.Fill{}, false, fmt.Errorf("sim: order %s has nothing left to fill", o.ID)
	}

	var raw float64 // trigger price before slippage
	switch o.Type {
	case broker.MarketOrder:
		raw = b.Close
		if s.cfg.FillAtOpen {
			raw = b.Open
		}

	case broker.LimitOrder:
		if o.Price <= 0 {
			return broker.Fill{}, false, fmt.Errorf("sim: limit order %s has no price", o.ID)
		}
		// Buy limit needs the range to reach down to it, sell limit up.
		if o.Side == broker.Buy && b.Low > o.Price {
			return broker.Fill{}, false, nil
		}
		if o.Side == broker.Sell && b.High < o.Price {
			return broker.Fill{}, false, nil
		}
		raw = o.Price

	case broker.StopOrder:
		if o.Price <= 0 {
			return broker.Fill{}, false, fmt.Errorf("sim: stop order %s has no price", o.ID)
		}
		if o.Side == broker.Buy {
			if b.High < o.Price {
				return broker.Fill{}, false, nil
			}
			// gap-through open fills at the open, which is worse
			raw = o.Price
			if b.Open > o.Price {
				raw = b.Open
			}
		} else {
			if b.Low > o.Price {
				return broker.Fill{}, false, nil
			}
			raw = o.Price
			if b.Open < o.Price {
				raw = b.Open
			}
		}

	default:
		return broker.Fill{}, false, fmt.Errorf("sim: unknown order type %q", o.Type)
	}

	px := raw
	// Limit fills are price-capped by definition; slippage applies to
	// market and stop executions.
	if o.Type != broker.LimitOrder {
		if o.Side == broker.Buy {
			px = raw * (1 + s.cfg.SlippagePct)
		} else {
			px = raw * (1 - s.cfg.SlippagePct)
		}
	}

	qty := o.Remaining()
	if s.cfg.PartialFills {
		cap := b.Volume * s.cfg.MaxParticipationPct
		if cap > 0 && qty > cap {
			qty = cap
		}
	}
	if qty <= 0 {
		return broker.Fill{}, false, nil
	}

	fill := broker.Fill{
		OrderID:    o.ID,
		Instrument: o.Instrument,
		Side:       o.Side,
		Price:      px,
		Quantity:   qty,
		Fee:        px * qty * s.cfg.FeePct,
		Time:       b.Time,
	}
	return fill, true, nil
}
