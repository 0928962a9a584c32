// Package backtest drives the deterministic replay loop: bars flow
// from a feed through the indicator set, the signal evaluator, and the
// position state machine, one full pipeline pass per bar.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/tradeforge/cryptobt/broker"
	"github.com/tradeforge/cryptobt/engine"
	"github.com/tradeforge/cryptobt/indicators"
	"github.com/tradeforge/cryptobt/journal"
	"github.com/tradeforge/cryptobt/market"
	"github.com/tradeforge/cryptobt/perf"
	"github.com/tradeforge/cryptobt/signal"
)

type Options struct {
	// Start/End filter bars to [Start, End). Zero values disable the
	// bound.
	Start time.Time
	End   time.Time

	// CloseEnd closes any open position on the last bar.
	CloseEnd    bool
	CloseReason string

	// ResetOnGapBars resets indicator and evaluator state after a gap
	// of at least this many missing bars. 0 disables; indicators then
	// continue across gaps using only real bars.
	ResetOnGapBars int
}

// Runner wires one instrument's pipeline. All fields except Journal
// are required.
type Runner struct {
	Engine     *engine.Engine
	Feed       market.Feed
	Indicators *indicators.Set
	Evaluator  *signal.Evaluator
	Accountant *perf.Accountant
	Journal    journal.Journal
	Options    Options
}

type Result struct {
	Start time.Time
	End   time.Time
	Bars  int
	Gaps  int

	FinalBalance float64
	FinalEquity  float64
	Summary      perf.Summary
}

// Run replays the feed to exhaustion. The loop is single-threaded:
// each bar is fully processed (protective exits, resting orders,
// indicator update, signal, entry) before the next bar is read, so no
// future data can leak into a decision.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Engine == nil {
		return Result{}, fmt.Errorf("backtest: Engine is required")
	}
	if r.Feed == nil {
		return Result{}, fmt.Errorf("backtest: Feed is required")
	}
	if r.Indicators == nil {
		return Result{}, fmt.Errorf("backtest: Indicators is required")
	}
	if r.Evaluator == nil {
		return Result{}, fmt.Errorf("backtest: Evaluator is required")
	}
	if r.Accountant == nil {
		return Result{}, fmt.Errorf("backtest: Accountant is required")
	}
	defer r.Feed.Close()

	var res Result
	var lastBar market.Bar
	haveBar := false

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ev, ok, err := r.Feed.Next()
		if err != nil {
			return res, err
		}
		if !ok {
			break
		}
		b := ev.Bar

		if !r.Options.Start.IsZero() && b.Time.Before(r.Options.Start) {
			continue
		}
		if !r.Options.End.IsZero() && !b.Time.Before(r.Options.End) {
			break
		}

		if res.Bars == 0 {
			res.Start = b.Time
		}
		res.End = b.Time
		res.Bars++
		if ev.GapBars > 0 {
			res.Gaps++
		}

		if r.Options.ResetOnGapBars > 0 && ev.GapBars >= r.Options.ResetOnGapBars {
			r.Indicators.Reset()
			r.Evaluator.Reset()
		}

		// 1) protective exits and resting orders against this bar
		fills, err := r.Engine.OnBar(ctx, b)
		if err != nil {
			return res, err
		}

		// 2) indicators and signal, then entries/exits from the signal
		r.Indicators.Update(b)
		sig := r.Evaluator.Evaluate(b, r.Indicators.Values())

		sigFills, err := r.Engine.OnSignal(ctx, sig, b)
		if err != nil {
			return res, err
		}
		fills = append(fills, sigFills...)

		if err := r.record(fills, b); err != nil {
			return res, err
		}

		lastBar = b
		haveBar = true
	}

	if r.Options.CloseEnd && haveBar {
		reason := r.Options.CloseReason
		if reason == "" {
			reason = "end_of_replay"
		}
		fills, err := r.Engine.CloseAll(ctx, lastBar, reason)
		if err != nil {
			return res, err
		}
		if err := r.record(fills, lastBar); err != nil {
			return res, err
		}
	}

	if haveBar {
		res.FinalBalance = r.Engine.Balance()
		res.FinalEquity = r.Engine.Equity(lastBar.Close)
	}
	res.Summary = r.Accountant.Summarize()
	return res, nil
}

// record feeds fills into the accountant and appends an equity
// snapshot at the bar close.
func (r *Runner) record(fills []broker.Fill, b market.Bar) error {
	for _, f := range fills {
		if err := r.Accountant.RecordFill(f); err != nil {
			return err
		}
	}

	snap, err := r.Accountant.Mark(b.Time, b.Close)
	if err != nil {
		return err
	}
	if r.Journal != nil {
		return r.Journal.RecordEquity(snap)
	}
	return nil
}
