package live

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tradeforge/cryptobt/engine"
	"github.com/tradeforge/cryptobt/indicators"
	"github.com/tradeforge/cryptobt/journal"
	"github.com/tradeforge/cryptobt/market"
	"github.com/tradeforge/cryptobt/metrics"
	"github.com/tradeforge/cryptobt/perf"
	"github.com/tradeforge/cryptobt/signal"
)

// BarSource is a streaming feed consumed through a channel so the
// session can select against shutdown.
type BarSource interface {
	Bars() <-chan market.Event
	Close() error
}

// Session owns the live decision loop. The feed goroutine and the
// loop communicate only through the bounded queue; all mutable state
// (engine, indicators, accountant) is touched exclusively by the loop.
type Session struct {
	Feed       BarSource
	Engine     *engine.Engine
	Indicators *indicators.Set
	Evaluator  *signal.Evaluator
	Accountant *perf.Accountant
	Journal    journal.Journal
	Metrics    *metrics.Metrics
	Log        *slog.Logger

	// QueueSize bounds the bar queue; when full the oldest unconsumed
	// bar is dropped with a warning. Default 64.
	QueueSize int

	// CloseOnStop closes any open position at market on shutdown.
	CloseOnStop bool

	ordersSeen int // engine order history already counted into metrics
}

// Run pumps bars through the pipeline until ctx is cancelled or the
// feed closes. Cancellation is cooperative: the current bar finishes
// processing (letting in-flight orders resolve) before shutdown.
func (s *Session) Run(ctx context.Context) error {
	if s.Feed == nil || s.Engine == nil || s.Indicators == nil ||
		s.Evaluator == nil || s.Accountant == nil {
		return errors.New("live: session is missing required components")
	}
	if s.Log == nil {
		s.Log = slog.Default()
	}
	size := s.QueueSize
	if size <= 0 {
		size = 64
	}

	queue := make(chan market.Event, size)
	feedDone := make(chan struct{})

	go func() {
		defer close(feedDone)
		for ev := range s.Feed.Bars() {
			s.enqueue(queue, ev)
		}
	}()

	defer s.Feed.Close()

	var lastBar market.Bar
	haveBar := false

	for {
		select {
		case <-ctx.Done():
			if s.CloseOnStop && haveBar {
				s.closeOut(lastBar)
			}
			return ctx.Err()

		case <-feedDone:
			// drain whatever queued before the feed closed
			for {
				select {
				case ev := <-queue:
					if err := s.step(ctx, ev); err != nil {
						return err
					}
					lastBar = ev.Bar
					haveBar = true
				default:
					if s.CloseOnStop && haveBar {
						s.closeOut(lastBar)
					}
					return nil
				}
			}

		case ev := <-queue:
			if err := s.step(ctx, ev); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				// per-bar errors are logged and the loop continues
				s.Log.Error("bar processing failed", "err", err, "bar", ev.Bar.Time)
			}
			lastBar = ev.Bar
			haveBar = true
		}
	}
}

// enqueue pushes with drop-oldest backpressure.
func (s *Session) enqueue(queue chan market.Event, ev market.Event) {
	if s.Metrics != nil {
		s.Metrics.BarsTotal.Inc()
		if ev.GapBars > 0 {
			s.Metrics.GapsTotal.Inc()
		}
	}

	for {
		select {
		case queue <- ev:
			if s.Metrics != nil {
				s.Metrics.QueueDepth.Set(float64(len(queue)))
			}
			return
		default:
		}

		select {
		case old := <-queue:
			s.Log.Warn("bar queue full, dropping oldest bar", "dropped", old.Bar.Time)
			if s.Metrics != nil {
				s.Metrics.BarsDropped.Inc()
			}
		default:
		}
	}
}

// step is one full pipeline pass, identical in order to the backtest
// loop.
func (s *Session) step(ctx context.Context, ev market.Event) error {
	start := time.Now()
	b := ev.Bar

	fills, err := s.Engine.OnBar(ctx, b)
	if err != nil {
		return err
	}

	s.Indicators.Update(b)
	sig := s.Evaluator.Evaluate(b, s.Indicators.Values())

	sigFills, err := s.Engine.OnSignal(ctx, sig, b)
	if err != nil {
		return err
	}
	fills = append(fills, sigFills...)

	for _, f := range fills {
		if err := s.Accountant.RecordFill(f); err != nil {
			return err
		}
	}

	snap, err := s.Accountant.Mark(b.Time, b.Close)
	if err != nil {
		return err
	}
	if s.Journal != nil {
		if err := s.Journal.RecordEquity(snap); err != nil {
			return err
		}
	}

	if s.Metrics != nil {
		if sig.Direction != signal.Flat {
			s.Metrics.SignalsTotal.WithLabelValues(sig.Direction.String()).Inc()
		}
		s.recordOrders()
		s.Metrics.FillsTotal.Add(float64(len(fills)))
		s.Metrics.Equity.Set(snap.Equity)
		s.Metrics.DrawdownPct.Set(snap.Drawdown * 100)
		s.Metrics.DecisionDur.Observe(time.Since(start).Seconds())
	}
	return nil
}

// closeOut flattens the book on shutdown using a background context so
// the closing order is not cut off by the session cancellation.
func (s *Session) closeOut(b market.Bar) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fills, err := s.Engine.CloseAll(ctx, b, "session_stop")
	if err != nil {
		s.Log.Error("close on stop failed", "err", err)
		return
	}
	for _, f := range fills {
		_ = s.Accountant.RecordFill(f)
	}
	if s.Metrics != nil {
		s.recordOrders()
	}
	if len(fills) > 0 {
		s.Log.Info("position closed on stop", "fills", len(fills))
	}
}

// recordOrders counts order transitions appended to the engine's
// history since the last pass, labelled by status.
func (s *Session) recordOrders() {
	for _, o := range s.Engine.Orders[s.ordersSeen:] {
		s.Metrics.OrdersTotal.WithLabelValues(string(o.Status)).Inc()
	}
	s.ordersSeen = len(s.Engine.Orders)
}
