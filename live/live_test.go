package live

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/cryptobt/broker"
	"github.com/tradeforge/cryptobt/engine"
	"github.com/tradeforge/cryptobt/indicators"
	"github.com/tradeforge/cryptobt/journal"
	"github.com/tradeforge/cryptobt/market"
	"github.com/tradeforge/cryptobt/metrics"
	"github.com/tradeforge/cryptobt/perf"
	"github.com/tradeforge/cryptobt/risk"
	"github.com/tradeforge/cryptobt/signal"
	"github.com/tradeforge/cryptobt/sim"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scriptedGateway struct {
	timeouts int // respond with DeadlineExceeded this many times
	refuse   bool
	calls    int
	fill     broker.Fill
}

func (g *scriptedGateway) Submit(ctx context.Context, o broker.Order) (broker.Fill, error) {
	g.calls++
	if g.refuse {
		return broker.Fill{}, errors.New("insufficient margin")
	}
	if g.calls <= g.timeouts {
		return broker.Fill{}, context.DeadlineExceeded
	}
	f := g.fill
	f.OrderID = o.ID
	f.Quantity = o.Quantity
	return f, nil
}

func TestGatewayExecutorRetriesThenFills(t *testing.T) {
	t.Parallel()

	gw := &scriptedGateway{timeouts: 2, fill: broker.Fill{Price: 100}}
	ex, err := NewGatewayExecutor(gw, 50*time.Millisecond, 3, nil)
	require.NoError(t, err)

	fl, ok, err := ex.Execute(context.Background(), broker.Order{ID: "O1", Quantity: 1}, market.Bar{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, gw.calls)
	assert.InDelta(t, 100.0, fl.Price, 1e-9)
}

func TestGatewayExecutorTimeoutBecomesRejected(t *testing.T) {
	t.Parallel()

	gw := &scriptedGateway{timeouts: 10}
	ex, err := NewGatewayExecutor(gw, 50*time.Millisecond, 2, nil)
	require.NoError(t, err)

	_, ok, err := ex.Execute(context.Background(), broker.Order{ID: "O1"}, market.Bar{})
	assert.False(t, ok)
	assert.ErrorIs(t, err, broker.ErrRejected)
	assert.Equal(t, 3, gw.calls) // initial try + 2 retries
}

func TestGatewayExecutorRefusalNoRetry(t *testing.T) {
	t.Parallel()

	gw := &scriptedGateway{refuse: true}
	ex, err := NewGatewayExecutor(gw, 50*time.Millisecond, 5, nil)
	require.NoError(t, err)

	_, ok, err := ex.Execute(context.Background(), broker.Order{ID: "O1"}, market.Bar{})
	assert.False(t, ok)
	assert.ErrorIs(t, err, broker.ErrRejected)
	assert.Equal(t, 1, gw.calls)
}

func TestEnqueueDropsOldest(t *testing.T) {
	t.Parallel()

	s := &Session{}
	s.Log = testLogger()

	queue := make(chan market.Event, 2)
	for i := 0; i < 3; i++ {
		s.enqueue(queue, market.Event{Bar: market.Bar{
			Time: t0.Add(time.Duration(i) * time.Minute),
		}})
	}

	require.Len(t, queue, 2)
	first := <-queue
	assert.True(t, first.Bar.Time.Equal(t0.Add(time.Minute)))
}

type chanFeed struct {
	ch chan market.Event
}

func (f *chanFeed) Bars() <-chan market.Event { return f.ch }
func (f *chanFeed) Close() error              { return nil }

func sessionRules() []signal.Rule {
	return []signal.Rule{{
		Name: "ma_cross_up",
		Cond: signal.Condition{
			Op:    signal.CrossAbove,
			Left:  signal.Operand{Key: "MA(2)"},
			Right: signal.Operand{Key: "MA(3)"},
		},
		Direction: signal.Long,
		Priority:  1,
		Weight:    1,
	}}
}

func TestSessionProcessesFeedToCompletion(t *testing.T) {
	t.Parallel()

	set := indicators.NewSet()
	require.NoError(t, set.Add(indicators.NewMA(2)))
	require.NoError(t, set.Add(indicators.NewMA(3)))

	ev, err := signal.NewEvaluator("BTC_USDT", sessionRules(), set.Keys())
	require.NoError(t, err)

	ex, err := sim.New(sim.Config{})
	require.NoError(t, err)

	mem := journal.NewMemory()
	eng, err := engine.New(engine.Config{
		Instrument:     market.InstrumentMeta{Name: "BTC_USDT"},
		Policy:         risk.Policy{RiskPct: 0.01, MaxOpenPositions: 1},
		StopPct:        0.10,
		InitialBalance: 10000,
	}, ex, mem)
	require.NoError(t, err)

	feed := &chanFeed{ch: make(chan market.Event, 16)}
	closes := []float64{100, 99, 98, 100, 103, 106}
	for i, c := range closes {
		feed.ch <- market.Event{Bar: market.Bar{
			Time:   t0.Add(time.Duration(i) * time.Minute),
			Open:   c, High: c + 0.5, Low: c - 0.5, Close: c,
			Volume: 1000,
		}}
	}
	close(feed.ch)

	s := &Session{
		Feed:        feed,
		Engine:      eng,
		Indicators:  set,
		Evaluator:   ev,
		Accountant:  perf.NewAccountant(10000),
		Journal:     mem,
		Log:         testLogger(),
		CloseOnStop: true,
	}

	require.NoError(t, s.Run(context.Background()))

	// every bar produced an equity snapshot
	assert.GreaterOrEqual(t, len(mem.Equities), len(closes))
	// the cross opened a long, closed again on shutdown
	require.Len(t, mem.Trades, 1)
	assert.Equal(t, "session_stop", mem.Trades[0].Reason)
}

func TestSessionCountsOrderMetrics(t *testing.T) {
	t.Parallel()

	set := indicators.NewSet()
	require.NoError(t, set.Add(indicators.NewMA(2)))
	require.NoError(t, set.Add(indicators.NewMA(3)))

	ev, err := signal.NewEvaluator("BTC_USDT", sessionRules(), set.Keys())
	require.NoError(t, err)

	ex, err := sim.New(sim.Config{})
	require.NoError(t, err)

	mem := journal.NewMemory()
	eng, err := engine.New(engine.Config{
		Instrument:     market.InstrumentMeta{Name: "BTC_USDT"},
		Policy:         risk.Policy{RiskPct: 0.01, MaxOpenPositions: 1},
		StopPct:        0.10,
		InitialBalance: 10000,
	}, ex, mem)
	require.NoError(t, err)

	feed := &chanFeed{ch: make(chan market.Event, 16)}
	for i, c := range []float64{100, 99, 98, 100, 103, 106} {
		feed.ch <- market.Event{Bar: market.Bar{
			Time:   t0.Add(time.Duration(i) * time.Minute),
			Open:   c, High: c + 0.5, Low: c - 0.5, Close: c,
			Volume: 1000,
		}}
	}
	close(feed.ch)

	reg := prometheus.NewRegistry()
	s := &Session{
		Feed:        feed,
		Engine:      eng,
		Indicators:  set,
		Evaluator:   ev,
		Accountant:  perf.NewAccountant(10000),
		Journal:     mem,
		Metrics:     metrics.New(reg),
		Log:         testLogger(),
		CloseOnStop: true,
	}

	require.NoError(t, s.Run(context.Background()))

	families, err := reg.Gather()
	require.NoError(t, err)
	byName := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				byName[mf.GetName()] += m.GetCounter().GetValue()
			}
		}
	}

	// one entry order plus the session-stop exit, both landing filled
	assert.GreaterOrEqual(t, byName["cryptobt_orders_total"], 2.0)
	assert.GreaterOrEqual(t, byName["cryptobt_fills_total"], 2.0)
	assert.Equal(t, float64(len(eng.Orders)), byName["cryptobt_orders_total"])
}

func TestSessionCancellation(t *testing.T) {
	t.Parallel()

	set := indicators.NewSet()
	require.NoError(t, set.Add(indicators.NewMA(2)))
	require.NoError(t, set.Add(indicators.NewMA(3)))

	ev, err := signal.NewEvaluator("BTC_USDT", sessionRules(), set.Keys())
	require.NoError(t, err)

	ex, err := sim.New(sim.Config{})
	require.NoError(t, err)

	eng, err := engine.New(engine.Config{
		Instrument:     market.InstrumentMeta{Name: "BTC_USDT"},
		Policy:         risk.Policy{RiskPct: 0.01},
		StopPct:        0.05,
		InitialBalance: 10000,
	}, ex, nil)
	require.NoError(t, err)

	feed := &chanFeed{ch: make(chan market.Event)}

	s := &Session{
		Feed:       feed,
		Engine:     eng,
		Indicators: set,
		Evaluator:  ev,
		Accountant: perf.NewAccountant(10000),
		Log:        testLogger(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop on cancellation")
	}
	close(feed.ch)
}
