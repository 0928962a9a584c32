// Package metrics exposes Prometheus instrumentation for live trading
// sessions.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for one session.
type Metrics struct {
	BarsTotal    prometheus.Counter
	BarsDropped  prometheus.Counter
	QueueDepth   prometheus.Gauge
	GapsTotal    prometheus.Counter
	WSReconnects prometheus.Counter

	SignalsTotal *prometheus.CounterVec // labels: direction
	OrdersTotal  *prometheus.CounterVec // labels: status
	FillsTotal   prometheus.Counter

	Equity      prometheus.Gauge
	DrawdownPct prometheus.Gauge

	DecisionDur prometheus.Histogram
}

// New registers all collectors on the given registerer (nil means the
// default registry).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		BarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptobt_bars_total",
			Help: "Bars received from the feed",
		}),
		BarsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptobt_bars_dropped_total",
			Help: "Bars dropped on queue overflow",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptobt_bar_queue_depth",
			Help: "Bars waiting in the decision queue",
		}),
		GapsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptobt_feed_gaps_total",
			Help: "Gaps marked in the bar stream",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptobt_ws_reconnects_total",
			Help: "Websocket reconnection attempts",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptobt_signals_total",
			Help: "Signals emitted by direction",
		}, []string{"direction"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptobt_orders_total",
			Help: "Orders by terminal status",
		}, []string{"status"}),
		FillsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptobt_fills_total",
			Help: "Fills executed",
		}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptobt_equity",
			Help: "Current account equity",
		}),
		DrawdownPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptobt_drawdown_pct",
			Help: "Current drawdown from the equity peak, percent",
		}),
		DecisionDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cryptobt_decision_duration_seconds",
			Help:    "Per-bar decision loop latency",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}

	reg.MustRegister(
		m.BarsTotal, m.BarsDropped, m.QueueDepth, m.GapsTotal,
		m.WSReconnects, m.SignalsTotal, m.OrdersTotal, m.FillsTotal,
		m.Equity, m.DrawdownPct, m.DecisionDur,
	)
	return m
}

// Serve runs the /metrics endpoint until ctx is cancelled.
func Serve(ctx context.Context, addr string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
