package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	osignal "os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tradeforge/cryptobt/config"
	"github.com/tradeforge/cryptobt/feed"
	"github.com/tradeforge/cryptobt/live"
	"github.com/tradeforge/cryptobt/metrics"
	"github.com/tradeforge/cryptobt/sim"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Paper trade the pipeline against a live Binance kline stream",
	Long: `Run subscribes to the Binance kline websocket stream and feeds closed
candles through the same indicator, signal, and execution pipeline the
backtester uses. Orders are filled by the execution simulator against
each closed candle.

Stop with Ctrl-C; with live.close_on_stop set, any open position is
closed at market before exit.

Example:
  cryptobt run -f session.yaml --metrics :9090`,
	RunE: runRun,
}

var (
	runConfigPath  string
	runPaper       bool
	runMetricsAddr string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.Flags().BoolVar(&runPaper, "paper", true, "fill orders with the execution simulator")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics", "", "serve Prometheus metrics on this address; overrides live.metrics_addr")

	runCmd.MarkFlagRequired("config")
}

// isCleanShutdown reports whether a session ended normally. Ctrl-C
// cancels the signal context, which surfaces as context.Canceled from
// the session loop; that is a requested stop, not a failure.
func isCleanShutdown(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !runPaper {
		return fmt.Errorf("live order routing needs an exchange gateway; run with --paper")
	}

	ctx, stop := osignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Live klines are already closed when they arrive; the simulator
	// fills at the candle close, which is the decision price.
	simCfg := cfg.SimConfig()
	simCfg.FillAtOpen = false
	exec, err := sim.New(simCfg)
	if err != nil {
		return err
	}

	p, err := buildPipeline(cfg, exec)
	if err != nil {
		return err
	}
	defer p.Journal.Close()

	m := metrics.New(nil)

	bf, err := feed.NewBinanceFeed(ctx, cfg.Strategy.Instrument, cfg.Live.Interval, log())
	if err != nil {
		return fmt.Errorf("binance feed: %w", err)
	}
	bf.SetReconnectHook(m.WSReconnects.Inc)

	addr := runMetricsAddr
	if addr == "" {
		addr = cfg.Live.MetricsAddr
	}
	if addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, log()); err != nil {
				log().Error("metrics server", "err", err)
			}
		}()
	}

	session := live.Session{
		Feed:        bf,
		Engine:      p.Engine,
		Indicators:  p.Indicators,
		Evaluator:   p.Evaluator,
		Accountant:  p.Accountant,
		Journal:     p.Journal,
		Metrics:     m,
		Log:         log(),
		QueueSize:   cfg.Live.QueueSize,
		CloseOnStop: cfg.Live.CloseOnStop,
	}

	fmt.Printf("Paper trading %s %s (journal: %s)\n",
		cfg.Strategy.Instrument, cfg.Live.Interval, cfg.Journal.Type)

	if err := session.Run(ctx); !isCleanShutdown(err) {
		return fmt.Errorf("session: %w", err)
	}

	s := p.Accountant.Summarize()
	fmt.Printf("\nSession complete: %d trades, net P/L %.2f (%.2f%%)\n",
		s.Trades, s.NetPL, s.ReturnPct)
	fmt.Printf("  Final Balance: %.2f\n", p.Engine.Balance())
	return nil
}
