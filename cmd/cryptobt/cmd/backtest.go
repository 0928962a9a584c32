package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tradeforge/cryptobt/backtest"
	"github.com/tradeforge/cryptobt/config"
	"github.com/tradeforge/cryptobt/internal/id"
	"github.com/tradeforge/cryptobt/journal"
	"github.com/tradeforge/cryptobt/market"
	"github.com/tradeforge/cryptobt/market/data"
	"github.com/tradeforge/cryptobt/sim"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay a candle dataset through the signal pipeline",
	Long: `Backtest replays historical candles through the configured indicators,
signal rules, and the execution simulator, producing a trade ledger
and a performance summary.

Example:
  cryptobt backtest -f session.yaml -t data/BTCUSDT-1h-2024.zip`,
	RunE: runBacktest,
}

var (
	btConfigPath string
	btDataset    string
	btStart      string
	btEnd        string
	btOrgPath    string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	backtestCmd.Flags().StringVarP(&btDataset, "ticks", "t", "", "candle dataset (.csv, .csv.xz, or .zip); overrides backtest.dataset")
	backtestCmd.Flags().StringVar(&btStart, "start", "", "replay start date YYYY-MM-DD (inclusive)")
	backtestCmd.Flags().StringVar(&btEnd, "end", "", "replay end date YYYY-MM-DD (exclusive)")
	backtestCmd.Flags().StringVar(&btOrgPath, "org", "", "write an org-mode run report to this path")

	backtestCmd.MarkFlagRequired("config")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(btConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dataset := btDataset
	if dataset == "" {
		dataset = cfg.Backtest.Dataset
	}
	if dataset == "" {
		return fmt.Errorf("no dataset: pass --ticks or set backtest.dataset")
	}

	opts, err := backtestOptions(cfg)
	if err != nil {
		return err
	}

	tf, err := cfg.Timeframe()
	if err != nil {
		return err
	}

	fmt.Printf("Importing %s\n", dataset)
	series, stats, err := data.ImportFile(cfg.Strategy.Instrument, dataset, tf)
	if err != nil {
		return fmt.Errorf("import dataset: %w", err)
	}
	fmt.Printf("  %d bars (%d skipped, %d duplicates, %d gaps)\n\n",
		stats.Parsed, stats.Skipped, stats.Duplicates, stats.Gaps.GapCount)

	exec, err := sim.New(cfg.SimConfig())
	if err != nil {
		return err
	}

	p, err := buildPipeline(cfg, exec)
	if err != nil {
		return err
	}
	defer p.Journal.Close()

	runner := backtest.Runner{
		Engine:     p.Engine,
		Feed:       market.NewSeriesFeed(series),
		Indicators: p.Indicators,
		Evaluator:  p.Evaluator,
		Accountant: p.Accountant,
		Journal:    p.Journal,
		Options:    opts,
	}

	fmt.Printf("Running backtest: %s %s\n", cfg.Strategy.Instrument, cfg.Strategy.Timeframe)
	fmt.Printf("  Journal: %s\n\n", cfg.Journal.Type)

	res, err := runner.Run(context.Background())
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	printResult(os.Stdout, res)
	return recordRun(cfg, dataset, res, p.Journal)
}

func backtestOptions(cfg *config.Config) (backtest.Options, error) {
	opts := backtest.Options{
		Start:    cfg.Backtest.Start,
		End:      cfg.Backtest.End,
		CloseEnd: cfg.Backtest.CloseEnd,
	}

	var err error
	if btStart != "" {
		if opts.Start, err = time.Parse("2006-01-02", btStart); err != nil {
			return opts, fmt.Errorf("bad --start: %w", err)
		}
	}
	if btEnd != "" {
		if opts.End, err = time.Parse("2006-01-02", btEnd); err != nil {
			return opts, fmt.Errorf("bad --end: %w", err)
		}
	}
	return opts, nil
}

func printResult(w io.Writer, res backtest.Result) {
	// Summary.ReturnPct and MaxDDPct are already percentages; only
	// WinRate arrives as a fraction.
	s := res.Summary
	fmt.Fprintf(w, "Backtest complete: %d bars, %d gaps\n", res.Bars, res.Gaps)
	fmt.Fprintf(w, "  Period: %s .. %s\n",
		res.Start.UTC().Format("2006-01-02 15:04"), res.End.UTC().Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "  Trades: %d (%d wins, %d losses)\n", s.Trades, s.Wins, s.Losses)
	fmt.Fprintf(w, "  Net P/L: %.2f (%.2f%%)\n", s.NetPL, s.ReturnPct)
	fmt.Fprintf(w, "  Fees: %.2f\n", s.Fees)
	fmt.Fprintf(w, "  Win Rate: %.1f%%\n", s.WinRate*100)
	fmt.Fprintf(w, "  Profit Factor: %.2f\n", s.ProfitFactor)
	fmt.Fprintf(w, "  Max Drawdown: %.2f%%\n", s.MaxDDPct)
	fmt.Fprintf(w, "  Final Balance: %.2f\n", res.FinalBalance)
}

func recordRun(cfg *config.Config, dataset string, res backtest.Result, jrnl journal.Journal) error {
	cfgBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	orgPath := btOrgPath
	if orgPath == "" {
		orgPath = cfg.Backtest.OrgPath
	}

	run := journal.BacktestRun{
		RunID:        id.New(),
		Created:      time.Now().UTC(),
		Timeframe:    cfg.Strategy.Timeframe,
		Dataset:      dataset,
		Instrument:   cfg.Strategy.Instrument,
		Config:       cfgBytes,
		Start:        res.Start,
		End:          res.End,
		Trades:       res.Summary.Trades,
		Wins:         res.Summary.Wins,
		Losses:       res.Summary.Losses,
		StartBalance: cfg.Account.Balance,
		EndBalance:   res.FinalBalance,
		NetPL:        res.Summary.NetPL,
		ReturnPct:    res.Summary.ReturnPct,
		WinRate:      res.Summary.WinRate,
		ProfitFactor: res.Summary.ProfitFactor,
		MaxDDPct:     res.Summary.MaxDDPct,
		OrgPath:      orgPath,
	}

	if sq, ok := jrnl.(*journal.SQLiteJournal); ok {
		if err := sq.RecordRun(run); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		fmt.Printf("\nRun recorded: %s\n", run.RunID)
	}

	if orgPath != "" {
		if err := run.WriteBacktestOrg(); err != nil {
			return fmt.Errorf("write org report: %w", err)
		}
		fmt.Printf("Report written: %s\n", orgPath)
	}
	return nil
}
