package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tradeforge/cryptobt/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "cryptobt",
	Short: "A deterministic crypto backtesting and signal evaluation engine",
	Long: `Cryptobt replays historical candle data through a rule-based signal
pipeline and a simulated execution layer, producing a reproducible
trade ledger and performance report.

It provides tools for:
  - Importing candle datasets (CSV, xz, Binance Vision zip archives)
  - Backtesting indicator-driven signal rules bar by bar
  - Paper trading the same pipeline against a live Binance kline stream
  - Journaling fills, trades, and equity to SQLite or CSV
  - Risk-based position sizing with policy checks`,
	SilenceUsage:      true,
	PersistentPreRunE: setupRoot,
}

var (
	envFile  string
	logLevel string
)

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file to load before running (default .env if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func setupRoot(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger.Init("cryptobt", level)
	return nil
}

func log() *slog.Logger { return slog.Default() }
