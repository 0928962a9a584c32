package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradeforge/cryptobt/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the trade journal",
	Long: `Query and display journal records from the SQLite database.

Subcommands:
  today - List trades closed today
  day   - List trades closed on a specific day
  run   - Show a recorded backtest run by ID

Examples:
  cryptobt journal today
  cryptobt journal day 2026-08-15
  cryptobt journal run 01ARZ3NDEKTSV4RRFFQ69G5FAV`,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List trades closed today",
	Args:  cobra.NoArgs,
	RunE:  runJournalToday,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Show a recorded backtest run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalRun,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalRunCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./cryptobt.db", "path to SQLite journal DB")
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	return printTradesForDay(time.Now().UTC().Format("2006-01-02"))
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	return printTradesForDay(args[0])
}

func printTradesForDay(day string) error {
	from, to, err := dayBounds(day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	recs, err := j.ListTradesClosedBetween(from, to)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	if len(recs) == 0 {
		fmt.Printf("No trades closed on %s\n", day)
		return nil
	}

	fmt.Println(journal.FormatTradesOrg(recs))
	return nil
}

func runJournalRun(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	run, err := j.GetRun(args[0])
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}

	fmt.Printf("Run %s (%s)\n", run.RunID, run.Created.UTC().Format(time.RFC3339))
	fmt.Printf("  %s %s on %s\n", run.Instrument, run.Timeframe, run.Dataset)
	fmt.Printf("  Period: %s .. %s\n",
		run.Start.UTC().Format("2006-01-02"), run.End.UTC().Format("2006-01-02"))
	fmt.Printf("  Trades: %d (%d wins, %d losses)\n", run.Trades, run.Wins, run.Losses)
	fmt.Printf("  Net P/L: %.2f (%.2f%%)\n", run.NetPL, run.ReturnPct)
	fmt.Printf("  Balance: %.2f -> %.2f\n", run.StartBalance, run.EndBalance)
	fmt.Printf("  Win Rate: %.1f%%  Profit Factor: %.2f  Max DD: %.2f%%\n",
		run.WinRate*100, run.ProfitFactor, run.MaxDDPct)
	return nil
}

// dayBounds returns the UTC [start, end) window for a YYYY-MM-DD day.
func dayBounds(day string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01-02", day, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 1), nil
}
