package journal

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tradeforge/cryptobt/broker"
)

type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordFill(f broker.Fill) error {
	_, err := j.db.Exec(`
		INSERT INTO fills
		(order_id, instrument, side, price, quantity, fee, time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID, f.Instrument, f.Side.String(), f.Price, f.Quantity, f.Fee, f.Time,
	)
	return err
}

func (j *SQLiteJournal) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(position_id, instrument, side, quantity, entry_price, exit_price,
		 open_time, close_time, realized_pl, fees, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.PositionID, t.Instrument, t.Side, t.Quantity, t.EntryPrice,
		t.ExitPrice, t.OpenTime, t.CloseTime, t.RealizedPL, t.Fees, t.Reason,
	)
	return err
}

func (j *SQLiteJournal) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, balance, realized, unrealized, equity, drawdown)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Time, e.Balance, e.Realized, e.Unrealized, e.Equity, e.Drawdown,
	)
	return err
}

func (j *SQLiteJournal) RecordRun(r BacktestRun) error {
	_, err := j.db.Exec(`
		INSERT INTO backtest_runs
		(run_id, created, instrument, timeframe, dataset, config,
		 start_time, end_time, trades, wins, losses,
		 start_balance, end_balance, net_pl, return_pct, win_rate,
		 profit_factor, max_dd_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created, r.Instrument, r.Timeframe, r.Dataset, r.Config,
		r.Start, r.End, r.Trades, r.Wins, r.Losses,
		r.StartBalance, r.EndBalance, r.NetPL, r.ReturnPct, r.WinRate,
		r.ProfitFactor, r.MaxDDPct,
	)
	return err
}

func (j *SQLiteJournal) GetRun(runID string) (BacktestRun, error) {
	var r BacktestRun
	err := j.db.QueryRow(`
		SELECT run_id, created, instrument, timeframe, dataset, config,
		       start_time, end_time, trades, wins, losses,
		       start_balance, end_balance, net_pl, return_pct, win_rate,
		       profit_factor, max_dd_pct
		FROM backtest_runs WHERE run_id = ?`, runID).
		Scan(&r.RunID, &r.Created, &r.Instrument, &r.Timeframe, &r.Dataset,
			&r.Config, &r.Start, &r.End, &r.Trades, &r.Wins, &r.Losses,
			&r.StartBalance, &r.EndBalance, &r.NetPL, &r.ReturnPct,
			&r.WinRate, &r.ProfitFactor, &r.MaxDDPct)
	return r, err
}

// ListTradesClosedBetween returns trades with close_time in [from, to),
// ordered by close time.
func (j *SQLiteJournal) ListTradesClosedBetween(from, to time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT position_id, instrument, side, quantity, entry_price, exit_price,
		       open_time, close_time, realized_pl, fees, reason
		FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.PositionID, &t.Instrument, &t.Side, &t.Quantity,
			&t.EntryPrice, &t.ExitPrice, &t.OpenTime, &t.CloseTime,
			&t.RealizedPL, &t.Fees, &t.Reason); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListEquityBetween returns the equity curve over [from, to), ordered
// by time.
func (j *SQLiteJournal) ListEquityBetween(from, to time.Time) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT time, balance, realized, unrealized, equity, drawdown
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.Time, &e.Balance, &e.Realized, &e.Unrealized,
			&e.Equity, &e.Drawdown); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
