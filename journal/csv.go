package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/tradeforge/cryptobt/broker"
)

type CSVJournal struct {
	fills  *csv.Writer
	trades *csv.Writer
	equity *csv.Writer
	ff     *os.File
	tf     *os.File
	ef     *os.File
}

func NewCSV(fillsPath, tradesPath, equityPath string) (*CSVJournal, error) {
	ff, err := os.Create(fillsPath)
	if err != nil {
		return nil, err
	}
	tf, err := os.Create(tradesPath)
	if err != nil {
		ff.Close()
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		ff.Close()
		tf.Close()
		return nil, err
	}

	fw := csv.NewWriter(ff)
	tw := csv.NewWriter(tf)
	ew := csv.NewWriter(ef)

	if err := fw.Write([]string{"order_id", "instrument", "side", "price", "quantity", "fee", "time"}); err != nil {
		return nil, err
	}
	if err := tw.Write([]string{"position_id", "instrument", "side", "quantity", "entry_price", "exit_price", "open_time", "close_time", "realized_pl", "fees", "reason"}); err != nil {
		return nil, err
	}
	if err := ew.Write([]string{"time", "balance", "realized", "unrealized", "equity", "drawdown"}); err != nil {
		return nil, err
	}

	fw.Flush()
	if err := fw.Error(); err != nil {
		return nil, err
	}
	tw.Flush()
	if err := tw.Error(); err != nil {
		return nil, err
	}
	ew.Flush()
	if err := ew.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{fills: fw, trades: tw, equity: ew, ff: ff, tf: tf, ef: ef}, nil
}

func (j *CSVJournal) RecordFill(fl broker.Fill) error {
	err := j.fills.Write([]string{
		fl.OrderID,
		fl.Instrument,
		fl.Side.String(),
		f(fl.Price),
		f(fl.Quantity),
		f(fl.Fee),
		fl.Time.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	j.fills.Flush()
	return j.fills.Error()
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	err := j.trades.Write([]string{
		t.PositionID,
		t.Instrument,
		t.Side,
		f(t.Quantity),
		f(t.EntryPrice),
		f(t.ExitPrice),
		t.OpenTime.Format(time.RFC3339),
		t.CloseTime.Format(time.RFC3339),
		f(t.RealizedPL),
		f(t.Fees),
		t.Reason,
	})
	if err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	err := j.equity.Write([]string{
		e.Time.Format(time.RFC3339),
		f(e.Balance),
		f(e.Realized),
		f(e.Unrealized),
		f(e.Equity),
		f(e.Drawdown),
	})
	if err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	j.fills.Flush()
	if err := j.fills.Error(); err != nil {
		return err
	}
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}

	if err := j.ff.Close(); err != nil {
		return err
	}
	if err := j.tf.Close(); err != nil {
		return err
	}
	return j.ef.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
