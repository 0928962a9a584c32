// Package journal persists the trading ledger: fills, closed trades,
// and equity snapshots, plus backtest run summaries.
package journal

import (
	"time"

	"github.com/tradeforge/cryptobt/broker"
)

// TradeRecord is one closed round trip.
type TradeRecord struct {
	PositionID string
	Instrument string
	Side       string
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	RealizedPL float64 // net of fees
	Fees       float64
	Reason     string
}

// EquitySnapshot is one point on the equity curve.
type EquitySnapshot struct {
	Time       time.Time
	Balance    float64
	Realized   float64
	Unrealized float64
	Equity     float64
	Drawdown   float64 // fraction below the running equity peak
}

type Journal interface {
	RecordFill(broker.Fill) error
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Memory keeps the ledger in slices. Used by tests and by callers that
// only need the in-process ledger.
type Memory struct {
	Fills    []broker.Fill
	Trades   []TradeRecord
	Equities []EquitySnapshot
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) RecordFill(f broker.Fill) error {
	m.Fills = append(m.Fills, f)
	return nil
}

func (m *Memory) RecordTrade(t TradeRecord) error {
	m.Trades = append(m.Trades, t)
	return nil
}

func (m *Memory) RecordEquity(e EquitySnapshot) error {
	m.Equities = append(m.Equities, e)
	return nil
}

func (m *Memory) Close() error { return nil }
