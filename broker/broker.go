// Package broker defines the order, fill, and account contracts shared
// by the execution simulator, the live gateway, and the position state
// machine.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/tradeforge/cryptobt/market"
)

// Side: +1 buy, -1 sell.
type Side int8

const (
	Buy  Side = +1
	Sell Side = -1
)

func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

type OrderType string

const (
	MarketOrder OrderType = "market"
	LimitOrder  OrderType = "limit"
	StopOrder   OrderType = "stop"
)

type OrderStatus string

const (
	Pending         OrderStatus = "pending"
	Filled          OrderStatus = "filled"
	PartiallyFilled OrderStatus = "partially_filled"
	Rejected        OrderStatus = "rejected"
	Cancelled       OrderStatus = "cancelled"
)

// Terminal reports whether no further fills can arrive for this status.
func (s OrderStatus) Terminal() bool {
	return s == Filled || s == Rejected || s == Cancelled
}

// Order is a request to trade. Price is the limit/stop price; zero for
// market orders. FilledQty accumulates across partial fills and never
// exceeds Quantity.
type Order struct {
	ID         string
	Instrument string
	Side       Side
	Quantity   float64
	Type       OrderType
	Price      float64
	Status     OrderStatus
	FilledQty  float64
	Reason     string // originating rule or exit reason
	Created    time.Time
}

// Remaining is the unfilled quantity.
func (o Order) Remaining() float64 {
	return o.Quantity - o.FilledQty
}

// Fill is one execution against an order. Immutable; appended to the
// journal ledger.
type Fill struct {
	OrderID    string
	Instrument string
	Side       Side
	Price      float64
	Quantity   float64
	Fee        float64
	Time       time.Time
}

// Notional is the executed value in quote currency.
func (f Fill) Notional() float64 {
	return f.Price * f.Quantity
}

// Account is the trading account state in quote (settlement) currency.
type Account struct {
	ID       string
	Currency string
	Balance  float64 // realized cash
	Equity   float64 // balance + unrealized P/L
}

// ErrRejected marks an order the venue (simulated or real) refused.
// The state machine converts it into Rejected status and returns the
// instrument to its prior stable state; it never crashes the pipeline.
var ErrRejected = errors.New("order rejected")

// Executor fills orders. The simulator fills against the supplied bar;
// a live gateway submits to the venue and may ignore the bar. ok=false
// with nil error means the order rests (no fill this bar).
type Executor interface {
	Execute(ctx context.Context, o Order, b market.Bar) (fill Fill, ok bool, err error)
}
