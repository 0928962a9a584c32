// Package engine is the position and order state machine: it turns
// signals into orders, routes them through an executor, and tracks the
// per-instrument position lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradeforge/cryptobt/broker"
	"github.com/tradeforge/cryptobt/internal/id"
	"github.com/tradeforge/cryptobt/journal"
	"github.com/tradeforge/cryptobt/market"
	"github.com/tradeforge/cryptobt/risk"
	"github.com/tradeforge/cryptobt/signal"
)

// State is the per-instrument lifecycle state.
type State int8

const (
	Flat State = iota
	PendingEntry
	Open
	PendingExit
)

func (s State) String() string {
	switch s {
	case PendingEntry:
		return "pending_entry"
	case Open:
		return "open"
	case PendingExit:
		return "pending_exit"
	default:
		return "flat"
	}
}

// Position is one open trade. EntryPrice is volume-weighted across
// partial entry fills.
type Position struct {
	ID         string
	Instrument string
	Side       broker.Side
	EntryPrice float64
	Quantity   float64
	EntryTime  time.Time
	Stop       float64 // 0 means none
	Take       float64 // 0 means none
	Fees       float64 // accumulated entry fees
}

// Unrealized is the open P/L at the given price, before fees.
func (p Position) Unrealized(px float64) float64 {
	return float64(p.Side) * (px - p.EntryPrice) * p.Quantity
}

// Notional is the open exposure at entry prices.
func (p Position) Notional() float64 {
	return p.EntryPrice * p.Quantity
}

type Config struct {
	Instrument market.InstrumentMeta
	Policy     risk.Policy

	// Stop and take distances as fractions of the entry price.
	// Zero disables the level.
	StopPct float64
	TakePct float64

	// MinStrength gates entries on signal confidence.
	MinStrength float64

	// CancelPartialRest cancels the unfilled remainder of an entry
	// order after a partial fill instead of leaving it working.
	CancelPartialRest bool

	InitialBalance float64
}

func (c Config) Validate() error {
	if c.Instrument.Name == "" {
		return errors.New("engine: instrument required")
	}
	if c.StopPct < 0 || c.StopPct >= 1 {
		return fmt.Errorf("engine: stop_pct %v outside [0,1)", c.StopPct)
	}
	if c.TakePct < 0 {
		return fmt.Errorf("engine: take_pct %v negative", c.TakePct)
	}
	if c.MinStrength < 0 || c.MinStrength > 1 {
		return fmt.Errorf("engine: min_strength %v outside [0,1]", c.MinStrength)
	}
	if c.InitialBalance <= 0 {
		return fmt.Errorf("engine: initial_balance %v must be positive", c.InitialBalance)
	}
	return nil
}

// Engine runs the state machine for a single instrument. All methods
// must be called from one goroutine; in live mode that is the decision
// loop.
type Engine struct {
	cfg  Config
	exec broker.Executor
	jrnl journal.Journal

	state State
	pos   Position

	entryOrder broker.Order
	exitOrder  broker.Order
	exitReason string

	// exit fills accumulate until the exit order completes
	exitQty    float64
	exitVolPx  float64 // sum of price*qty
	exitFees   float64

	balance     float64
	realized    float64
	day         time.Time
	dayRealized float64

	// Orders is the append-only order history, including rejected and
	// cancelled orders.
	Orders []broker.Order
}

func New(cfg Config, exec broker.Executor, jrnl journal.Journal) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, errors.New("engine: nil executor")
	}
	if jrnl == nil {
		jrnl = journal.NewMemory()
	}
	return &Engine{
		cfg:     cfg,
		exec:    exec,
		jrnl:    jrnl,
		state:   Flat,
		balance: cfg.InitialBalance,
	}, nil
}

func (e *Engine) State() State        { return e.state }
func (e *Engine) Balance() float64    { return e.balance }
func (e *Engine) Realized() float64   { return e.realized }
func (e *Engine) Position() (Position, bool) {
	if e.state == Open || e.state == PendingExit {
		return e.pos, true
	}
	return Position{}, false
}

// Equity is balance plus unrealized P/L at the given mark price.
func (e *Engine) Equity(markPx float64) float64 {
	eq := e.balance
	if p, ok := e.Position(); ok {
		eq += p.Unrealized(markPx)
	}
	return eq
}

// OnBar advances the state machine for a new bar: protective exits are
// checked before anything else, then resting orders get a chance to
// fill. Returned fills are already journaled.
func (e *Engine) OnBar(ctx context.Context, b market.Bar) ([]broker.Fill, error) {
	e.rollDay(b.Time)

	var fills []broker.Fill

	// Stop/take breach has precedence over signals and resting entries.
	if e.state == Open {
		if exitPx, typ, reason, hit := e.checkProtective(b); hit {
			e.beginExit(b.Time, typ, exitPx, reason)
		}
	}

	switch e.state {
	case PendingEntry, Open:
		if e.entryWorking() {
			fl, err := e.tryEntry(ctx, b)
			if err != nil {
				return fills, err
			}
			fills = append(fills, fl...)
		}
	}

	if e.state == PendingExit {
		fl, err := e.tryExit(ctx, b)
		if err != nil {
			return fills, err
		}
		fills = append(fills, fl...)
	}

	return fills, nil
}

// OnSignal reacts to the bar's signal after OnBar has run. Opposing
// signals close the open position; entry signals open a new one when
// the instrument is flat and the risk policy allows it.
func (e *Engine) OnSignal(ctx context.Context, sig signal.Signal, b market.Bar) ([]broker.Fill, error) {
	if sig.Direction == signal.Flat {
		return nil, nil
	}

	side := broker.Side(sig.Direction)

	if e.state == Open && side != e.pos.Side {
		e.beginExit(b.Time, broker.MarketOrder, 0, "opposing_signal")
		return e.tryExit(ctx, b)
	}

	if e.state != Flat {
		return nil, nil
	}
	if sig.Strength < e.cfg.MinStrength {
		return nil, nil
	}

	return e.enter(ctx, side, sig.Rule, b)
}

// CloseAll force-closes the position at market and cancels any working
// entry. Used at the end of a backtest and on live shutdown.
func (e *Engine) CloseAll(ctx context.Context, b market.Bar, reason string) ([]broker.Fill, error) {
	if e.entryWorking() {
		e.cancelEntry("close_all")
	}

	switch e.state {
	case Open:
		e.beginExit(b.Time, broker.MarketOrder, 0, reason)
		return e.tryExit(ctx, b)
	case PendingExit:
		return e.tryExit(ctx, b)
	case PendingEntry:
		e.state = Flat
	}
	return nil, nil
}

func (e *Engine) enter(ctx context.Context, side broker.Side, rule string, b market.Bar) ([]broker.Fill, error) {
	entry := b.Close
	stop := protectiveLevel(entry, side, e.cfg.StopPct, true)
	take := protectiveLevel(entry, side, e.cfg.TakePct, false)

	sized := risk.Size(risk.Inputs{
		Equity:  e.Equity(b.Close),
		RiskPct: e.cfg.Policy.RiskPct,
		Entry:   entry,
		Stop:    stop,
		LotStep: e.cfg.Instrument.LotStep,
	})
	if sized.Quantity <= 0 {
		return nil, nil
	}
	if min := e.cfg.Instrument.MinNotional; min > 0 && sized.Quantity*entry < min {
		return nil, nil
	}

	openPositions := 0
	exposure := 0.0
	if p, ok := e.Position(); ok {
		openPositions = 1
		exposure = p.Notional()
	}
	decision := risk.Evaluate(e.cfg.Policy, risk.TradeIntent{
		Now:        b.Time,
		Instrument: e.cfg.Instrument.Name,
		Quantity:   sized.Quantity,
		Entry:      entry,
		Stop:       stop,
		Take:       take,
	}, risk.AccountSnapshot{
		Balance:       e.balance,
		Equity:        e.Equity(b.Close),
		OpenExposure:  exposure,
		OpenPositions: openPositions,
	}, risk.PnLSnapshot{
		DayRealized: e.dayRealized,
	})

	o := broker.Order{
		ID:         id.New(),
		Instrument: e.cfg.Instrument.Name,
		Side:       side,
		Quantity:   sized.Quantity,
		Type:       broker.MarketOrder,
		Status:     broker.Pending,
		Reason:     rule,
		Created:    b.Time,
	}

	if !decision.Allowed {
		o.Status = broker.Rejected
		o.Reason = decision.Violations[0].Code
		e.Orders = append(e.Orders, o)
		return nil, nil
	}

	e.entryOrder = o
	e.pos = Position{
		ID:         id.New(),
		Instrument: e.cfg.Instrument.Name,
		Side:       side,
		Stop:       stop,
		Take:       take,
	}
	e.state = PendingEntry

	return e.tryEntry(ctx, b)
}

// tryEntry executes the working entry order against the bar and folds
// any fill into the position.
func (e *Engine) tryEntry(ctx context.Context, b market.Bar) ([]broker.Fill, error) {
	fl, ok, err := e.exec.Execute(ctx, e.entryOrder, b)
	if err != nil {
		if errors.Is(err, broker.ErrRejected) {
			e.rejectEntry(err)
			return nil, nil
		}
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	if err := e.jrnl.RecordFill(fl); err != nil {
		return nil, err
	}

	// volume-weighted entry across partials
	prevNotional := e.pos.EntryPrice * e.pos.Quantity
	e.pos.Quantity += fl.Quantity
	e.pos.EntryPrice = (prevNotional + fl.Price*fl.Quantity) / e.pos.Quantity
	e.pos.Fees += fl.Fee
	if e.pos.EntryTime.IsZero() {
		e.pos.EntryTime = fl.Time
	}
	e.pos.Stop = protectiveLevel(e.pos.EntryPrice, e.pos.Side, e.cfg.StopPct, true)
	e.pos.Take = protectiveLevel(e.pos.EntryPrice, e.pos.Side, e.cfg.TakePct, false)

	e.entryOrder.FilledQty += fl.Quantity

	if e.entryOrder.Remaining() <= 0 {
		e.entryOrder.Status = broker.Filled
		e.Orders = append(e.Orders, e.entryOrder)
		e.entryOrder = broker.Order{}
	} else {
		e.entryOrder.Status = broker.PartiallyFilled
		if e.cfg.CancelPartialRest {
			e.cancelEntry("partial_rest")
		}
	}
	e.state = Open

	return []broker.Fill{fl}, nil
}

func (e *Engine) rejectEntry(err error) {
	e.entryOrder.Status = broker.Rejected
	e.entryOrder.Reason = err.Error()
	e.Orders = append(e.Orders, e.entryOrder)
	e.entryOrder = broker.Order{}

	if e.pos.Quantity > 0 {
		// partial fill already opened the position; keep it
		e.state = Open
		return
	}
	e.pos = Position{}
	e.state = Flat
}

func (e *Engine) cancelEntry(reason string) {
	e.entryOrder.Status = broker.Cancelled
	e.entryOrder.Reason = reason
	e.Orders = append(e.Orders, e.entryOrder)
	e.entryOrder = broker.Order{}

	if e.state == PendingEntry && e.pos.Quantity == 0 {
		e.pos = Position{}
		e.state = Flat
	}
}

func (e *Engine) entryWorking() bool {
	return e.entryOrder.ID != "" && !e.entryOrder.Status.Terminal() && e.entryOrder.Remaining() > 0
}

// checkProtective models stop/take hits inside the bar. If both are
// hit in the same bar, the stop wins (worst case for the trader).
func (e *Engine) checkProtective(b market.Bar) (exitPx float64, typ broker.OrderType, reason string, hit bool) {
	p := e.pos
	hasStop := p.Stop > 0
	hasTake := p.Take > 0

	var stopHit, takeHit bool
	switch p.Side {
	case broker.Buy:
		stopHit = hasStop && b.Low <= p.Stop
		takeHit = hasTake && b.High >= p.Take
	case broker.Sell:
		stopHit = hasStop && b.High >= p.Stop
		takeHit = hasTake && b.Low <= p.Take
	}

	if stopHit {
		return p.Stop, broker.StopOrder, "stop_loss", true
	}
	if takeHit {
		return p.Take, broker.LimitOrder, "take_profit", true
	}
	return 0, "", "", false
}

// beginExit emits the closing order and moves to PendingExit. A
// working entry remainder is cancelled first so fills can never push
// the position past its intended size while it is closing.
func (e *Engine) beginExit(now time.Time, typ broker.OrderType, px float64, reason string) {
	if e.entryWorking() {
		e.cancelEntry(reason)
	}

	e.exitOrder = broker.Order{
		ID:         id.New(),
		Instrument: e.pos.Instrument,
		Side:       -e.pos.Side,
		Quantity:   e.pos.Quantity,
		Type:       typ,
		Price:      px,
		Status:     broker.Pending,
		Reason:     reason,
		Created:    now,
	}
	e.exitReason = reason
	e.exitQty = 0
	e.exitVolPx = 0
	e.exitFees = 0
	e.state = PendingExit
}

func (e *Engine) tryExit(ctx context.Context, b market.Bar) ([]broker.Fill, error) {
	fl, ok, err := e.exec.Execute(ctx, e.exitOrder, b)
	if err != nil {
		if errors.Is(err, broker.ErrRejected) {
			// venue refused the close; return to Open and retry on a
			// later bar
			e.exitOrder.Status = broker.Rejected
			e.exitOrder.Reason = err.Error()
			e.Orders = append(e.Orders, e.exitOrder)
			e.exitOrder = broker.Order{}
			e.state = Open
			return nil, nil
		}
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	if err := e.jrnl.RecordFill(fl); err != nil {
		return nil, err
	}

	e.exitOrder.FilledQty += fl.Quantity
	e.exitQty += fl.Quantity
	e.exitVolPx += fl.Price * fl.Quantity
	e.exitFees += fl.Fee

	if e.exitOrder.Remaining() > 0 {
		e.exitOrder.Status = broker.PartiallyFilled
		return []broker.Fill{fl}, nil
	}

	e.exitOrder.Status = broker.Filled
	e.Orders = append(e.Orders, e.exitOrder)
	e.exitOrder = broker.Order{}

	if err := e.closePosition(fl.Time); err != nil {
		return []broker.Fill{fl}, err
	}
	return []broker.Fill{fl}, nil
}

func (e *Engine) closePosition(closeTime time.Time) error {
	p := e.pos
	exitPx := e.exitVolPx / e.exitQty
	gross := float64(p.Side) * (exitPx - p.EntryPrice) * p.Quantity
	fees := p.Fees + e.exitFees
	net := gross - fees

	e.balance += net
	e.realized += net
	e.dayRealized += net

	err := e.jrnl.RecordTrade(journal.TradeRecord{
		PositionID: p.ID,
		Instrument: p.Instrument,
		Side:       sideName(p.Side),
		Quantity:   p.Quantity,
		EntryPrice: p.EntryPrice,
		ExitPrice:  exitPx,
		OpenTime:   p.EntryTime,
		CloseTime:  closeTime,
		RealizedPL: net,
		Fees:       fees,
		Reason:     e.exitReason,
	})

	e.pos = Position{}
	e.state = Flat
	return err
}

// rollDay resets the daily realized P/L tracker when the UTC date
// changes.
func (e *Engine) rollDay(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(e.day) {
		e.day = day
		e.dayRealized = 0
	}
}

func protectiveLevel(entry float64, side broker.Side, pct float64, isStop bool) float64 {
	if pct <= 0 {
		return 0
	}
	dir := float64(side)
	if isStop {
		return entry * (1 - dir*pct)
	}
	return entry * (1 + dir*pct)
}

func sideName(s broker.Side) string {
	if s == broker.Sell {
		return "short"
	}
	return "long"
}
