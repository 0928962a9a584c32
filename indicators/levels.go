package indicators

import (
	"fmt"

	"github.com/tradeforge/cryptobt/market"
)

// Momentum is the close-to-close price change over the period.
type Momentum struct {
	period int
	closes []float64
}

func NewMomentum(period int) *Momentum {
	return &Momentum{
		period: period,
		closes: make([]float64, 0, period+1),
	}
}

func (m *Momentum) Name() string {
	return fmt.Sprintf("MOM(%d)", m.period)
}

func (m *Momentum) Warmup() int {
	return m.period + 1
}

func (m *Momentum) Reset() {
	m.closes = m.closes[:0]
}

func (m *Momentum) Update(b market.Bar) {
	m.closes = append(m.closes, b.Close)
	if len(m.closes) > m.period+1 {
		m.closes = m.closes[1:]
	}
}

func (m *Momentum) Ready() bool {
	return len(m.closes) >= m.period+1
}

func (m *Momentum) Value() float64 {
	if !m.Ready() {
		return 0
	}
	return m.closes[len(m.closes)-1] - m.closes[0]
}

// SupportResistance tracks the rolling low minimum (support) and high
// maximum (resistance) over the window.
type SupportResistance struct {
	period int
	bars   []market.Bar
}

func NewSupportResistance(period int) *SupportResistance {
	return &SupportResistance{
		period: period,
		bars:   make([]market.Bar, 0, period),
	}
}

func (sr *SupportResistance) Name() string {
	return fmt.Sprintf("SR(%d)", sr.period)
}

func (sr *SupportResistance) Warmup() int {
	return sr.period
}

func (sr *SupportResistance) Reset() {
	sr.bars = sr.bars[:0]
}

func (sr *SupportResistance) Update(b market.Bar) {
	sr.bars = append(sr.bars, b)
	if len(sr.bars) > sr.period {
		sr.bars = sr.bars[1:]
	}
}

func (sr *SupportResistance) Ready() bool {
	return len(sr.bars) >= sr.period
}

// Value returns the support level; use Values() for both bands.
func (sr *SupportResistance) Value() float64 {
	return sr.Support()
}

func (sr *SupportResistance) Support() float64 {
	if !sr.Ready() {
		return 0
	}
	lo := sr.bars[0].Low
	for _, b := range sr.bars[1:] {
		if b.Low < lo {
			lo = b.Low
		}
	}
	return lo
}

func (sr *SupportResistance) Resistance() float64 {
	if !sr.Ready() {
		return 0
	}
	hi := sr.bars[0].High
	for _, b := range sr.bars[1:] {
		if b.High > hi {
			hi = b.High
		}
	}
	return hi
}

func (sr *SupportResistance) Values() map[string]float64 {
	if !sr.Ready() {
		return nil
	}
	name := sr.Name()
	return map[string]float64{
		name + ".support":    sr.Support(),
		name + ".resistance": sr.Resistance(),
	}
}

// Fibonacci computes retracement levels from the rolling high maximum
// and low minimum over the window: level = low + (high-low) * ratio
// for ratios 0, 0.236, 0.382, 0.5, 0.618, 1.
type Fibonacci struct {
	period int
	bars   []market.Bar
}

func NewFibonacci(period int) *Fibonacci {
	return &Fibonacci{
		period: period,
		bars:   make([]market.Bar, 0, period),
	}
}

func (f *Fibonacci) Name() string {
	return fmt.Sprintf("FIB(%d)", f.period)
}

func (f *Fibonacci) Warmup() int {
	return f.period
}

func (f *Fibonacci) Reset() {
	f.bars = f.bars[:0]
}

func (f *Fibonacci) Update(b market.Bar) {
	f.bars = append(f.bars, b)
	if len(f.bars) > f.period {
		f.bars = f.bars[1:]
	}
}

func (f *Fibonacci) Ready() bool {
	return len(f.bars) >= f.period
}

func (f *Fibonacci) rng() (lo, hi float64) {
	lo, hi = f.bars[0].Low, f.bars[0].High
	for _, b := range f.bars[1:] {
		if b.Low < lo {
			lo = b.Low
		}
		if b.High > hi {
			hi = b.High
		}
	}
	return lo, hi
}

// Value returns the 50% retracement; use Values() for the ladder.
func (f *Fibonacci) Value() float64 {
	if !f.Ready() {
		return 0
	}
	lo, hi := f.rng()
	return lo + (hi-lo)*0.5
}

func (f *Fibonacci) Values() map[string]float64 {
	if !f.Ready() {
		return nil
	}
	lo, hi := f.rng()
	diff := hi - lo
	name := f.Name()
	return map[string]float64{
		name + ".0":   lo,
		name + ".236": lo + diff*0.236,
		name + ".382": lo + diff*0.382,
		name + ".500": lo + diff*0.5,
		name + ".618": lo + diff*0.618,
		name + ".100": hi,
	}
}

// PivotPoints computes classic floor-trader pivots from the previous
// bar: PP = (H+L+C)/3, R1 = 2PP-L, S1 = 2PP-H, R2 = PP+(H-L), S2 = PP-(H-L).
type PivotPoints struct {
	prev    market.Bar
	hasPrev bool
	cur     market.Bar
	count   int
}

func NewPivotPoints() *PivotPoints {
	return &PivotPoints{}
}

func (p *PivotPoints) Name() string { return "PIVOT" }

func (p *PivotPoints) Warmup() int { return 2 }

func (p *PivotPoints) Reset() {
	p.hasPrev = false
	p.count = 0
}

func (p *PivotPoints) Update(b market.Bar) {
	if p.count > 0 {
		p.prev = p.cur
		p.hasPrev = true
	}
	p.cur = b
	p.count++
}

func (p *PivotPoints) Ready() bool {
	return p.hasPrev
}

// Value returns the pivot point; use Values() for the full ladder.
func (p *PivotPoints) Value() float64 {
	if !p.Ready() {
		return 0
	}
	return (p.prev.High + p.prev.Low + p.prev.Close) / 3
}

func (p *PivotPoints) Values() map[string]float64 {
	if !p.Ready() {
		return nil
	}
	pp := p.Value()
	rng := p.prev.High - p.prev.Low
	name := p.Name()
	return map[string]float64{
		name:         pp,
		name + ".r1": 2*pp - p.prev.Low,
		name + ".s1": 2*pp - p.prev.High,
		name + ".r2": pp + rng,
		name + ".s2": pp - rng,
	}
}
