package indicators

import (
	"fmt"

	"github.com/tradeforge/cryptobt/market"
)

// Set is a registry of indicators keyed by Name(). It updates every
// member once per bar and exposes the ready values as a flat map, so
// warm-up simply shows up as an absent key downstream.
//
// A Set is owned by exactly one pipeline; it is not safe for concurrent
// use. Iteration order is registration order so updates stay
// deterministic across runs.
type Set struct {
	order []string
	byKey map[string]Indicator
}

func NewSet() *Set {
	return &Set{byKey: make(map[string]Indicator)}
}

// Add registers an indicator under its Name(). Registering the same
// key twice is rejected: indicator state must never be shared between
// two consumers that think they own it.
func (s *Set) Add(ind Indicator) error {
	key := ind.Name()
	if _, dup := s.byKey[key]; dup {
		return fmt.Errorf("indicators: duplicate key %q", key)
	}
	s.byKey[key] = ind
	s.order = append(s.order, key)
	return nil
}

// Get returns the indicator registered under key, or nil.
func (s *Set) Get(key string) Indicator {
	return s.byKey[key]
}

// Keys returns every value key the set can produce once warmed up,
// including MultiValue sub-keys.
func (s *Set) Keys() []string {
	var keys []string
	for _, k := range s.order {
		ind := s.byKey[k]
		if mv, ok := ind.(MultiValue); ok {
			keys = append(keys, multiKeys(k, mv)...)
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// Update feeds the bar to every registered indicator.
func (s *Set) Update(b market.Bar) {
	for _, k := range s.order {
		s.byKey[k].Update(b)
	}
}

// Reset clears every registered indicator (fresh backtest run).
func (s *Set) Reset() {
	for _, k := range s.order {
		s.byKey[k].Reset()
	}
}

// Values returns the current value of every ready indicator. Indicators
// still warming up are omitted entirely.
func (s *Set) Values() map[string]float64 {
	out := make(map[string]float64, len(s.order))
	for _, k := range s.order {
		ind := s.byKey[k]
		if !ind.Ready() {
			continue
		}
		if mv, ok := ind.(MultiValue); ok {
			for mk, v := range mv.Values() {
				out[mk] = v
			}
			continue
		}
		out[k] = ind.Value()
	}
	return out
}

func multiKeys(base string, mv MultiValue) []string {
	// Values() may return nil before warmup; the full key list comes
	// from a known shape per indicator.
	switch mv.(type) {
	case *MACD:
		return []string{base, base + ".signal", base + ".hist"}
	case *Bollinger:
		return []string{base, base + ".upper", base + ".lower"}
	case *SupportResistance:
		return []string{base + ".support", base + ".resistance"}
	case *Fibonacci:
		return []string{
			base + ".0", base + ".236", base + ".382",
			base + ".500", base + ".618", base + ".100",
		}
	case *PivotPoints:
		return []string{base, base + ".r1", base + ".s1", base + ".r2", base + ".s2"}
	default:
		return []string{base}
	}
}
