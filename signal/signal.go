// Package signal maps indicator values and bars to discrete trading
// signals through a declarative rule set.
package signal

import (
	"time"
)

// Direction is the side a signal recommends.
type Direction int8

const (
	Flat  Direction = 0
	Long  Direction = 1
	Short Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// Signal is the per-bar output of the evaluator. Immutable; exactly one
// is produced per bar per strategy instance.
type Signal struct {
	Time       time.Time
	Instrument string
	Direction  Direction
	Strength   float64 // 0..1 confidence from satisfied rule weights
	Rule       string  // originating rule name, empty when flat
}
