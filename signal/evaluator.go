package signal

import (
	"github.com/tradeforge/cryptobt/market"
)

// Evaluator applies a rule set to each bar. It retains exactly one
// prior value per referenced series so cross operators can compare the
// current and previous relation; nothing older is kept.
type Evaluator struct {
	instrument string
	rules      []Rule

	prev    map[string]float64
	hasPrev map[string]bool
}

// NewEvaluator validates the rule set against the available indicator
// keys and returns an evaluator. Validation failure is fatal to the
// session.
func NewEvaluator(instrument string, rules []Rule, indicatorKeys []string) (*Evaluator, error) {
	if err := ValidateRules(rules, indicatorKeys); err != nil {
		return nil, err
	}
	return &Evaluator{
		instrument: instrument,
		rules:      rules,
		prev:       make(map[string]float64),
		hasPrev:    make(map[string]bool),
	}, nil
}

// Reset clears crossover memory (fresh run).
func (e *Evaluator) Reset() {
	e.prev = make(map[string]float64)
	e.hasPrev = make(map[string]bool)
}

// Evaluate produces exactly one Signal for the bar. Rules whose series
// are still warming up are skipped. Among satisfied rules the highest
// priority wins; conflicting directions at that priority resolve to
// Flat rather than guessing.
func (e *Evaluator) Evaluate(b market.Bar, values map[string]float64) Signal {
	sig := Signal{Time: b.Time, Instrument: e.instrument, Direction: Flat}

	type hit struct {
		rule *Rule
	}
	var hits []hit

	for i := range e.rules {
		r := &e.rules[i]
		if e.satisfied(r, b, values) {
			hits = append(hits, hit{rule: r})
		}
	}

	// Remember current values for the next bar's cross checks before
	// deciding, so a skipped decision still advances memory.
	e.remember(b, values)

	if len(hits) == 0 {
		return sig
	}

	top := hits[0].rule.Priority
	for _, h := range hits[1:] {
		if h.rule.Priority > top {
			top = h.rule.Priority
		}
	}

	var dir Direction
	var first *Rule
	for _, h := range hits {
		if h.rule.Priority != top {
			continue
		}
		if first == nil {
			first = h.rule
			dir = h.rule.Direction
			continue
		}
		if h.rule.Direction != dir {
			// ambiguous double-signal at equal priority
			return sig
		}
	}

	strength := 0.0
	for _, h := range hits {
		if h.rule.Direction == dir {
			strength += h.rule.Weight
		}
	}
	if strength > 1 {
		strength = 1
	}

	sig.Direction = dir
	sig.Strength = strength
	sig.Rule = first.Name
	return sig
}

func (e *Evaluator) satisfied(r *Rule, b market.Bar, values map[string]float64) bool {
	left, ok := e.resolve(r.Cond.Left, b, values)
	if !ok {
		return false
	}
	right, ok := e.resolve(r.Cond.Right, b, values)
	if !ok {
		return false
	}

	switch r.Cond.Op {
	case Above:
		return left > right

	case Below:
		return left < right

	case CrossAbove, CrossBelow:
		pl, pr, ok := e.previous(r.Cond, b)
		if !ok {
			return false
		}
		if r.Cond.Op == CrossAbove {
			return left > right && pl <= pr
		}
		return left < right && pl >= pr

	default:
		return false
	}
}

// previous returns the prior-bar values of both operands, if recorded.
func (e *Evaluator) previous(c Condition, b market.Bar) (pl, pr float64, ok bool) {
	pl, ok = e.prevOperand(c.Left)
	if !ok {
		return 0, 0, false
	}
	pr, ok = e.prevOperand(c.Right)
	if !ok {
		return 0, 0, false
	}
	return pl, pr, true
}

func (e *Evaluator) prevOperand(o Operand) (float64, bool) {
	if o.isConst() {
		return *o.Const, true
	}
	if !e.hasPrev[o.Key] {
		return 0, false
	}
	return e.prev[o.Key], true
}

func (e *Evaluator) resolve(o Operand, b market.Bar, values map[string]float64) (float64, bool) {
	if o.isConst() {
		return *o.Const, true
	}
	switch o.Key {
	case "close":
		return b.Close, true
	case "open":
		return b.Open, true
	case "high":
		return b.High, true
	case "low":
		return b.Low, true
	case "volume":
		return b.Volume, true
	}
	v, ok := values[o.Key]
	return v, ok
}

func (e *Evaluator) remember(b market.Bar, values map[string]float64) {
	for k, v := range values {
		e.prev[k] = v
		e.hasPrev[k] = true
	}
	for k, v := range map[string]float64{
		"close": b.Close, "open": b.Open, "high": b.High,
		"low": b.Low, "volume": b.Volume,
	} {
		e.prev[k] = v
		e.hasPrev[k] = true
	}
}
