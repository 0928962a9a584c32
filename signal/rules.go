package signal

import (
	"encoding/json"
	"fmt"
)

// Op is the closed set of rule condition operators. Keeping this set
// closed lets the evaluator switch exhaustively instead of dispatching
// through an open interface.
type Op string

const (
	CrossAbove Op = "cross_above"
	CrossBelow Op = "cross_below"
	Above      Op = "above"
	Below      Op = "below"
)

// Operand is either a series reference (an indicator key from the
// indicator set, or one of the bar fields "close", "open", "high",
// "low", "volume") or a literal constant.
type Operand struct {
	Key   string   `json:"key,omitempty" yaml:"key,omitempty"`
	Const *float64 `json:"value,omitempty" yaml:"value,omitempty"`
}

func (o Operand) isConst() bool { return o.Const != nil }

// Condition compares two operands with an operator. Cross operators
// compare the current and previous relation of the two sides.
type Condition struct {
	Op    Op      `json:"op" yaml:"op"`
	Left  Operand `json:"left" yaml:"left"`
	Right Operand `json:"right" yaml:"right"`
}

// Rule is one declarative strategy rule: when Cond holds on this bar,
// recommend Direction. Higher Priority wins; Weight feeds signal
// strength.
type Rule struct {
	Name      string    `json:"name" yaml:"name"`
	Cond      Condition `json:"when" yaml:"when"`
	Direction Direction `json:"direction" yaml:"direction"`
	Priority  int       `json:"priority" yaml:"priority"`
	Weight    float64   `json:"weight" yaml:"weight"`
}

// barFields are the raw-bar series usable as operands alongside
// indicator keys.
var barFields = map[string]bool{
	"close": true, "open": true, "high": true, "low": true, "volume": true,
}

// ValidateRules checks a rule set against the keys the indicator set
// can produce. Any problem here is a configuration error and must stop
// the session before the first bar.
func ValidateRules(rules []Rule, indicatorKeys []string) error {
	if len(rules) == 0 {
		return fmt.Errorf("rules: rule set is empty")
	}

	known := make(map[string]bool, len(indicatorKeys))
	for _, k := range indicatorKeys {
		known[k] = true
	}

	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if r.Name == "" {
			return fmt.Errorf("rules[%d]: name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("rules[%d]: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = true

		if r.Direction != Long && r.Direction != Short {
			return fmt.Errorf("rule %q: direction must be long or short", r.Name)
		}
		if r.Weight < 0 || r.Weight > 1 {
			return fmt.Errorf("rule %q: weight %v outside [0,1]", r.Name, r.Weight)
		}

		switch r.Cond.Op {
		case CrossAbove, CrossBelow, Above, Below:
		default:
			return fmt.Errorf("rule %q: unknown op %q", r.Name, r.Cond.Op)
		}

		if r.Cond.Left.isConst() {
			return fmt.Errorf("rule %q: left operand must be a series", r.Name)
		}
		for side, o := range map[string]Operand{"left": r.Cond.Left, "right": r.Cond.Right} {
			if o.isConst() {
				continue
			}
			if o.Key == "" {
				return fmt.Errorf("rule %q: %s operand needs key or value", r.Name, side)
			}
			if !barFields[o.Key] && !known[o.Key] {
				return fmt.Errorf("rule %q: unknown series %q", r.Name, o.Key)
			}
		}
	}
	return nil
}

// UnmarshalYAML accepts "long"/"short" for rule directions.
func (d *Direction) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d Direction) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalJSON mirrors the YAML codec so saved JSON configs load back.
func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Direction) parse(s string) error {
	switch s {
	case "long":
		*d = Long
	case "short":
		*d = Short
	case "flat":
		*d = Flat
	default:
		return fmt.Errorf("rules: bad direction %q", s)
	}
	return nil
}
