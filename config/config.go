// Package config loads and validates the session configuration. Any
// problem found here is fatal before the first bar is processed.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tradeforge/cryptobt/engine"
	"github.com/tradeforge/cryptobt/indicators"
	"github.com/tradeforge/cryptobt/market"
	"github.com/tradeforge/cryptobt/risk"
	"github.com/tradeforge/cryptobt/signal"
	"github.com/tradeforge/cryptobt/sim"
)

// Config is the complete session configuration.
type Config struct {
	Account    AccountConfig    `json:"account" yaml:"account"`
	Strategy   StrategyConfig   `json:"strategy" yaml:"strategy"`
	Indicators IndicatorsConfig `json:"indicators" yaml:"indicators"`
	Rules      []signal.Rule    `json:"rules" yaml:"rules"`
	Risk       RiskConfig       `json:"risk" yaml:"risk"`
	Sim        SimConfig        `json:"simulation" yaml:"simulation"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Backtest   BacktestConfig   `json:"backtest" yaml:"backtest"`
	Live       LiveConfig       `json:"live" yaml:"live"`
}

type AccountConfig struct {
	ID       string  `json:"id" yaml:"id"`
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
}

type StrategyConfig struct {
	Instrument string `json:"instrument" yaml:"instrument"`
	Timeframe  string `json:"timeframe" yaml:"timeframe"` // e.g. "1h"

	// Stop/take distances as fractions of the entry price.
	StopPct float64 `json:"stop_pct" yaml:"stop_pct"`
	TakePct float64 `json:"take_pct" yaml:"take_pct"`

	// MinStrength gates entries on signal confidence.
	MinStrength float64 `json:"min_strength" yaml:"min_strength"`

	CancelPartialRest bool `json:"cancel_partial_rest" yaml:"cancel_partial_rest"`
}

// IndicatorsConfig enables an indicator by giving it a period; zero
// leaves it out of the set.
type IndicatorsConfig struct {
	MAFast int `json:"ma_fast" yaml:"ma_fast"`
	MASlow int `json:"ma_slow" yaml:"ma_slow"`
	EMA    int `json:"ema_period" yaml:"ema_period"`

	RSI int `json:"rsi_period" yaml:"rsi_period"`

	MACDFast   int `json:"macd_fast" yaml:"macd_fast"`
	MACDSlow   int `json:"macd_slow" yaml:"macd_slow"`
	MACDSignal int `json:"macd_signal" yaml:"macd_signal"`

	BBPeriod int     `json:"bb_period" yaml:"bb_period"`
	BBStdDev float64 `json:"bb_std_dev" yaml:"bb_std_dev"`

	ATR       int  `json:"atr_period" yaml:"atr_period"`
	Momentum  int  `json:"momentum_period" yaml:"momentum_period"`
	SR        int  `json:"sr_period" yaml:"sr_period"`
	Fibonacci int  `json:"fibonacci_period" yaml:"fibonacci_period"`
	Pivots    bool `json:"pivots" yaml:"pivots"`
}

type RiskConfig struct {
	RiskPct          float64 `json:"risk_pct" yaml:"risk_pct"`
	MaxRiskPct       float64 `json:"max_risk_pct" yaml:"max_risk_pct"`
	MaxExposurePct   float64 `json:"max_exposure_pct" yaml:"max_exposure_pct"`
	MaxOpenPositions int     `json:"max_open_positions" yaml:"max_open_positions"`
	MaxDailyLossPct  float64 `json:"max_daily_loss_pct" yaml:"max_daily_loss_pct"`
	MinRR            float64 `json:"min_rr" yaml:"min_rr"`
}

type SimConfig struct {
	SlippagePct         float64 `json:"slippage_pct" yaml:"slippage_pct"`
	FeePct              float64 `json:"fee_pct" yaml:"fee_pct"`
	FillAtOpen          bool    `json:"fill_at_open" yaml:"fill_at_open"`
	PartialFills        bool    `json:"partial_fills" yaml:"partial_fills"`
	MaxParticipationPct float64 `json:"max_participation_pct" yaml:"max_participation_pct"`
}

type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv", "sqlite", or "memory"
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	FillsFile  string `json:"fills_file,omitempty" yaml:"fills_file,omitempty"`
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
}

type BacktestConfig struct {
	Dataset  string    `json:"dataset" yaml:"dataset"`
	Start    time.Time `json:"start,omitempty" yaml:"start,omitempty"`
	End      time.Time `json:"end,omitempty" yaml:"end,omitempty"`
	CloseEnd bool      `json:"close_end" yaml:"close_end"`
	OrgPath  string    `json:"org_path,omitempty" yaml:"org_path,omitempty"`
}

type LiveConfig struct {
	Interval       string `json:"interval" yaml:"interval"` // kline interval, e.g. "1m"
	QueueSize      int    `json:"queue_size" yaml:"queue_size"`
	MetricsAddr    string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
	GatewayTimeout string `json:"gateway_timeout" yaml:"gateway_timeout"`
	GatewayRetries int    `json:"gateway_retries" yaml:"gateway_retries"`
	CloseOnStop    bool   `json:"close_on_stop" yaml:"close_on_stop"`
}

// LoadFromFile reads a config file, trying YAML first and falling back
// to JSON, then validates it.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the config as YAML (.yaml/.yml) or indented JSON.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// BuildIndicators constructs the indicator set from the enabled
// entries.
func (c *Config) BuildIndicators() (*indicators.Set, error) {
	set := indicators.NewSet()
	add := func(ind indicators.Indicator) error { return set.Add(ind) }

	ic := c.Indicators
	if ic.MAFast > 0 {
		if err := add(indicators.NewMA(ic.MAFast)); err != nil {
			return nil, err
		}
	}
	if ic.MASlow > 0 {
		if err := add(indicators.NewMA(ic.MASlow)); err != nil {
			return nil, err
		}
	}
	if ic.EMA > 0 {
		if err := add(indicators.NewEMA(ic.EMA)); err != nil {
			return nil, err
		}
	}
	if ic.RSI > 0 {
		if err := add(indicators.NewRSI(ic.RSI)); err != nil {
			return nil, err
		}
	}
	if ic.MACDFast > 0 {
		if err := add(indicators.NewMACD(ic.MACDFast, ic.MACDSlow, ic.MACDSignal)); err != nil {
			return nil, err
		}
	}
	if ic.BBPeriod > 0 {
		if err := add(indicators.NewBollinger(ic.BBPeriod, ic.BBStdDev)); err != nil {
			return nil, err
		}
	}
	if ic.ATR > 0 {
		if err := add(indicators.NewATR(ic.ATR)); err != nil {
			return nil, err
		}
	}
	if ic.Momentum > 0 {
		if err := add(indicators.NewMomentum(ic.Momentum)); err != nil {
			return nil, err
		}
	}
	if ic.SR > 0 {
		if err := add(indicators.NewSupportResistance(ic.SR)); err != nil {
			return nil, err
		}
	}
	if ic.Fibonacci > 0 {
		if err := add(indicators.NewFibonacci(ic.Fibonacci)); err != nil {
			return nil, err
		}
	}
	if ic.Pivots {
		if err := add(indicators.NewPivotPoints()); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Timeframe parses the strategy timeframe string.
func (c *Config) Timeframe() (time.Duration, error) {
	return ParseTimeframe(c.Strategy.Timeframe)
}

// ParseTimeframe accepts "1h", "15m", "1d" forms.
func ParseTimeframe(tf string) (time.Duration, error) {
	if tf == "" {
		return 0, fmt.Errorf("timeframe is required")
	}
	if strings.HasSuffix(tf, "d") {
		n := strings.TrimSuffix(tf, "d")
		d, err := time.ParseDuration(n + "h")
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("bad timeframe %q", tf)
		}
		return d * 24, nil
	}
	d, err := time.ParseDuration(tf)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("bad timeframe %q", tf)
	}
	return d, nil
}

// EngineConfig assembles the state machine configuration.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Instrument:        market.Instruments[c.Strategy.Instrument],
		Policy:            c.Policy(),
		StopPct:           c.Strategy.StopPct,
		TakePct:           c.Strategy.TakePct,
		MinStrength:       c.Strategy.MinStrength,
		CancelPartialRest: c.Strategy.CancelPartialRest,
		InitialBalance:    c.Account.Balance,
	}
}

func (c *Config) Policy() risk.Policy {
	return risk.Policy{
		RiskPct:          c.Risk.RiskPct,
		MaxRiskPct:       c.Risk.MaxRiskPct,
		MaxExposurePct:   c.Risk.MaxExposurePct,
		MaxOpenPositions: c.Risk.MaxOpenPositions,
		MaxDailyLossPct:  c.Risk.MaxDailyLossPct,
		MinRR:            c.Risk.MinRR,
	}
}

func (c *Config) SimConfig() sim.Config {
	return sim.Config{
		SlippagePct:         c.Sim.SlippagePct,
		FeePct:              c.Sim.FeePct,
		FillAtOpen:          c.Sim.FillAtOpen,
		PartialFills:        c.Sim.PartialFills,
		MaxParticipationPct: c.Sim.MaxParticipationPct,
	}
}

// Validate checks the whole configuration, including the rule set
// against the keys the configured indicators will produce.
func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}
	if c.Strategy.Instrument == "" {
		return fmt.Errorf("strategy.instrument is required")
	}
	if _, ok := market.Instruments[c.Strategy.Instrument]; !ok {
		return fmt.Errorf("unknown instrument: %s", c.Strategy.Instrument)
	}
	if _, err := c.Timeframe(); err != nil {
		return err
	}
	if c.Strategy.StopPct <= 0 || c.Strategy.StopPct >= 1 {
		return fmt.Errorf("strategy.stop_pct must be in (0,1)")
	}
	if c.Strategy.TakePct < 0 {
		return fmt.Errorf("strategy.take_pct must not be negative")
	}

	if c.Risk.RiskPct <= 0 || c.Risk.RiskPct > 1 {
		return fmt.Errorf("risk.risk_pct must be in (0,1]")
	}

	if err := c.SimConfig().Validate(); err != nil {
		return err
	}

	set, err := c.BuildIndicators()
	if err != nil {
		return err
	}
	if err := signal.ValidateRules(c.Rules, set.Keys()); err != nil {
		return err
	}

	switch c.Journal.Type {
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal.db_path required for sqlite")
		}
	case "csv":
		if c.Journal.FillsFile == "" || c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal fills_file, trades_file and equity_file required for csv")
		}
	case "memory", "":
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'memory'")
	}
	return nil
}

func f64(v float64) *float64 { return &v }

// Default mirrors the stock strategy: RSI extremes, MACD crosses, and
// Bollinger band touches, with confidence weights 0.3/0.3/0.2.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:       "SIM-001",
			Currency: "USDT",
			Balance:  10000,
		},
		Strategy: StrategyConfig{
			Instrument:  "BTC_USDT",
			Timeframe:   "1h",
			StopPct:     0.05,
			TakePct:     0.10,
			MinStrength: 0.5,
		},
		Indicators: IndicatorsConfig{
			RSI:        14,
			MACDFast:   12,
			MACDSlow:   26,
			MACDSignal: 9,
			BBPeriod:   20,
			BBStdDev:   2,
			Momentum:   14,
			SR:         20,
			Fibonacci:  14,
		},
		Rules: []signal.Rule{
			{
				Name: "rsi_oversold",
				Cond: signal.Condition{
					Op:    signal.CrossBelow,
					Left:  signal.Operand{Key: "RSI(14)"},
					Right: signal.Operand{Const: f64(30)},
				},
				Direction: signal.Long,
				Priority:  1,
				Weight:    0.3,
			},
			{
				Name: "rsi_overbought",
				Cond: signal.Condition{
					Op:    signal.CrossAbove,
					Left:  signal.Operand{Key: "RSI(14)"},
					Right: signal.Operand{Const: f64(70)},
				},
				Direction: signal.Short,
				Priority:  1,
				Weight:    0.3,
			},
			{
				Name: "macd_cross_up",
				Cond: signal.Condition{
					Op:    signal.CrossAbove,
					Left:  signal.Operand{Key: "MACD(12,26,9)"},
					Right: signal.Operand{Key: "MACD(12,26,9).signal"},
				},
				Direction: signal.Long,
				Priority:  1,
				Weight:    0.3,
			},
			{
				Name: "macd_cross_down",
				Cond: signal.Condition{
					Op:    signal.CrossBelow,
					Left:  signal.Operand{Key: "MACD(12,26,9)"},
					Right: signal.Operand{Key: "MACD(12,26,9).signal"},
				},
				Direction: signal.Short,
				Priority:  1,
				Weight:    0.3,
			},
			{
				Name: "bb_lower_touch",
				Cond: signal.Condition{
					Op:    signal.Below,
					Left:  signal.Operand{Key: "close"},
					Right: signal.Operand{Key: "BB(20,2).lower"},
				},
				Direction: signal.Long,
				Priority:  1,
				Weight:    0.2,
			},
			{
				Name: "bb_upper_touch",
				Cond: signal.Condition{
					Op:    signal.Above,
					Left:  signal.Operand{Key: "close"},
					Right: signal.Operand{Key: "BB(20,2).upper"},
				},
				Direction: signal.Short,
				Priority:  1,
				Weight:    0.2,
			},
		},
		Risk: RiskConfig{
			RiskPct:          0.01,
			MaxRiskPct:       0.02,
			MaxExposurePct:   0.5,
			MaxOpenPositions: 1,
			MaxDailyLossPct:  0.03,
		},
		Sim: SimConfig{
			SlippagePct: 0.0005,
			FeePct:      0.001,
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./cryptobt.db",
		},
		Backtest: BacktestConfig{
			CloseEnd: true,
		},
		Live: LiveConfig{
			Interval:       "1m",
			QueueSize:      64,
			GatewayTimeout: "5s",
			GatewayRetries: 2,
			CloseOnStop:    true,
		},
	}
}
