package cmd

import (
	"fmt"

	"github.com/tradeforge/cryptobt/broker"
	"github.com/tradeforge/cryptobt/config"
	"github.com/tradeforge/cryptobt/engine"
	"github.com/tradeforge/cryptobt/indicators"
	"github.com/tradeforge/cryptobt/journal"
	"github.com/tradeforge/cryptobt/perf"
	"github.com/tradeforge/cryptobt/signal"
)

// pipeline is the per-instrument processing stack shared by the
// backtest and live commands.
type pipeline struct {
	Engine     *engine.Engine
	Indicators *indicators.Set
	Evaluator  *signal.Evaluator
	Accountant *perf.Accountant
	Journal    journal.Journal
}

func buildPipeline(cfg *config.Config, exec broker.Executor) (*pipeline, error) {
	jrnl, err := openJournal(cfg)
	if err != nil {
		return nil, fmt.Errorf("create journal: %w", err)
	}

	eng, err := engine.New(cfg.EngineConfig(), exec, jrnl)
	if err != nil {
		jrnl.Close()
		return nil, err
	}

	set, err := cfg.BuildIndicators()
	if err != nil {
		jrnl.Close()
		return nil, err
	}

	eval, err := signal.NewEvaluator(cfg.Strategy.Instrument, cfg.Rules, set.Keys())
	if err != nil {
		jrnl.Close()
		return nil, err
	}

	return &pipeline{
		Engine:     eng,
		Indicators: set,
		Evaluator:  eval,
		Accountant: perf.NewAccountant(cfg.Account.Balance),
		Journal:    jrnl,
	}, nil
}

func openJournal(cfg *config.Config) (journal.Journal, error) {
	switch cfg.Journal.Type {
	case "csv":
		return journal.NewCSV(cfg.Journal.FillsFile, cfg.Journal.TradesFile, cfg.Journal.EquityFile)
	case "sqlite":
		return journal.NewSQLite(cfg.Journal.DBPath)
	default:
		return journal.NewMemory(), nil
	}
}
