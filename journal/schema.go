// journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS fills (
	order_id TEXT NOT NULL,
	instrument TEXT NOT NULL,
	side TEXT NOT NULL,
	price REAL NOT NULL,
	quantity REAL NOT NULL,
	fee REAL NOT NULL,
	time DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	position_id TEXT PRIMARY KEY,
	instrument TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	open_time DATETIME NOT NULL,
	close_time DATETIME NOT NULL,
	realized_pl REAL NOT NULL,
	fees REAL NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
	time DATETIME NOT NULL,
	balance REAL NOT NULL,
	realized REAL NOT NULL,
	unrealized REAL NOT NULL,
	equity REAL NOT NULL,
	drawdown REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS backtest_runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	instrument TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	dataset TEXT NOT NULL,
	config BLOB,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	start_balance REAL NOT NULL,
	end_balance REAL NOT NULL,
	net_pl REAL NOT NULL,
	return_pct REAL NOT NULL,
	win_rate REAL NOT NULL,
	profit_factor REAL NOT NULL,
	max_dd_pct REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fills_time ON fills(time);
CREATE INDEX IF NOT EXISTS idx_trades_close_time ON trades(close_time);
CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
