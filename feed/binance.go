package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/tradeforge/cryptobt/market"
)

const binanceWSURL = "wss://stream.binance.com:9443/ws"

// BinanceFeed streams closed klines for one symbol over the Binance
// websocket. Unclosed (still forming) klines are discarded so the
// pipeline only ever sees final bars, matching backtest semantics.
type BinanceFeed struct {
	symbol    string // exchange form, e.g. BTCUSDT
	interval  string // e.g. 1m, 1h
	timeframe time.Duration

	ws     *wsClient
	bars   chan market.Event
	cancel context.CancelFunc

	prev time.Time
	log  *slog.Logger
}

// NewBinanceFeed connects and subscribes to <symbol>@kline_<interval>.
// The instrument name is the internal form, e.g. "BTC_USDT".
func NewBinanceFeed(ctx context.Context, instrument, interval string, log *slog.Logger) (*BinanceFeed, error) {
	if log == nil {
		log = slog.Default()
	}
	timeframe, err := intervalDuration(interval)
	if err != nil {
		return nil, err
	}
	symbol := strings.ToUpper(strings.ReplaceAll(instrument, "_", ""))

	f := &BinanceFeed{
		symbol:    symbol,
		interval:  interval,
		timeframe: timeframe,
		ws:        newWSClient("binance", binanceWSURL, log),
		bars:      make(chan market.Event, 256),
		log:       log.With("feed", "binance", "symbol", symbol),
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	go f.ws.run(runCtx, f.subscribe)
	go f.parseLoop()

	return f, nil
}

// SetReconnectHook is called every time the stream has to redial,
// whether the dial fails or an established connection drops.
func (f *BinanceFeed) SetReconnectHook(fn func()) {
	f.ws.setOnReconnect(fn)
}

func (f *BinanceFeed) subscribe() error {
	payload := map[string]any{
		"method": "SUBSCRIBE",
		"params": []string{strings.ToLower(f.symbol) + "@kline_" + f.interval},
		"id":     time.Now().Unix(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.ws.send(data)
	return nil
}

// Next blocks until the next closed kline arrives. ok=false means the
// feed has been closed.
func (f *BinanceFeed) Next() (market.Event, bool, error) {
	ev, ok := <-f.bars
	return ev, ok, nil
}

// Bars exposes the event channel for select-based consumers (the live
// session loop).
func (f *BinanceFeed) Bars() <-chan market.Event {
	return f.bars
}

func (f *BinanceFeed) Close() error {
	f.cancel()
	return nil
}

func (f *BinanceFeed) parseLoop() {
	defer close(f.bars)

	for raw := range f.ws.readCh {
		b, ok, err := parseKline(raw)
		if err != nil {
			f.log.Warn("bad kline message", "err", err)
			continue
		}
		if !ok {
			continue
		}

		// drop duplicates and late bars after a reconnect replay
		if !f.prev.IsZero() && !b.Time.After(f.prev) {
			continue
		}
		gap := 0
		if !f.prev.IsZero() {
			gap = int(b.Time.Sub(f.prev)/f.timeframe) - 1
			if gap < 0 {
				gap = 0
			}
		}
		f.prev = b.Time

		f.bars <- market.Event{Bar: b, GapBars: gap}
	}
}

type binanceKline struct {
	Event string `json:"e"`
	Kline struct {
		Start  int64  `json:"t"`
		Open   string `json:"o"`
		High   string `json:"h"`
		Low    string `json:"l"`
		Close  string `json:"c"`
		Volume string `json:"v"`
		Closed bool   `json:"x"`
	} `json:"k"`
}

// parseKline returns ok=false for non-kline messages and klines that
// are still forming.
func parseKline(raw []byte) (market.Bar, bool, error) {
	var m binanceKline
	if err := json.Unmarshal(raw, &m); err != nil {
		return market.Bar{}, false, err
	}
	if m.Event != "kline" || !m.Kline.Closed {
		return market.Bar{}, false, nil
	}

	k := m.Kline
	vals := make([]float64, 5)
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return market.Bar{}, false, fmt.Errorf("feed: bad kline field %q: %w", s, err)
		}
		vals[i] = v
	}

	return market.Bar{
		Time:   time.UnixMilli(k.Start).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, true, nil
}

func intervalDuration(interval string) (time.Duration, error) {
	if interval == "" {
		return 0, fmt.Errorf("feed: interval required")
	}
	unit := interval[len(interval)-1]
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("feed: bad interval %q", interval)
	}
	switch unit {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("feed: bad interval %q", interval)
	}
}
