// Package live runs a trading session against a streaming feed: one
// decision-loop goroutine owns all mutable state, fed through a
// bounded queue, and orders go out through an execution gateway.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradeforge/cryptobt/broker"
	"github.com/tradeforge/cryptobt/market"
)

// Gateway submits orders to a venue (or a paper-trading stub).
type Gateway interface {
	Submit(ctx context.Context, o broker.Order) (broker.Fill, error)
}

// GatewayExecutor adapts a Gateway to the broker.Executor contract.
// Each submit gets a per-call timeout; timeouts are retried a bounded
// number of times and then converted to a rejection, so a slow venue
// can never block the decision loop.
type GatewayExecutor struct {
	gw      Gateway
	timeout time.Duration
	retries int
	log     *slog.Logger
}

var _ broker.Executor = (*GatewayExecutor)(nil)

func NewGatewayExecutor(gw Gateway, timeout time.Duration, retries int, log *slog.Logger) (*GatewayExecutor, error) {
	if gw == nil {
		return nil, errors.New("live: nil gateway")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("live: timeout %v must be positive", timeout)
	}
	if retries < 0 {
		return nil, fmt.Errorf("live: retries %d must be >= 0", retries)
	}
	if log == nil {
		log = slog.Default()
	}
	return &GatewayExecutor{gw: gw, timeout: timeout, retries: retries, log: log}, nil
}

func (g *GatewayExecutor) Execute(ctx context.Context, o broker.Order, _ market.Bar) (broker.Fill, bool, error) {
	var lastErr error

	for attempt := 0; attempt <= g.retries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		fl, err := g.gw.Submit(callCtx, o)
		cancel()

		if err == nil {
			return fl, true, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return broker.Fill{}, false, ctx.Err()
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			// venue refusal, not a timeout: no point retrying
			break
		}
		g.log.Warn("gateway timeout", "order", o.ID, "attempt", attempt+1)
	}

	return broker.Fill{}, false, fmt.Errorf("%w: %v", broker.ErrRejected, lastErr)
}
