package brokerobs

import (
	"context"
	"fmt"

	"smartapi-basket/internal/interfaces"
	"smartapi-basket/internal/logger"
	"smartapi-basket/internal/trace"
	"smartapi-basket/internal/types"
)

// observableBroker wraps a Broker with observability (logging & tracing)
type observableBroker struct {
	broker interfaces.Broker
	name   string
}

// Compile-time interface check
var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware. name identifies the
// backend in log records.
func Wrap(broker interfaces.Broker, name string) interfaces.Broker {
	return &observableBroker{
		broker: broker,
		name:   name,
	}
}

// Login authenticates with observability
func (ob *observableBroker) Login(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "broker.Login")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Logging in", "broker", ob.name)

	if err := ob.broker.Login(ctx); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Login failed", err, "broker", ob.name)
		return fmt.Errorf("%s login failed: %w", ob.name, err)
	}

	logger.InfoSkip(ctx, 1, "Login successful", "broker", ob.name)
	return nil
}

// Logout ends the session with observability
func (ob *observableBroker) Logout(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "broker.Logout")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Logging out", "broker", ob.name)

	if err := ob.broker.Logout(ctx); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Logout failed", err, "broker", ob.name)
		return err
	}

	logger.InfoSkip(ctx, 1, "Logout successful", "broker", ob.name)
	return nil
}

func (ob *observableBroker) IsLoggedIn() bool {
	return ob.broker.IsLoggedIn()
}

// MarketData fetches a quote with observability
func (ob *observableBroker) MarketData(ctx context.Context, mode types.MarketDataMode, exchange, token string) (*types.Quote, error) {
	ctx, span := trace.StartSpan(ctx, "broker.MarketData")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching market data", "broker", ob.name, "mode", mode, "exchange", exchange, "token", token)

	q, err := ob.broker.MarketData(ctx, mode, exchange, token)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch market data", err,
			"broker", ob.name,
			"mode", mode,
			"exchange", exchange,
			"token", token,
		)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Market data fetched successfully",
		"broker", ob.name,
		"symbol", q.TradingSymbol,
		"ltp", q.LTP.String(),
	)
	return q, nil
}
