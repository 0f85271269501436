package interfaces

import (
	"context"

	"smartapi-basket/internal/types"
)

// Broker is a logged-in session against a brokerage market data API.
type Broker interface {
	// Login authenticates and stores session tokens.
	Login(ctx context.Context) error

	// Logout terminates the session. Local session state is cleared even if
	// the remote call fails.
	Logout(ctx context.Context) error

	// IsLoggedIn reports whether a non-expired session exists.
	IsLoggedIn() bool

	// MarketData fetches one quote for an exchange token.
	MarketData(ctx context.Context, mode types.MarketDataMode, exchange, token string) (*types.Quote, error)
}
