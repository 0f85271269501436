package brokerobs

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartapi-basket/internal/types"
)

type stubBroker struct {
	loginErr  error
	logoutErr error
	quoteErr  error
	loggedIn  bool
}

func (s *stubBroker) Login(context.Context) error {
	if s.loginErr == nil {
		s.loggedIn = true
	}
	return s.loginErr
}

func (s *stubBroker) Logout(context.Context) error {
	s.loggedIn = false
	return s.logoutErr
}

func (s *stubBroker) IsLoggedIn() bool { return s.loggedIn }

func (s *stubBroker) MarketData(_ context.Context, _ types.MarketDataMode, exchange, token string) (*types.Quote, error) {
	if s.quoteErr != nil {
		return nil, s.quoteErr
	}
	return &types.Quote{Exchange: exchange, Token: token, TradingSymbol: "SBIN-EQ", LTP: decimal.NewFromInt(570)}, nil
}

func TestWrapDelegates(t *testing.T) {
	inner := &stubBroker{}
	b := Wrap(inner, "ANGELONE")
	ctx := context.Background()

	require.NoError(t, b.Login(ctx))
	assert.True(t, b.IsLoggedIn())

	q, err := b.MarketData(ctx, types.ModeLTP, "NSE", "3045")
	require.NoError(t, err)
	assert.Equal(t, "3045", q.Token)

	require.NoError(t, b.Logout(ctx))
	assert.False(t, b.IsLoggedIn())
}

func TestWrapPropagatesErrors(t *testing.T) {
	sentinel := errors.New("boom")
	b := Wrap(&stubBroker{loginErr: sentinel, logoutErr: sentinel, quoteErr: sentinel}, "ZERODHA")
	ctx := context.Background()

	err := b.Login(ctx)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "ZERODHA login failed")

	assert.ErrorIs(t, b.Logout(ctx), sentinel)

	q, err := b.MarketData(ctx, types.ModeFull, "NSE", "3045")
	assert.ErrorIs(t, err, sentinel)
	assert.Nil(t, q)
}
