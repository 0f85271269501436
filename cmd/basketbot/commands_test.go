package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartapi-basket/internal/basket"
	"smartapi-basket/internal/interfaces"
	"smartapi-basket/internal/store"
	"smartapi-basket/internal/types"
)

// sessionBroker tracks login state and can expire its session after the
// first quote to exercise re-login.
type sessionBroker struct {
	mu       sync.Mutex
	loggedIn bool
	logins   int
	logouts  int
	quotes   int

	expireAfterQuote bool
	onLogin          func(n int)
}

var _ interfaces.Broker = (*sessionBroker)(nil)

func (b *sessionBroker) Login(ctx context.Context) error {
	b.mu.Lock()
	b.logins++
	b.loggedIn = true
	n, hook := b.logins, b.onLogin
	b.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return nil
}

func (b *sessionBroker) Logout(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logouts++
	b.loggedIn = false
	return nil
}

func (b *sessionBroker) IsLoggedIn() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loggedIn
}

func (b *sessionBroker) MarketData(ctx context.Context, mode types.MarketDataMode, exchange, token string) (*types.Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes++
	if b.expireAfterQuote {
		b.loggedIn = false
	}
	return &types.Quote{Exchange: exchange, Token: token, LTP: decimal.NewFromInt(100)}, nil
}

func (b *sessionBroker) counts() (logins, logouts, quotes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logins, b.logouts, b.quotes
}

func watchConfig(t *testing.T) *store.Config {
	t.Helper()
	cfg := testConfig(t)
	cfg.Basket.Symbols = []string{"SBIN", "ITC"}
	cfg.MarketData.RequestsPerSecond = 100
	cfg.QuoteLog.Dir = t.TempDir()
	return cfg
}

func TestWatchBasketFetchesOnce(t *testing.T) {
	cfg := watchConfig(t)
	brk := &sessionBroker{}

	var out bytes.Buffer
	require.NoError(t, watchBasket(context.Background(), &out, cfg, &brokerSet{broker: brk}))

	logins, logouts, quotes := brk.counts()
	assert.Equal(t, 1, logins)
	assert.Equal(t, 1, logouts)
	assert.Equal(t, 2, quotes)
	assert.Contains(t, out.String(), "100.00")
}

func TestWatchBasketLogsOutWhenScripMasterFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := watchConfig(t)
	cfg.ScripMaster.Path = filepath.Join(t.TempDir(), "missing.json")
	cfg.ScripMaster.URL = srv.URL + "/OpenAPIScripMaster.json"
	brk := &sessionBroker{}

	err := watchBasket(context.Background(), &bytes.Buffer{}, cfg, &brokerSet{broker: brk})
	require.Error(t, err)

	logins, logouts, quotes := brk.counts()
	assert.Equal(t, 1, logins)
	assert.Equal(t, 1, logouts)
	assert.Zero(t, quotes)
	assert.False(t, brk.IsLoggedIn())
}

func TestWatchBasketLogsOutWhenBasketIsEmpty(t *testing.T) {
	cfg := watchConfig(t)
	cfg.Basket.Symbols = []string{"NOPE", "ALSONOPE"}
	brk := &sessionBroker{}

	err := watchBasket(context.Background(), &bytes.Buffer{}, cfg, &brokerSet{broker: brk})
	require.ErrorIs(t, err, basket.ErrNothingLoaded)

	_, logouts, quotes := brk.counts()
	assert.Equal(t, 1, logouts)
	assert.Zero(t, quotes)
}

func TestWatchBasketLogsInAgainWhenSessionExpires(t *testing.T) {
	cfg := watchConfig(t)
	cfg.MarketData.PollSeconds = 1

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	brk := &sessionBroker{expireAfterQuote: true}
	brk.onLogin = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	require.NoError(t, watchBasket(ctx, &bytes.Buffer{}, cfg, &brokerSet{broker: brk}))

	logins, logouts, _ := brk.counts()
	assert.Equal(t, 2, logins)
	assert.Equal(t, 1, logouts)
}
