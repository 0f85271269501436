// Package basket manages the watch-list of instruments whose market data is
// fetched together.
package basket

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"smartapi-basket/internal/interfaces"
	"smartapi-basket/internal/logger"
	"smartapi-basket/internal/types"
)

// DefaultRequestsPerSecond keeps per-instrument quote calls under the
// broker's per-second limit.
const DefaultRequestsPerSecond = 5

var (
	ErrResolverNotLoaded = errors.New("scrip master data not loaded")
	ErrNothingLoaded     = errors.New("no symbols could be loaded into the basket")
)

// Item is one basket entry. Symbol is kept exactly as the user entered it.
type Item struct {
	Symbol   string `json:"symbol"`
	Token    string `json:"token"`
	Exchange string `json:"exchange"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithRequestsPerSecond sets the market data pacing. rps <= 0 disables it.
func WithRequestsPerSecond(rps float64) Option {
	return func(m *Manager) {
		if rps <= 0 {
			m.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		m.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithLimiter installs a caller-owned limiter, e.g. one shared with other
// components talking to the same broker.
func WithLimiter(l *rate.Limiter) Option {
	return func(m *Manager) {
		m.limiter = l
	}
}

// Manager is safe for concurrent use.
type Manager struct {
	resolver interfaces.ScripResolver
	broker   interfaces.Broker
	limiter  *rate.Limiter

	mu    sync.RWMutex
	items []Item
}

func New(resolver interfaces.ScripResolver, broker interfaces.Broker, opts ...Option) *Manager {
	m := &Manager{
		resolver: resolver,
		broker:   broker,
		limiter:  rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load replaces the basket with the symbols that resolve in segment and
// returns how many were loaded. Symbols that do not resolve are skipped.
func (m *Manager) Load(ctx context.Context, symbols []string, segment string) (int, error) {
	if !m.resolver.Loaded() {
		logger.Error(ctx, "Cannot load basket, scrip master data not loaded")
		return 0, ErrResolverNotLoaded
	}

	items := make([]Item, 0, len(symbols))
	var missing []string
	for _, sym := range symbols {
		inst, err := m.resolver.Lookup(sym, segment)
		if err != nil {
			logger.Warn(ctx, "Could not find symbol in scrip master", "symbol", sym, "segment", segment, "error", err)
			missing = append(missing, sym)
			continue
		}
		items = append(items, Item{Symbol: sym, Token: inst.Token, Exchange: inst.Exchange})
		logger.Debug(ctx, "Added symbol to basket", "symbol", sym, "master_symbol", inst.Symbol, "token", inst.Token)
	}

	m.mu.Lock()
	m.items = items
	m.mu.Unlock()

	logger.Info(ctx, "Basket loaded",
		"requested", len(symbols),
		"loaded", len(items),
		"missing", missing,
		"segment", segment,
	)
	if len(items) == 0 {
		return 0, ErrNothingLoaded
	}
	return len(items), nil
}

// Symbols returns the symbols in load order.
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.items))
	for i, it := range m.items {
		out[i] = it.Symbol
	}
	return out
}

// Details returns a copy of the basket.
func (m *Manager) Details() []Item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Item, len(m.items))
	copy(out, m.items)
	return out
}

// Get returns the item loaded under symbol.
func (m *Manager) Get(symbol string) (Item, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, it := range m.items {
		if it.Symbol == symbol {
			return it, true
		}
	}
	return Item{}, false
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// FilterByExchange returns the items listed on exchange.
func (m *Manager) FilterByExchange(exchange string) []Item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Item
	for _, it := range m.items {
		if it.Exchange == exchange {
			out = append(out, it)
		}
	}
	return out
}

// Snapshot is the result of one pass over the basket.
type Snapshot struct {
	ID     string
	Mode   types.MarketDataMode
	Quotes map[string]*types.Quote
}

// MarketData fetches a quote for every item, one request at a time, and
// returns them keyed by symbol. Items whose request fails are left out.
// Cancelling ctx stops the loop and returns what was collected so far.
func (m *Manager) MarketData(ctx context.Context, mode types.MarketDataMode) map[string]*types.Quote {
	return m.Snapshot(ctx, mode).Quotes
}

// Snapshot is MarketData with an identifier that ties the pass together in
// logs and the quote log.
func (m *Manager) Snapshot(ctx context.Context, mode types.MarketDataMode) Snapshot {
	items := m.Details()
	snap := Snapshot{
		ID:     uuid.NewString(),
		Mode:   mode,
		Quotes: make(map[string]*types.Quote, len(items)),
	}
	if len(items) == 0 {
		logger.Warn(ctx, "Basket is empty, nothing to fetch")
		return snap
	}

	timer := logger.StartOperation(ctx, "basket.MarketData",
		"snapshot_id", snap.ID,
		"mode", string(mode),
		"items", len(items),
	)
	ctx = timer.GetContext()

	failed := 0
	for _, it := range items {
		if err := m.limiter.Wait(ctx); err != nil {
			logger.Warn(ctx, "Market data fetch interrupted", "snapshot_id", snap.ID, "fetched", len(snap.Quotes), "error", err)
			break
		}
		q, err := m.broker.MarketData(ctx, mode, it.Exchange, it.Token)
		if err != nil {
			failed++
			logger.ErrorWithErr(ctx, "Failed to fetch market data", err,
				"snapshot_id", snap.ID, "symbol", it.Symbol, "token", it.Token)
			continue
		}
		snap.Quotes[it.Symbol] = q
	}

	timer.End("fetched", len(snap.Quotes), "failed", failed)
	return snap
}

func (it Item) String() string {
	return fmt.Sprintf("%s (%s:%s)", it.Symbol, it.Exchange, it.Token)
}
