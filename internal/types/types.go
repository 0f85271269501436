package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MarketDataMode selects how much of a quote the broker returns.
type MarketDataMode string

const (
	ModeLTP  MarketDataMode = "LTP"
	ModeOHLC MarketDataMode = "OHLC"
	ModeFull MarketDataMode = "FULL"
)

// ParseMarketDataMode accepts LTP, OHLC or FULL in any case.
func ParseMarketDataMode(s string) (MarketDataMode, error) {
	switch m := MarketDataMode(strings.ToUpper(strings.TrimSpace(s))); m {
	case ModeLTP, ModeOHLC, ModeFull:
		return m, nil
	default:
		return "", fmt.Errorf("invalid market data mode %q: must be LTP, OHLC or FULL", s)
	}
}

// Instrument is a symbol resolved to its exchange-qualified identifier.
type Instrument struct {
	Symbol   string `json:"symbol"`
	Token    string `json:"token"`
	Exchange string `json:"exchange"`
}

// Key returns "exchange:token".
func (i Instrument) Key() string {
	return i.Exchange + ":" + i.Token
}

// Quote is a market data snapshot. Fields not provided by the requested mode
// are left zero.
type Quote struct {
	Exchange      string          `json:"exchange"`
	TradingSymbol string          `json:"trading_symbol"`
	Token         string          `json:"token"`
	LTP           decimal.Decimal `json:"ltp"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Close         decimal.Decimal `json:"close"`
	NetChange     decimal.Decimal `json:"net_change"`
	PercentChange decimal.Decimal `json:"percent_change"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	Volume        int64           `json:"volume"`
	WeekLow52     decimal.Decimal `json:"week52_low"`
	WeekHigh52    decimal.Decimal `json:"week52_high"`
	FeedTime      string          `json:"feed_time,omitempty"`
}

// Session holds the tokens obtained at login.
type Session struct {
	JWTToken     string    `json:"jwtToken"`
	RefreshToken string    `json:"refreshToken"`
	FeedToken    string    `json:"feedToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Valid reports whether the session has tokens and has not expired at now.
func (s Session) Valid(now time.Time) bool {
	if s.JWTToken == "" || s.FeedToken == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}
