package angelone

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"smartapi-basket/internal/logger"
	"smartapi-basket/internal/types"
)

type quoteRequest struct {
	Mode           types.MarketDataMode `json:"mode"`
	ExchangeTokens map[string][]string  `json:"exchangeTokens"`
}

type quoteData struct {
	Fetched   []wireQuote `json:"fetched"`
	Unfetched []struct {
		Exchange    string `json:"exchange"`
		SymbolToken string `json:"symbolToken"`
		Message     string `json:"message"`
		ErrorCode   string `json:"errorCode"`
	} `json:"unfetched"`
}

type wireQuote struct {
	Exchange      string          `json:"exchange"`
	TradingSymbol string          `json:"tradingSymbol"`
	SymbolToken   string          `json:"symbolToken"`
	LTP           decimal.Decimal `json:"ltp"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Close         decimal.Decimal `json:"close"`
	NetChange     decimal.Decimal `json:"netChange"`
	PercentChange decimal.Decimal `json:"percentChange"`
	AvgPrice      decimal.Decimal `json:"avgPrice"`
	TradeVolume   decimal.Decimal `json:"tradeVolume"`
	WeekLow52     decimal.Decimal `json:"52WeekLow"`
	WeekHigh52    decimal.Decimal `json:"52WeekHigh"`
	ExchFeedTime  string          `json:"exchFeedTime"`
}

func (w wireQuote) quote() *types.Quote {
	return &types.Quote{
		Exchange:      w.Exchange,
		TradingSymbol: w.TradingSymbol,
		Token:         w.SymbolToken,
		LTP:           w.LTP,
		Open:          w.Open,
		High:          w.High,
		Low:           w.Low,
		Close:         w.Close,
		NetChange:     w.NetChange,
		PercentChange: w.PercentChange,
		AvgPrice:      w.AvgPrice,
		Volume:        w.TradeVolume.IntPart(),
		WeekLow52:     w.WeekLow52,
		WeekHigh52:    w.WeekHigh52,
		FeedTime:      w.ExchFeedTime,
	}
}

// MarketData fetches an LTP, OHLC or FULL quote for one exchange token.
func (c *Client) MarketData(ctx context.Context, mode types.MarketDataMode, exchange, token string) (*types.Quote, error) {
	if _, err := types.ParseMarketDataMode(string(mode)); err != nil {
		return nil, err
	}
	headers, err := c.authHeader()
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "Requesting market data", "mode", mode, "exchange", exchange, "token", token)

	resp, err := c.http.POST(ctx, quoteRoute, quoteRequest{
		Mode:           mode,
		ExchangeTokens: map[string][]string{exchange: {token}},
	}, headers)
	if err != nil {
		return nil, fmt.Errorf("%s market data request for %s:%s failed: %w", mode, exchange, token, err)
	}

	var env envelope[*quoteData]
	if err := resp.ParseJSON(&env); err != nil {
		return nil, err
	}
	if err := env.err(); err != nil {
		logger.Error(ctx, "Market data request rejected",
			"mode", mode, "exchange", exchange, "token", token,
			"message", env.Message, "error_code", env.ErrorCode,
			"response", resp.String(),
		)
		return nil, err
	}

	if env.Data != nil {
		for _, q := range env.Data.Fetched {
			if q.SymbolToken == "" || q.SymbolToken == token {
				return q.quote(), nil
			}
		}
		for _, u := range env.Data.Unfetched {
			if u.SymbolToken == token {
				return nil, fmt.Errorf("%w for %s:%s: %s", ErrNoQuote, exchange, token, u.Message)
			}
		}
	}
	return nil, fmt.Errorf("%w for %s:%s", ErrNoQuote, exchange, token)
}
