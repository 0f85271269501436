package zerodha

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"smartapi-basket/internal/interfaces"
	"smartapi-basket/internal/logger"
	"smartapi-basket/internal/scripmaster"
	"smartapi-basket/internal/types"
)

const brokerName = "ZERODHA"

var (
	ErrMissingAccessToken = errors.New("missing Kite API key/access token")
	ErrNotLoggedIn        = errors.New("not logged in to Kite")
	ErrNoQuote            = errors.New("no quote returned")
)

type Params struct {
	APIKey      string
	AccessToken string
	// BaseURI overrides the Kite Connect endpoint.
	BaseURI string
	Timeout time.Duration
}

// Zerodha is a Kite Connect market data session. Kite access tokens are
// minted by the browser login flow, so Login only validates one.
type Zerodha struct {
	p      Params
	kc     *kiteconnect.Client
	mapper *instrumentMapper

	mu       sync.RWMutex
	loggedIn bool
	userID   string
}

var _ interfaces.Broker = (*Zerodha)(nil)

func New(p Params) *Zerodha {
	if p.Timeout <= 0 {
		p.Timeout = 10 * time.Second
	}

	kc := kiteconnect.New(p.APIKey)
	kc.SetHTTPClient(&http.Client{Timeout: p.Timeout})
	kc.SetAccessToken(p.AccessToken)
	if p.BaseURI != "" {
		kc.SetBaseURI(p.BaseURI)
	}

	return &Zerodha{
		p:      p,
		kc:     kc,
		mapper: newInstrumentMapper(),
	}
}

// Login validates the access token by fetching the user profile.
func (z *Zerodha) Login(ctx context.Context) error {
	if z.p.APIKey == "" || z.p.AccessToken == "" {
		return ErrMissingAccessToken
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	profile, err := z.kc.GetUserProfile()
	if err != nil {
		return fmt.Errorf("kite profile check failed: %w", err)
	}

	z.mu.Lock()
	z.loggedIn = true
	z.userID = profile.UserID
	z.mu.Unlock()

	logger.Session(ctx, brokerName, "login", "user_id", profile.UserID, "user_name", profile.UserName)
	return nil
}

// Logout invalidates the access token. Local state is cleared first.
func (z *Zerodha) Logout(ctx context.Context) error {
	z.mu.Lock()
	wasLoggedIn := z.loggedIn
	userID := z.userID
	z.loggedIn = false
	z.userID = ""
	z.mu.Unlock()

	if !wasLoggedIn {
		logger.Debug(ctx, "Logout skipped, no active Kite session")
		return nil
	}

	if _, err := z.kc.InvalidateAccessToken(); err != nil {
		return fmt.Errorf("kite logout failed: %w", err)
	}

	logger.Session(ctx, brokerName, "logout", "user_id", userID)
	return nil
}

func (z *Zerodha) IsLoggedIn() bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.loggedIn
}

// instrumentKey returns the Kite quote key for a token: EXCHANGE:SYMBOL when
// the instrument dump has been loaded, the bare instrument token otherwise.
func (z *Zerodha) instrumentKey(exchange, token string) string {
	if sym, ok := z.mapper.getSymbol(exchange, token); ok {
		return exchange + ":" + sym
	}
	return token
}

// MarketData maps LTP, OHLC and FULL onto Kite's ltp, ohlc and quote calls.
func (z *Zerodha) MarketData(ctx context.Context, mode types.MarketDataMode, exchange, token string) (*types.Quote, error) {
	if _, err := types.ParseMarketDataMode(string(mode)); err != nil {
		return nil, err
	}
	if !z.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := z.instrumentKey(exchange, token)
	q := &types.Quote{Exchange: exchange, Token: token}
	if sym, ok := z.mapper.getSymbol(exchange, token); ok {
		q.TradingSymbol = sym
	}

	logger.Debug(ctx, "Requesting Kite market data", "mode", mode, "key", key)

	switch mode {
	case types.ModeLTP:
		res, err := z.kc.GetLTP(key)
		if err != nil {
			return nil, fmt.Errorf("kite ltp for %s failed: %w", key, err)
		}
		d, ok := res[key]
		if !ok {
			return nil, fmt.Errorf("%w for %s", ErrNoQuote, key)
		}
		q.LTP = decimal.NewFromFloat(d.LastPrice)

	case types.ModeOHLC:
		res, err := z.kc.GetOHLC(key)
		if err != nil {
			return nil, fmt.Errorf("kite ohlc for %s failed: %w", key, err)
		}
		d, ok := res[key]
		if !ok {
			return nil, fmt.Errorf("%w for %s", ErrNoQuote, key)
		}
		q.LTP = decimal.NewFromFloat(d.LastPrice)
		q.Open = decimal.NewFromFloat(d.OHLC.Open)
		q.High = decimal.NewFromFloat(d.OHLC.High)
		q.Low = decimal.NewFromFloat(d.OHLC.Low)
		q.Close = decimal.NewFromFloat(d.OHLC.Close)

	case types.ModeFull:
		res, err := z.kc.GetQuote(key)
		if err != nil {
			return nil, fmt.Errorf("kite quote for %s failed: %w", key, err)
		}
		d, ok := res[key]
		if !ok {
			return nil, fmt.Errorf("%w for %s", ErrNoQuote, key)
		}
		q.LTP = decimal.NewFromFloat(d.LastPrice)
		q.Open = decimal.NewFromFloat(d.OHLC.Open)
		q.High = decimal.NewFromFloat(d.OHLC.High)
		q.Low = decimal.NewFromFloat(d.OHLC.Low)
		q.Close = decimal.NewFromFloat(d.OHLC.Close)
		q.AvgPrice = decimal.NewFromFloat(d.AveragePrice)
		q.Volume = int64(d.Volume)
		q.NetChange = q.LTP.Sub(q.Close)
		if !q.Close.IsZero() {
			q.PercentChange = q.NetChange.Div(q.Close).Mul(decimal.NewFromInt(100)).Round(2)
		}
		if !d.Timestamp.IsZero() {
			q.FeedTime = d.Timestamp.Format("02-Jan-2006 15:04:05")
		}
	}

	return q, nil
}

// Instruments downloads Kite's instrument dump for exchange and converts it
// into scrip master records. The token to symbol mapping is cached for
// quote requests.
func (z *Zerodha) Instruments(ctx context.Context, exchange string) ([]scripmaster.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timer := logger.StartOperation(ctx, "zerodha.Instruments", "exchange", exchange)

	insts, err := z.kc.GetInstrumentsByExchange(exchange)
	if err != nil {
		err = fmt.Errorf("kite instruments for %s failed: %w", exchange, err)
		timer.EndWithError(err)
		return nil, err
	}

	records := z.toRecords(insts)
	timer.End("instruments", len(records), "mapped", z.mapper.size())
	return records, nil
}

func (z *Zerodha) toRecords(insts kiteconnect.Instruments) []scripmaster.Record {
	records := make([]scripmaster.Record, 0, len(insts))
	for _, in := range insts {
		token := strconv.Itoa(int(in.InstrumentToken))
		z.mapper.addMapping(in.Exchange, in.Tradingsymbol, token)

		rec := scripmaster.NewRecord(token, in.Tradingsymbol, in.Name, in.Exchange)
		rec.InstrumentType = scripmaster.Text(in.InstrumentType)
		rec.LotSize = scripmaster.Text(fmt.Sprint(in.LotSize))
		rec.TickSize = scripmaster.Text(fmt.Sprint(in.TickSize))
		rec.Strike = scripmaster.Text(fmt.Sprint(in.StrikePrice))
		if !in.Expiry.IsZero() {
			rec.Expiry = scripmaster.Text(in.Expiry.Format("02Jan2006"))
		}
		records = append(records, rec)
	}
	return records
}
