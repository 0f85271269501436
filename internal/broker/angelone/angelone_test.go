package angelone

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartapi-basket/internal/types"
)

// rfc6238Secret is base32("12345678901234567890").
const rfc6238Secret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestGenerateTOTP(t *testing.T) {
	tests := []struct {
		at   int64
		want string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1234567890, "005924"},
	}
	for _, tt := range tests {
		got, err := GenerateTOTP(rfc6238Secret, time.Unix(tt.at, 0))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "at %d", tt.at)
	}

	// Lower case and spaced secrets are accepted.
	got, err := GenerateTOTP("gezd gnbv gy3t qojq gezd gnbv gy3t qojq", time.Unix(59, 0))
	require.NoError(t, err)
	assert.Equal(t, "287082", got)
}

type fakeSmartAPI struct {
	t            *testing.T
	loginStatus  bool
	quoteBody    string
	logoutCalls  atomic.Int32
	lastLogin    loginRequest
	lastQuote    quoteRequest
	lastAuth     string
	lastAPIKey   string
	lastUserType string
}

func (f *fakeSmartAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(loginRoute, func(w http.ResponseWriter, r *http.Request) {
		f.lastAPIKey = r.Header.Get("X-PrivateKey")
		f.lastUserType = r.Header.Get("X-UserType")
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.lastLogin))
		if !f.loginStatus {
			w.Write([]byte(`{"status":false,"message":"Invalid totp","errorcode":"AB1050","data":null}`))
			return
		}
		w.Write([]byte(`{"status":true,"message":"SUCCESS","errorcode":"","data":{"jwtToken":"eyJhbGciOiJIUzUxMiJ9.jwt","refreshToken":"refresh","feedToken":"feed"}}`))
	})
	mux.HandleFunc(logoutRoute, func(w http.ResponseWriter, r *http.Request) {
		f.logoutCalls.Add(1)
		f.lastAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"status":true,"message":"SUCCESS","errorcode":"","data":""}`))
	})
	mux.HandleFunc(quoteRoute, func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.lastQuote))
		w.Write([]byte(f.quoteBody))
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeSmartAPI) (*Client, *time.Time) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	now := time.Date(2026, 10, 16, 9, 15, 0, 0, time.UTC)
	c := New(Params{
		APIKey:     "api-key",
		ClientCode: "A123456",
		PIN:        "1234",
		TOTPSecret: rfc6238Secret,
		BaseURL:    srv.URL,
		LocalIP:    "10.0.0.2",
		MACAddress: "aa:bb:cc:dd:ee:ff",
	})
	c.now = func() time.Time { return now }
	return c, &now
}

func TestLoginStoresSession(t *testing.T) {
	f := &fakeSmartAPI{t: t, loginStatus: true}
	c, now := newTestClient(t, f)

	require.False(t, c.IsLoggedIn())
	require.NoError(t, c.Login(context.Background()))

	assert.True(t, c.IsLoggedIn())
	assert.Equal(t, "A123456", f.lastLogin.ClientCode)
	assert.Equal(t, "1234", f.lastLogin.Password)
	assert.Len(t, f.lastLogin.TOTP, 6)
	assert.Equal(t, "api-key", f.lastAPIKey)
	assert.Equal(t, "USER", f.lastUserType)

	s, ok := c.Session()
	require.True(t, ok)
	assert.Equal(t, "refresh", s.RefreshToken)
	assert.Equal(t, "feed", s.FeedToken)
	assert.Equal(t, now.Add(24*time.Hour), s.ExpiresAt)
}

func TestLoginRejected(t *testing.T) {
	f := &fakeSmartAPI{t: t, loginStatus: false}
	c, _ := newTestClient(t, f)

	err := c.Login(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "AB1050", apiErr.ErrorCode)
	assert.Equal(t, "Invalid totp", apiErr.Message)
	assert.False(t, c.IsLoggedIn())
}

func TestSessionExpiry(t *testing.T) {
	f := &fakeSmartAPI{t: t, loginStatus: true}
	c, now := newTestClient(t, f)
	require.NoError(t, c.Login(context.Background()))

	*now = now.Add(25 * time.Hour)
	assert.False(t, c.IsLoggedIn())

	_, err := c.MarketData(context.Background(), types.ModeLTP, "NSE", "3045")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestLogout(t *testing.T) {
	f := &fakeSmartAPI{t: t, loginStatus: true}
	c, _ := newTestClient(t, f)

	// No session: nothing is sent.
	require.NoError(t, c.Logout(context.Background()))
	assert.Equal(t, int32(0), f.logoutCalls.Load())

	require.NoError(t, c.Login(context.Background()))
	require.NoError(t, c.Logout(context.Background()))

	assert.Equal(t, int32(1), f.logoutCalls.Load())
	assert.Equal(t, "Bearer eyJhbGciOiJIUzUxMiJ9.jwt", f.lastAuth)
	assert.False(t, c.IsLoggedIn())
	_, ok := c.Session()
	assert.False(t, ok)
}

func TestLogoutClearsSessionWhenRemoteFails(t *testing.T) {
	c, _ := newTestClient(t, &fakeSmartAPI{t: t, loginStatus: true})
	require.NoError(t, c.Login(context.Background()))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()
	c.p.BaseURL = srv.URL
	c.http = New(c.p).http

	assert.Error(t, c.Logout(context.Background()))
	assert.False(t, c.IsLoggedIn())
}

func TestMarketData(t *testing.T) {
	f := &fakeSmartAPI{t: t, loginStatus: true, quoteBody: `{
		"status": true, "message": "SUCCESS", "errorcode": "",
		"data": {
			"fetched": [{
				"exchange": "NSE", "tradingSymbol": "SBIN-EQ", "symbolToken": "3045",
				"ltp": 571.8, "open": 568.75, "high": 568.75, "low": 567.0, "close": 566.5,
				"netChange": 5.3, "percentChange": 0.94, "avgPrice": 570.12,
				"tradeVolume": 5542028, "52WeekLow": 430.7, "52WeekHigh": 629.55,
				"exchFeedTime": "21-Jun-2023 10:46:10"
			}],
			"unfetched": []
		}
	}`}
	c, _ := newTestClient(t, f)
	require.NoError(t, c.Login(context.Background()))

	q, err := c.MarketData(context.Background(), types.ModeFull, "NSE", "3045")
	require.NoError(t, err)

	assert.Equal(t, types.ModeFull, f.lastQuote.Mode)
	assert.Equal(t, []string{"3045"}, f.lastQuote.ExchangeTokens["NSE"])
	assert.Equal(t, "Bearer eyJhbGciOiJIUzUxMiJ9.jwt", f.lastAuth)

	assert.Equal(t, "SBIN-EQ", q.TradingSymbol)
	assert.Equal(t, "571.8", q.LTP.String())
	assert.Equal(t, "566.5", q.Close.String())
	assert.Equal(t, int64(5542028), q.Volume)
	assert.Equal(t, "629.55", q.WeekHigh52.String())
}

func TestMarketDataUnfetched(t *testing.T) {
	f := &fakeSmartAPI{t: t, loginStatus: true, quoteBody: `{
		"status": true, "message": "SUCCESS", "errorcode": "",
		"data": {"fetched": [], "unfetched": [{"exchange":"NSE","symbolToken":"999999","message":"Invalid Token","errorCode":"AB4028"}]}
	}`}
	c, _ := newTestClient(t, f)
	require.NoError(t, c.Login(context.Background()))

	_, err := c.MarketData(context.Background(), types.ModeLTP, "NSE", "999999")
	require.ErrorIs(t, err, ErrNoQuote)
	assert.Contains(t, err.Error(), "Invalid Token")
}

func TestMarketDataRejectedAndInvalidMode(t *testing.T) {
	f := &fakeSmartAPI{t: t, loginStatus: true, quoteBody: `{"status":false,"message":"Invalid Token","errorcode":"AG8001","data":null}`}
	c, _ := newTestClient(t, f)
	require.NoError(t, c.Login(context.Background()))

	_, err := c.MarketData(context.Background(), types.ModeOHLC, "NSE", "3045")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "AG8001", apiErr.ErrorCode)

	_, err = c.MarketData(context.Background(), types.MarketDataMode("DEPTH"), "NSE", "3045")
	assert.Error(t, err)
}
