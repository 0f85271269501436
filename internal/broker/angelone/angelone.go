package angelone

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"smartapi-basket/internal/api"
	"smartapi-basket/internal/interfaces"
	"smartapi-basket/internal/logger"
	"smartapi-basket/internal/types"
)

const (
	loginRoute  = "/rest/auth/angelbroking/user/v1/loginByPassword"
	logoutRoute = "/rest/secure/angelbroking/user/v1/logout"
	quoteRoute  = "/rest/secure/angelbroking/market/v1/quote/"

	brokerName = "ANGELONE"
)

var (
	// ErrNotLoggedIn is returned by calls that need a live session.
	ErrNotLoggedIn = errors.New("not logged in to Angel One")
	// ErrNoQuote is returned when the quote response has no data for the instrument.
	ErrNoQuote = errors.New("no market data returned")
)

// APIError is a SmartAPI response with status=false.
type APIError struct {
	Message   string
	ErrorCode string
}

func (e *APIError) Error() string {
	if e.ErrorCode == "" {
		return "smartapi: " + e.Message
	}
	return fmt.Sprintf("smartapi: %s (error code %s)", e.Message, e.ErrorCode)
}

type Params struct {
	APIKey     string
	ClientCode string
	PIN        string
	TOTPSecret string

	BaseURL    string
	SessionTTL time.Duration
	Timeout    time.Duration
	// Requests per second across all SmartAPI calls; 0 disables limiting.
	RateLimit float64

	LocalIP    string
	PublicIP   string
	MACAddress string
}

// Client is a SmartAPI session. It is safe for concurrent use.
type Client struct {
	p    Params
	http *api.Client
	now  func() time.Time
	totp func(secret string, t time.Time) (string, error)

	mu      sync.RWMutex
	session *types.Session
}

var _ interfaces.Broker = (*Client)(nil)

func New(p Params) *Client {
	if p.SessionTTL <= 0 {
		p.SessionTTL = 24 * time.Hour
	}
	if p.Timeout <= 0 {
		p.Timeout = 10 * time.Second
	}
	id := resolveIdentity(p.LocalIP, p.PublicIP, p.MACAddress)

	return &Client{
		p: p,
		http: api.NewClient(
			api.WithBaseURL(p.BaseURL),
			api.WithTimeout(p.Timeout),
			api.WithRateLimit(p.RateLimit),
			api.WithHeaders(id.headers(p.APIKey)),
			api.WithLogging(true),
		),
		now:  time.Now,
		totp: GenerateTOTP,
	}
}

// envelope is the common SmartAPI response wrapper.
type envelope[T any] struct {
	Status    bool   `json:"status"`
	Message   string `json:"message"`
	ErrorCode string `json:"errorcode"`
	Data      T      `json:"data"`
}

func (e *envelope[T]) err() error {
	if e.Status {
		return nil
	}
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	return &APIError{Message: msg, ErrorCode: e.ErrorCode}
}

type loginRequest struct {
	ClientCode string `json:"clientcode"`
	Password   string `json:"password"`
	TOTP       string `json:"totp"`
}

type loginData struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

// Login generates the current TOTP and exchanges client code, PIN and TOTP
// for session tokens.
func (c *Client) Login(ctx context.Context) error {
	code, err := c.totp(c.p.TOTPSecret, c.now())
	if err != nil {
		return fmt.Errorf("failed to generate TOTP: %w", err)
	}
	logger.Debug(ctx, "TOTP generated", "client_code", c.p.ClientCode)

	resp, err := c.http.POST(ctx, loginRoute, loginRequest{
		ClientCode: c.p.ClientCode,
		Password:   c.p.PIN,
		TOTP:       code,
	})
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}

	var env envelope[*loginData]
	if err := resp.ParseJSON(&env); err != nil {
		return err
	}
	if err := env.err(); err != nil {
		logger.Error(ctx, "Login failed", "message", env.Message, "error_code", env.ErrorCode)
		return err
	}
	if env.Data == nil || env.Data.JWTToken == "" || env.Data.FeedToken == "" {
		return &APIError{Message: "login response missing session tokens"}
	}

	s := &types.Session{
		JWTToken:     env.Data.JWTToken,
		RefreshToken: env.Data.RefreshToken,
		FeedToken:    env.Data.FeedToken,
		ExpiresAt:    c.now().Add(c.p.SessionTTL),
	}

	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	logger.Session(ctx, brokerName, "login",
		"client_code", c.p.ClientCode,
		"jwt_prefix", prefix(s.JWTToken, 10),
		"expires_at", s.ExpiresAt,
	)
	return nil
}

// Logout terminates the remote session if one exists. Local tokens are
// dropped whether or not the remote call succeeds.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()

	if s == nil {
		return nil
	}

	resp, err := c.http.POST(ctx, logoutRoute,
		map[string]string{"clientcode": c.p.ClientCode},
		map[string]string{"Authorization": "Bearer " + s.JWTToken},
	)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}

	var env envelope[any]
	if err := resp.ParseJSON(&env); err != nil {
		return err
	}
	if err := env.err(); err != nil {
		return err
	}

	logger.Session(ctx, brokerName, "logout", "client_code", c.p.ClientCode)
	return nil
}

// IsLoggedIn reports whether tokens are present and the session has not
// passed its expiry.
func (c *Client) IsLoggedIn() bool {
	c.mu.RLock()
	s := c.session
	c.mu.RUnlock()

	if s == nil || s.JWTToken == "" || s.FeedToken == "" {
		return false
	}
	if !s.Valid(c.now()) {
		logger.Warn(context.Background(), "Angel One session token expired, re-login required", "expired_at", s.ExpiresAt)
		return false
	}
	return true
}

// Session returns a copy of the current session, or false if none.
func (c *Client) Session() (types.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return types.Session{}, false
	}
	return *c.session, true
}

func (c *Client) authHeader() (map[string]string, error) {
	if !c.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]string{"Authorization": "Bearer " + c.session.JWTToken}, nil
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
