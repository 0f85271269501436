package store

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"smartapi-basket/internal/types"
)

const (
	BrokerAngelOne = "ANGELONE"
	BrokerZerodha  = "ZERODHA"

	ModePaper = "PAPER"
	ModeLive  = "LIVE"

	SourceFile = "FILE"
	SourceKite = "KITE"

	DefaultScripMasterPath = "OpenAPIScripMaster.json"
	DefaultScripMasterURL  = "https://margincalculator.angelbroking.com/OpenAPI_File/files/OpenAPIScripMaster.json"
	DefaultSmartAPIURL     = "https://apiconnect.angelone.in"
	DefaultDemoFunds       = "60000.0"
)

// ErrMissingCredentials is returned when required login variables are unset.
var ErrMissingCredentials = errors.New("missing broker credentials")

// DefaultBasket is used when config.yaml does not list any symbols.
var DefaultBasket = []string{
	"BSE", "RPOWER", "BAJAJHIND", "TRIDENT", "CANBK", "MAHABANK",
	"SUZLON", "YESBANK", "SAIL", "IRFC", "TATASTEEL", "IDFCFIRSTB",
	"BANKINDIA", "ITC", "WIPRO", "HINDCOPPER", "COALINDIA", "IOC",
	"ONGC",
}

// Credentials come from the environment only, never from config.yaml.
type Credentials struct {
	APIKey       string
	ClientSecret string
	RedirectURI  string
	Username     string
	PIN          string
	TOTPSecret   string

	KiteAPIKey      string
	KiteAccessToken string
}

type Config struct {
	Broker   string `yaml:"broker"`
	Mode     string `yaml:"mode"`
	Exchange string `yaml:"exchange"`
	Basket   struct {
		Symbols []string `yaml:"symbols"`
	} `yaml:"basket"`
	MarketData struct {
		Mode              string  `yaml:"mode"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		PollSeconds       int     `yaml:"poll_seconds"`
	} `yaml:"market_data"`
	ScripMaster struct {
		Path        string `yaml:"path"`
		URL         string `yaml:"url"`
		MaxAgeHours int    `yaml:"max_age_hours"`
		Source      string `yaml:"source"`
	} `yaml:"scrip_master"`
	Session struct {
		TTLHours int `yaml:"ttl_hours"`
	} `yaml:"session"`
	SmartAPI struct {
		BaseURL    string `yaml:"base_url"`
		LocalIP    string `yaml:"local_ip"`
		PublicIP   string `yaml:"public_ip"`
		MACAddress string `yaml:"mac_address"`
	} `yaml:"smartapi"`
	QuoteLog struct {
		Dir           string `yaml:"dir"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"quote_log"`

	DemoFunds   decimal.Decimal `yaml:"-"`
	Credentials Credentials     `yaml:"-"`
}

// IsPaperTrading reports whether the bot runs against demo funds.
func (c *Config) IsPaperTrading() bool {
	return c.Mode != ModeLive
}

// MarketDataMode returns the parsed market data mode.
func (c *Config) MarketDataMode() types.MarketDataMode {
	m, err := types.ParseMarketDataMode(c.MarketData.Mode)
	if err != nil {
		return types.ModeFull
	}
	return m
}

func (c *Config) Validate() error {
	if c.Broker != BrokerAngelOne && c.Broker != BrokerZerodha {
		return fmt.Errorf("invalid broker '%s': must be 'ANGELONE' or 'ZERODHA'", c.Broker)
	}
	if c.Mode != ModePaper && c.Mode != ModeLive {
		return fmt.Errorf("invalid mode '%s': must be 'PAPER' or 'LIVE'", c.Mode)
	}
	if _, err := types.ParseMarketDataMode(c.MarketData.Mode); err != nil {
		return err
	}
	if c.MarketData.RequestsPerSecond <= 0 {
		return fmt.Errorf("market_data.requests_per_second must be positive, got %.2f", c.MarketData.RequestsPerSecond)
	}
	if c.MarketData.PollSeconds < 0 {
		return fmt.Errorf("market_data.poll_seconds cannot be negative, got %d", c.MarketData.PollSeconds)
	}
	if len(c.Basket.Symbols) == 0 {
		return errors.New("basket.symbols cannot be empty")
	}
	if c.ScripMaster.Source != SourceFile && c.ScripMaster.Source != SourceKite {
		return fmt.Errorf("scrip_master.source must be 'FILE' or 'KITE', got '%s'", c.ScripMaster.Source)
	}
	if c.ScripMaster.Source == SourceKite && c.Broker != BrokerZerodha {
		return errors.New("scrip_master.source KITE requires broker ZERODHA")
	}
	// Angel One tokens do not address Kite instruments.
	if c.ScripMaster.Source == SourceFile && c.Broker == BrokerZerodha {
		return errors.New("broker ZERODHA requires scrip_master.source KITE")
	}
	return nil
}

// ValidateCredentials checks that the variables needed to log in to the
// configured broker are all set.
func (c *Config) ValidateCredentials() error {
	cr := c.Credentials
	var required [][2]string
	if c.Broker == BrokerZerodha {
		required = [][2]string{
			{"KITE_API_KEY", cr.KiteAPIKey},
			{"KITE_ACCESS_TOKEN", cr.KiteAccessToken},
		}
	} else {
		required = [][2]string{
			{"ANGELONE_CLIENT_ID", cr.APIKey},
			{"ANGELONE_CLIENT_SECRET", cr.ClientSecret},
			{"ANGELONE_USERNAME", cr.Username},
			{"ANGELONE_PIN", cr.PIN},
			{"ANGELONE_TOTP_SECRET", cr.TOTPSecret},
			{"ANGELONE_REDIRECT_URI", cr.RedirectURI},
		}
	}

	var missing []string
	for _, r := range required {
		if r[1] == "" {
			missing = append(missing, r[0])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: please set %s in .env", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// Load reads .env (if present), then config.yaml at path (if present), fills
// defaults and validates. Credentials are not checked here; see
// ValidateCredentials.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	return LoadConfig(path)
}

// LoadConfig is Load without the .env step.
func LoadConfig(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	c.applyDefaults()
	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	c.Broker = strings.ToUpper(c.Broker)
	if c.Broker == "" {
		c.Broker = BrokerAngelOne
	}
	c.Mode = strings.ToUpper(c.Mode)
	if c.Mode == "" {
		c.Mode = ModePaper
	}
	c.Exchange = strings.ToUpper(c.Exchange)
	if c.Exchange == "" {
		c.Exchange = "NSE"
	}
	if len(c.Basket.Symbols) == 0 {
		c.Basket.Symbols = append([]string(nil), DefaultBasket...)
	}
	if c.MarketData.Mode == "" {
		c.MarketData.Mode = string(types.ModeFull)
	}
	if c.MarketData.RequestsPerSecond == 0 {
		c.MarketData.RequestsPerSecond = 5
	}
	if c.ScripMaster.URL == "" {
		c.ScripMaster.URL = DefaultScripMasterURL
	}
	if c.ScripMaster.MaxAgeHours == 0 {
		c.ScripMaster.MaxAgeHours = 24
	}
	c.ScripMaster.Source = strings.ToUpper(c.ScripMaster.Source)
	if c.ScripMaster.Source == "" {
		c.ScripMaster.Source = SourceFile
		if c.Broker == BrokerZerodha {
			c.ScripMaster.Source = SourceKite
		}
	}
	if c.Session.TTLHours == 0 {
		c.Session.TTLHours = 24
	}
	if c.SmartAPI.BaseURL == "" {
		c.SmartAPI.BaseURL = DefaultSmartAPIURL
	}
	if c.QuoteLog.Dir == "" {
		c.QuoteLog.Dir = "logs/quotes"
	}
}

func (c *Config) applyEnv() error {
	c.Credentials = Credentials{
		APIKey:          Getenv("ANGELONE_CLIENT_ID", ""),
		ClientSecret:    Getenv("ANGELONE_CLIENT_SECRET", ""),
		RedirectURI:     Getenv("ANGELONE_REDIRECT_URI", ""),
		Username:        Getenv("ANGELONE_USERNAME", ""),
		PIN:             Getenv("ANGELONE_PIN", ""),
		TOTPSecret:      Getenv("ANGELONE_TOTP_SECRET", ""),
		KiteAPIKey:      Getenv("KITE_API_KEY", ""),
		KiteAccessToken: Getenv("KITE_ACCESS_TOKEN", ""),
	}

	// The environment wins over config.yaml for the master path.
	if p := Getenv("SCRIP_MASTER_PATH", ""); p != "" {
		c.ScripMaster.Path = p
	}
	if c.ScripMaster.Path == "" {
		c.ScripMaster.Path = DefaultScripMasterPath
	}

	funds, err := decimal.NewFromString(Getenv("DEMO_FUNDS", DefaultDemoFunds))
	if err != nil {
		return fmt.Errorf("invalid DEMO_FUNDS: %w", err)
	}
	c.DemoFunds = funds
	return nil
}

// Getenv returns the variable with any trailing "# comment" removed and
// surrounding whitespace trimmed. An empty result yields def.
func Getenv(key, def string) string {
	v := os.Getenv(key)
	if i := strings.IndexByte(v, '#'); i >= 0 {
		v = v[:i]
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}
