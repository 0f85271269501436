package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"smartapi-basket/internal/basket"
	"smartapi-basket/internal/broker/angelone"
	"smartapi-basket/internal/broker/brokerobs"
	"smartapi-basket/internal/broker/zerodha"
	"smartapi-basket/internal/eod"
	"smartapi-basket/internal/eod/eodobs"
	"smartapi-basket/internal/interfaces"
	"smartapi-basket/internal/logger"
	"smartapi-basket/internal/scripmaster"
	"smartapi-basket/internal/store"
	"smartapi-basket/internal/types"
)

// initializeSystem loads .env and initializes logger and tracer
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// shutdownSystem flushes the debug log and trace exporter
func shutdownSystem() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := logger.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to shut down logger: %v\n", err)
	}
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context) (*store.Config, error) {
	cfg, err := store.LoadConfig(configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", configPath)
		return nil, err
	}
	return cfg, nil
}

// printConfigSummary shows what the bot is about to run with
func printConfigSummary(w io.Writer, cfg *store.Config) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Configuration:")
	fmt.Fprintf(tw, "  Broker:\t%s\n", cfg.Broker)
	if cfg.Broker == store.BrokerZerodha {
		fmt.Fprintf(tw, "  API Key:\t%s\n", mask(cfg.Credentials.KiteAPIKey))
	} else {
		fmt.Fprintf(tw, "  API Key:\t%s\n", mask(cfg.Credentials.APIKey))
		fmt.Fprintf(tw, "  Username:\t%s\n", cfg.Credentials.Username)
	}
	fmt.Fprintf(tw, "  Paper Trading:\t%t\n", cfg.IsPaperTrading())
	fmt.Fprintf(tw, "  Demo Funds:\t%s\n", cfg.DemoFunds.StringFixed(2))
	fmt.Fprintf(tw, "  Exchange:\t%s\n", cfg.Exchange)
	fmt.Fprintf(tw, "  Market Data Mode:\t%s\n", cfg.MarketDataMode())
	fmt.Fprintf(tw, "  Basket:\t%d symbols\n", len(cfg.Basket.Symbols))
	tw.Flush()
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}

// brokerSet holds the configured broker and, for Zerodha, the concrete
// client that can also serve the instrument dump.
type brokerSet struct {
	broker interfaces.Broker
	kite   *zerodha.Zerodha
}

// initializeBroker builds the configured broker with observability
func initializeBroker(ctx context.Context, cfg *store.Config) (*brokerSet, error) {
	if err := cfg.ValidateCredentials(); err != nil {
		logger.ErrorWithErr(ctx, "Broker credentials incomplete", err, "broker", cfg.Broker)
		return nil, err
	}

	if cfg.IsPaperTrading() {
		logger.Info(ctx, "Running in PAPER mode", "demo_funds", cfg.DemoFunds.String())
	}

	switch cfg.Broker {
	case store.BrokerZerodha:
		kite := zerodha.New(zerodha.Params{
			APIKey:      cfg.Credentials.KiteAPIKey,
			AccessToken: cfg.Credentials.KiteAccessToken,
		})
		return &brokerSet{broker: brokerobs.Wrap(kite, cfg.Broker), kite: kite}, nil

	default:
		cr := cfg.Credentials
		smart := angelone.New(angelone.Params{
			APIKey:     cr.APIKey,
			ClientCode: cr.Username,
			PIN:        cr.PIN,
			TOTPSecret: cr.TOTPSecret,
			BaseURL:    cfg.SmartAPI.BaseURL,
			SessionTTL: time.Duration(cfg.Session.TTLHours) * time.Hour,
			RateLimit:  cfg.MarketData.RequestsPerSecond,
			LocalIP:    cfg.SmartAPI.LocalIP,
			PublicIP:   cfg.SmartAPI.PublicIP,
			MACAddress: cfg.SmartAPI.MACAddress,
		})
		return &brokerSet{broker: brokerobs.Wrap(smart, cfg.Broker)}, nil
	}
}

// logout ends the session if one is active
func logout(ctx context.Context, brk interfaces.Broker) {
	if !brk.IsLoggedIn() {
		return
	}
	// The run context may already be cancelled by a signal.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := brk.Logout(ctx); err != nil {
		logger.Warn(ctx, "Logout failed", "error", err)
	}
}

// refreshScripMaster downloads the scrip master when it is missing, stale
// or force is set.
func refreshScripMaster(ctx context.Context, cfg *store.Config, force bool) error {
	path := cfg.ScripMaster.Path
	maxAge := time.Duration(cfg.ScripMaster.MaxAgeHours) * time.Hour
	if !force && !scripmaster.IsStale(path, maxAge) {
		logger.Info(ctx, "Scrip master is up to date", "path", path)
		return nil
	}
	return scripmaster.Download(ctx, cfg.ScripMaster.URL, path)
}

// loadScripMaster builds the symbol index from the configured source
func loadScripMaster(ctx context.Context, cfg *store.Config, brokers *brokerSet) (*scripmaster.Index, error) {
	ix := scripmaster.NewIndex()

	if cfg.ScripMaster.Source == store.SourceKite {
		if brokers == nil || brokers.kite == nil {
			return nil, errors.New("scrip_master.source KITE requires the Zerodha broker")
		}
		records, err := brokers.kite.Instruments(ctx, cfg.Exchange)
		if err != nil {
			return nil, err
		}
		if err := ix.LoadRecords(ctx, "kite:"+cfg.Exchange, records); err != nil {
			return nil, err
		}
		return ix, nil
	}

	if err := refreshScripMaster(ctx, cfg, false); err != nil {
		if _, statErr := os.Stat(cfg.ScripMaster.Path); statErr != nil {
			return nil, err
		}
		logger.Warn(ctx, "Scrip master refresh failed, using existing file", "path", cfg.ScripMaster.Path, "error", err)
	}

	if err := ix.Load(ctx, cfg.ScripMaster.Path); err != nil {
		return nil, err
	}
	return ix, nil
}

// initializeBasket resolves the configured symbols
func initializeBasket(ctx context.Context, cfg *store.Config, ix *scripmaster.Index, brk interfaces.Broker) (*basket.Manager, error) {
	b := basket.New(ix, brk, basket.WithRequestsPerSecond(cfg.MarketData.RequestsPerSecond))
	n, err := b.Load(ctx, cfg.Basket.Symbols, cfg.Exchange)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "Basket ready", "count", n, "symbols", b.Symbols())
	return b, nil
}

// printQuotes renders one snapshot in basket order
func printQuotes(w io.Writer, items []basket.Item, snap basket.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SYMBOL\tEXCH\tLTP\tOPEN\tHIGH\tLOW\tCLOSE\tCHG%\tVOLUME\t")
	for _, it := range items {
		q, ok := snap.Quotes[it.Symbol]
		if !ok {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\t-\t-\t-\t\n", it.Symbol, it.Exchange)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t\n",
			it.Symbol, it.Exchange,
			q.LTP.StringFixed(2),
			q.Open.StringFixed(2),
			q.High.StringFixed(2),
			q.Low.StringFixed(2),
			q.Close.StringFixed(2),
			q.PercentChange.StringFixed(2),
			q.Volume,
		)
	}
	tw.Flush()
}

func parseMode(flag string, cfg *store.Config) (types.MarketDataMode, error) {
	if flag == "" {
		return cfg.MarketDataMode(), nil
	}
	return types.ParseMarketDataMode(flag)
}

// initializeEOD builds the quote log summarizer with observability
func initializeEOD(cfg *store.Config) interfaces.EodSummarizer {
	return eodobs.Wrap(eod.NewSummarizer(cfg.QuoteLog.Dir))
}
