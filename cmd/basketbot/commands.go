package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"smartapi-basket/internal/basket"
	"smartapi-basket/internal/logger"
	"smartapi-basket/internal/quotelog"
	"smartapi-basket/internal/scripmaster"
	"smartapi-basket/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Log in, load the basket and fetch market data",
	Long: `Log in to the broker, load the scrip master and the basket, then fetch
market data for every basket instrument.

With market_data.poll_seconds set the fetch repeats until SIGINT or SIGTERM.
The session is always logged out on exit.`,
	Args: cobra.NoArgs,
	RunE: runBasket,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Check broker credentials by logging in and out",
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

var (
	lookupExchange string

	lookupCmd = &cobra.Command{
		Use:   "lookup SYMBOL...",
		Short: "Resolve symbols to exchange tokens using the scrip master",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runLookup,
	}
)

var (
	searchExchange string
	searchLimit    int

	searchCmd = &cobra.Command{
		Use:   "search QUERY",
		Short: "Search the scrip master by symbol or name",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}
)

var (
	downloadForce bool

	downloadMasterCmd = &cobra.Command{
		Use:   "download-master",
		Short: "Download the scrip master when it is missing or stale",
		Args:  cobra.NoArgs,
		RunE:  runDownloadMaster,
	}
)

var (
	quoteExchange string
	quoteMode     string

	quoteCmd = &cobra.Command{
		Use:   "quote SYMBOL",
		Short: "Log in and fetch a single quote",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuote,
	}
)

func init() {
	lookupCmd.Flags().StringVarP(&lookupExchange, "exchange", "e", "", "exchange segment (default: config exchange)")

	searchCmd.Flags().StringVarP(&searchExchange, "exchange", "e", "", "restrict to an exchange segment")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "maximum number of results")

	downloadMasterCmd.Flags().BoolVarP(&downloadForce, "force", "f", false, "download even if the file is fresh")

	quoteCmd.Flags().StringVarP(&quoteExchange, "exchange", "e", "", "exchange segment (default: config exchange)")
	quoteCmd.Flags().StringVarP(&quoteMode, "mode", "m", "", "LTP, OHLC or FULL (default: config mode)")
}

func runBasket(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	printConfigSummary(cmd.OutOrStdout(), cfg)

	brokers, err := initializeBroker(ctx, cfg)
	if err != nil {
		return err
	}
	return watchBasket(ctx, cmd.OutOrStdout(), cfg, brokers)
}

// watchBasket logs in, loads the basket and fetches it once or every
// poll_seconds until ctx is done. The session is logged out on every return.
func watchBasket(ctx context.Context, out io.Writer, cfg *store.Config, brokers *brokerSet) error {
	brk := brokers.broker

	if err := brk.Login(ctx); err != nil {
		return err
	}
	defer logout(ctx, brk)

	ix, err := loadScripMaster(ctx, cfg, brokers)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load scrip master, exiting", err)
		return err
	}

	b, err := initializeBasket(ctx, cfg, ix, brk)
	if err != nil {
		logger.ErrorWithErr(ctx, "No symbols loaded into basket, exiting", err)
		return err
	}

	qlog := quotelog.New(cfg.QuoteLog.Dir)
	if err := qlog.CompressOlder(cfg.QuoteLog.RetentionDays); err != nil {
		logger.Warn(ctx, "Failed to compress old quote logs", "error", err)
	}

	mode := cfg.MarketDataMode()
	fetch := func() {
		snap := b.Snapshot(ctx, mode)
		printQuotes(out, b.Details(), snap)
		if err := qlog.AppendSnapshot(snap.ID, snap.Mode, snap.Quotes); err != nil {
			logger.Warn(ctx, "Failed to write quote log", "dir", qlog.Dir(), "error", err)
		}
	}

	fetch()
	if cfg.MarketData.PollSeconds <= 0 {
		return nil
	}

	summarizer := initializeEOD(cfg)

	tick := time.NewTicker(time.Duration(cfg.MarketData.PollSeconds) * time.Second)
	defer tick.Stop()
	eodTick := time.NewTicker(60 * time.Second)
	defer eodTick.Stop()

	logger.Info(ctx, "Polling market data", "interval_seconds", cfg.MarketData.PollSeconds)
	for {
		select {
		case <-tick.C:
			if !brk.IsLoggedIn() {
				logger.Warn(ctx, "Session no longer valid, logging in again")
				if err := brk.Login(ctx); err != nil {
					return err
				}
			}
			fetch()
		case <-eodTick.C:
			if ok, _ := summarizer.ShouldRunNow(); ok {
				_, _ = summarizer.SummarizeToday(ctx)
			}
		case <-ctx.Done():
			logger.Info(ctx, "Shutting down...")
			if ok, _ := summarizer.ShouldRunNow(); ok {
				_, _ = summarizer.SummarizeToday(context.WithoutCancel(ctx))
			}
			return nil
		}
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	brokers, err := initializeBroker(ctx, cfg)
	if err != nil {
		return err
	}
	brk := brokers.broker

	if err := brk.Login(ctx); err != nil {
		return err
	}
	defer logout(ctx, brk)

	fmt.Fprintf(cmd.OutOrStdout(), "%s session active: %t\n", cfg.Broker, brk.IsLoggedIn())
	return nil
}

func runLookup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, ix, err := loadIndexOnly(ctx)
	if err != nil {
		return err
	}
	segment := lookupExchange
	if segment == "" {
		segment = cfg.Exchange
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INPUT\tSYMBOL\tTOKEN\tEXCHANGE")
	for _, sym := range args {
		inst, err := ix.Lookup(sym, strings.ToUpper(segment))
		if err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t%s\n", sym, segment)
			logger.Warn(ctx, "Lookup failed", "symbol", sym, "error", err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", sym, inst.Symbol, inst.Token, inst.Exchange)
	}
	return tw.Flush()
}

func runSearch(cmd *cobra.Command, args []string) error {
	_, ix, err := loadIndexOnly(cmd.Context())
	if err != nil {
		return err
	}

	results := ix.Search(args[0], strings.ToUpper(searchExchange), searchLimit)
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	if len(results) == 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "no instruments match %q\n", args[0])
	}
	return nil
}

func runDownloadMaster(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if err := refreshScripMaster(ctx, cfg, downloadForce); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scrip master at %s\n", cfg.ScripMaster.Path)
	return nil
}

func runQuote(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	mode, err := parseMode(quoteMode, cfg)
	if err != nil {
		return err
	}
	segment := cfg.Exchange
	if quoteExchange != "" {
		segment = strings.ToUpper(quoteExchange)
	}

	brokers, err := initializeBroker(ctx, cfg)
	if err != nil {
		return err
	}
	brk := brokers.broker

	if err := brk.Login(ctx); err != nil {
		return err
	}
	defer logout(ctx, brk)

	ix, err := loadScripMaster(ctx, cfg, brokers)
	if err != nil {
		return err
	}

	b := basket.New(ix, brk)
	if _, err := b.Load(ctx, args, segment); err != nil {
		return err
	}
	snap := b.Snapshot(ctx, mode)
	if len(snap.Quotes) == 0 {
		return fmt.Errorf("no %s quote for %s", mode, args[0])
	}
	printQuotes(cmd.OutOrStdout(), b.Details(), snap)
	return nil
}

// loadIndexOnly loads the scrip master without logging in. The Kite source
// only needs the access token, not a validated session.
func loadIndexOnly(ctx context.Context) (*store.Config, *scripmaster.Index, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}

	var brokers *brokerSet
	if cfg.ScripMaster.Source == store.SourceKite {
		if brokers, err = initializeBroker(ctx, cfg); err != nil {
			return nil, nil, err
		}
	}

	ix, err := loadScripMaster(ctx, cfg, brokers)
	if err != nil {
		return nil, nil, err
	}
	return cfg, ix, nil
}
