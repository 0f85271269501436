package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "basketbot",
	Short: "Watch a basket of NSE/BSE instruments through a broker market data API",
	Long: `basketbot logs in to the configured broker (Angel One SmartAPI or Zerodha
Kite), resolves the basket symbols against the scrip master and fetches
market data for every instrument in the basket.

Running basketbot without a subcommand is the same as 'basketbot run'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeSystem()
	},
	RunE: runBasket,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config.yaml")

	rootCmd.AddCommand(
		runCmd,
		loginCmd,
		lookupCmd,
		searchCmd,
		downloadMasterCmd,
		quoteCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	shutdownSystem()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
