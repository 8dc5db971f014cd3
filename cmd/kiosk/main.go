package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kiosk",
		Short:         "Crypto kiosk backend: buy and sell BTC and USDT for ARS cash",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a kiosk.yaml config file")

	root.AddCommand(
		newServeCmd(),
		newQuoteCmd(),
		newActionCmd(),
		newTransactionsCmd(),
	)

	return root
}
