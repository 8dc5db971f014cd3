package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/simaogato/cryptokiosk-backend/internal/adapter/price"
	"github.com/simaogato/cryptokiosk-backend/internal/config"
	"github.com/simaogato/cryptokiosk-backend/internal/domain"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/fee"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/quote"
)

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Fetch a price and, with --amount, the fee breakdown of a transaction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, configPath)
			if err != nil {
				return err
			}

			assetFlag, _ := cmd.Flags().GetString("asset")
			kindFlag, _ := cmd.Flags().GetString("kind")
			amount, _ := cmd.Flags().GetInt64("amount")

			asset, err := domain.ParseAsset(assetFlag)
			if err != nil {
				return err
			}
			kind := domain.TransactionKind(strings.ToUpper(kindFlag))
			if !kind.IsValid() {
				return fmt.Errorf("invalid kind: %q", kindFlag)
			}

			policy, err := cfg.Policy()
			if err != nil {
				return err
			}
			fallbacks, err := cfg.Fallbacks()
			if err != nil {
				return err
			}
			tickers, err := cfg.Tickers()
			if err != nil {
				return err
			}

			logger := zap.NewNop()
			source := price.NewBinanceClient(cfg.Quote.BaseURL, tickers, cfg.Quote.Timeout, logger)
			provider := quote.NewProviderService(source, fallbacks, cfg.Quote.Timeout, nil, logger)

			q := provider.GetPrice(cmd.Context(), asset)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s price: %s %s (%s)\n", q.Asset, q.Price, q.Currency, q.Source)

			if amount == 0 {
				return nil
			}

			pricing, err := fee.NewCalculator(policy).Price(amount, kind, q)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s of %d ARS\n", kind, amount)
			fmt.Fprintf(out, "  fee:    %s%% = %s ARS\n", pricing.FeePercentage, pricing.FeeAmount)
			fmt.Fprintf(out, "  net:    %s ARS\n", pricing.NetAmount)
			fmt.Fprintf(out, "  crypto: %s %s\n", pricing.CryptoAmount, q.Asset)
			return nil
		},
	}

	cmd.Flags().String("asset", "BTC", "asset to quote (BTC or USDT)")
	cmd.Flags().String("kind", "SALE", "transaction kind (PURCHASE or SALE)")
	cmd.Flags().Int64("amount", 0, "ARS amount to price")

	return cmd
}
