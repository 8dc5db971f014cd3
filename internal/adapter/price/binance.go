package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/simaogato/cryptokiosk-backend/internal/domain"
	"go.uber.org/zap"
)

// Ticker maps an asset to the exchange symbol it is priced with
type Ticker struct {
	Symbol   string // e.g. "BTCUSDT"
	Currency string // currency the symbol's price is denominated in, e.g. "USD"
}

// BinanceClient reads spot prices from a Binance-compatible ticker endpoint
type BinanceClient struct {
	baseURL    string
	tickers    map[domain.Asset]Ticker
	httpClient *http.Client
	logger     *zap.Logger
}

// NewBinanceClient creates a new HTTP client for the ticker API
func NewBinanceClient(baseURL string, tickers map[domain.Asset]Ticker, timeout time.Duration, logger *zap.Logger) *BinanceClient {
	return &BinanceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		tickers: tickers,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// tickerPriceResponse represents the /api/v3/ticker/price response
type tickerPriceResponse struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// FetchPrice gets the latest price of asset
func (c *BinanceClient) FetchPrice(ctx context.Context, asset domain.Asset) (decimal.Decimal, string, error) {
	ticker, ok := c.tickers[asset]
	if !ok || ticker.Symbol == "" {
		return decimal.Zero, "", fmt.Errorf("no ticker symbol configured for %s", asset)
	}

	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", c.baseURL, url.QueryEscape(ticker.Symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result tickerPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, "", fmt.Errorf("failed to decode response: %w", err)
	}

	if !strings.EqualFold(result.Symbol, ticker.Symbol) {
		return decimal.Zero, "", fmt.Errorf("unexpected symbol in response: %q", result.Symbol)
	}

	c.logger.Debug("ticker price retrieved",
		zap.String("symbol", ticker.Symbol),
		zap.String("price", result.Price.String()))

	return result.Price, ticker.Currency, nil
}
