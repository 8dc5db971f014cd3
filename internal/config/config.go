package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/simaogato/cryptokiosk-backend/internal/adapter/price"
	"github.com/simaogato/cryptokiosk-backend/internal/domain"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/quote"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/verification"
)

// EnvPrefix prefixes every environment override, e.g. KIOSK_SERVER_ADDR
const EnvPrefix = "KIOSK"

// Config is the complete kiosk configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Quote        QuoteConfig        `mapstructure:"quote"`
	Fees         FeesConfig         `mapstructure:"fees"`
	Limits       LimitsConfig       `mapstructure:"limits"`
	ExchangeRate string             `mapstructure:"exchange_rate"`
	Verification VerificationConfig `mapstructure:"verification"`
	Simulation   SimulationConfig   `mapstructure:"simulation"`
	Flow         FlowConfig         `mapstructure:"flow"`
	Log          LogConfig          `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	APIToken        string        `mapstructure:"api_token"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DatabaseConfig selects postgres; an empty DSN keeps records in memory
type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// RedisConfig selects redis for verification codes; no address keeps them in memory
type RedisConfig struct {
	Addrs    []string `mapstructure:"addrs"`
	Password string   `mapstructure:"password"`
	Cluster  bool     `mapstructure:"cluster"`
}

type TickerConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Currency string `mapstructure:"currency"`
}

type FallbackConfig struct {
	Price    string `mapstructure:"price"`
	Currency string `mapstructure:"currency"`
}

type QuoteConfig struct {
	BaseURL  string                    `mapstructure:"base_url"`
	Timeout  time.Duration             `mapstructure:"timeout"`
	Tickers  map[string]TickerConfig   `mapstructure:"tickers"`
	Fallback map[string]FallbackConfig `mapstructure:"fallback"`
}

type FeeRuleConfig struct {
	Kind    string `mapstructure:"kind"`
	Asset   string `mapstructure:"asset"`
	Percent string `mapstructure:"percent"`
}

type FeesConfig struct {
	Purchase string          `mapstructure:"purchase"`
	Sale     string          `mapstructure:"sale"`
	Rules    []FeeRuleConfig `mapstructure:"rules"`
}

type LimitsConfig struct {
	Min int64 `mapstructure:"min"`
	Max int64 `mapstructure:"max"`
}

type VerificationConfig struct {
	Mode           string        `mapstructure:"mode"`
	StaticCode     string        `mapstructure:"static_code"`
	Digits         int           `mapstructure:"digits"`
	TTL            time.Duration `mapstructure:"ttl"`
	SendCooldown   time.Duration `mapstructure:"send_cooldown"`
	SendWindow     time.Duration `mapstructure:"send_window"`
	SendMax        int           `mapstructure:"send_max"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	WebhookToken   string        `mapstructure:"webhook_token"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
}

// SimulationConfig drives the simulated cash acceptor, settlement and payment collaborators
type SimulationConfig struct {
	CashAmount       int64         `mapstructure:"cash_amount"`
	CashDelay        time.Duration `mapstructure:"cash_delay"`
	SettlementDelay  time.Duration `mapstructure:"settlement_delay"`
	PaymentDelay     time.Duration `mapstructure:"payment_delay"`
	LightningAddress string        `mapstructure:"lightning_address"`
	TRC20Wallet      string        `mapstructure:"trc20_wallet"`
}

type FlowConfig struct {
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Defaults returns the value of every key when nothing overrides it
func Defaults() map[string]any {
	return map[string]any{
		"server.addr":             ":8080",
		"server.api_token":        "dev-token",
		"server.shutdown_timeout": "10s",

		"metrics.enabled": true,
		"metrics.addr":    ":9090",

		"database.dsn":            "",
		"database.max_open_conns": 5,

		"redis.addrs":    []string{},
		"redis.password": "",
		"redis.cluster":  false,

		"quote.base_url": "https://api.binance.com",
		"quote.timeout":  "3s",
		"quote.tickers": map[string]any{
			"btc": map[string]any{"symbol": "BTCUSDT", "currency": "USD"},
		},
		"quote.fallback": map[string]any{
			"btc":  map[string]any{"price": "113000", "currency": "USD"},
			"usdt": map[string]any{"price": "1", "currency": "USD"},
		},

		"fees.purchase": "10",
		"fees.sale":     "6",
		"fees.rules": []map[string]any{
			{"kind": "SALE", "asset": "BTC", "percent": "8"},
		},

		"limits.min": 10000,
		"limits.max": 250000,

		"exchange_rate": "1350",

		"verification.mode":            string(verification.ModeIssued),
		"verification.static_code":     "",
		"verification.digits":          6,
		"verification.ttl":             "5m",
		"verification.send_cooldown":   "30s",
		"verification.send_window":     "1h",
		"verification.send_max":        5,
		"verification.webhook_url":     "",
		"verification.webhook_token":   "",
		"verification.webhook_timeout": "5s",

		"simulation.cash_amount":       50000,
		"simulation.cash_delay":        "2s",
		"simulation.settlement_delay":  "3s",
		"simulation.payment_delay":     "5s",
		"simulation.lightning_address": "liquidgold@strike.me",
		"simulation.trc20_wallet":      "liquidgold_wallet",

		"flow.operation_timeout": "2m",

		"log.level":  "info",
		"log.format": "json",
	}
}

// Load builds the configuration
// Logic:
//  1. Load a .env file into the environment when one exists
//  2. Apply Defaults
//  3. Read kiosk.yaml from the current directory, or the file at path
//  4. Apply KIOSK_* environment variables ("." becomes "_")
//  5. Apply the command's flags
//  6. Unmarshal and validate
func Load(cmd *cobra.Command, path string) (*Config, error) {
	// 1. .env
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	v := viper.New()

	// 2. Defaults
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	// 3. Config file
	v.SetConfigName("kiosk")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		// a missing default file is fine; an explicit or malformed one is not
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// 4. Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 5. Flags
	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	// 6. Unmarshal and validate
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &c, nil
}

// Validate ensures the configuration can start a kiosk
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr cannot be empty")
	}

	if c.Server.APIToken == "" {
		return errors.New("server.api_token cannot be empty")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("metrics.addr cannot be empty when metrics are enabled")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}

	if _, err := c.Log.level(); err != nil {
		return err
	}

	policy, err := c.Policy()
	if err != nil {
		return err
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	fallbacks, err := c.Fallbacks()
	if err != nil {
		return err
	}
	for asset := range policy.Assets {
		if _, ok := fallbacks[asset]; !ok {
			return fmt.Errorf("quote.fallback has no price for %s", asset)
		}
	}

	if _, err := c.Tickers(); err != nil {
		return err
	}

	switch verification.Mode(c.Verification.Mode) {
	case verification.ModeIssued, verification.ModeStatic:
	default:
		return fmt.Errorf("verification.mode must be issued or static, got %q", c.Verification.Mode)
	}

	if c.Simulation.CashAmount < 0 {
		return errors.New("simulation.cash_amount must not be negative")
	}

	return nil
}

// Policy builds the domain policy from limits, fees and the exchange rate
func (c *Config) Policy() (domain.Policy, error) {
	rate, err := parseDecimal("exchange_rate", c.ExchangeRate)
	if err != nil {
		return domain.Policy{}, err
	}

	purchase, err := parseDecimal("fees.purchase", c.Fees.Purchase)
	if err != nil {
		return domain.Policy{}, err
	}

	sale, err := parseDecimal("fees.sale", c.Fees.Sale)
	if err != nil {
		return domain.Policy{}, err
	}

	rules := make([]domain.FeeRule, 0, len(c.Fees.Rules))
	for i, r := range c.Fees.Rules {
		asset, err := domain.ParseAsset(r.Asset)
		if err != nil {
			return domain.Policy{}, fmt.Errorf("fees.rules[%d]: %w", i, err)
		}
		pct, err := parseDecimal(fmt.Sprintf("fees.rules[%d].percent", i), r.Percent)
		if err != nil {
			return domain.Policy{}, err
		}
		rules = append(rules, domain.FeeRule{
			Kind:    domain.TransactionKind(strings.ToUpper(r.Kind)),
			Asset:   asset,
			Percent: pct,
		})
	}

	return domain.Policy{
		Limits: domain.AmountLimits{Min: c.Limits.Min, Max: c.Limits.Max},
		Fees: domain.FeeSchedule{
			Defaults: map[domain.TransactionKind]decimal.Decimal{
				domain.KindPurchase: purchase,
				domain.KindSale:     sale,
			},
			Rules: rules,
		},
		ExchangeRate: rate,
		Assets:       domain.DefaultAssets(),
	}, nil
}

// Fallbacks returns the configured substitute price per asset
func (c *Config) Fallbacks() (map[domain.Asset]quote.FallbackPrice, error) {
	out := make(map[domain.Asset]quote.FallbackPrice, len(c.Quote.Fallback))
	for key, fb := range c.Quote.Fallback {
		asset, err := domain.ParseAsset(key)
		if err != nil {
			return nil, fmt.Errorf("quote.fallback: %w", err)
		}

		p, err := parseDecimal("quote.fallback."+key+".price", fb.Price)
		if err != nil {
			return nil, err
		}
		if !p.IsPositive() {
			return nil, fmt.Errorf("quote.fallback.%s.price must be positive", key)
		}
		if fb.Currency == "" {
			return nil, fmt.Errorf("quote.fallback.%s.currency cannot be empty", key)
		}

		out[asset] = quote.FallbackPrice{Price: p, Currency: strings.ToUpper(fb.Currency)}
	}
	return out, nil
}

// Tickers returns the exchange symbol per asset. Assets without one always use the fallback price.
func (c *Config) Tickers() (map[domain.Asset]price.Ticker, error) {
	out := make(map[domain.Asset]price.Ticker, len(c.Quote.Tickers))
	for key, t := range c.Quote.Tickers {
		asset, err := domain.ParseAsset(key)
		if err != nil {
			return nil, fmt.Errorf("quote.tickers: %w", err)
		}
		if t.Symbol == "" {
			continue
		}
		if t.Currency == "" {
			return nil, fmt.Errorf("quote.tickers.%s.currency cannot be empty", key)
		}
		out[asset] = price.Ticker{Symbol: strings.ToUpper(t.Symbol), Currency: strings.ToUpper(t.Currency)}
	}
	return out, nil
}

// VerificationSettings returns the code settings of the verification service
func (c *Config) VerificationSettings() verification.Settings {
	return verification.Settings{
		Mode:       verification.Mode(c.Verification.Mode),
		StaticCode: c.Verification.StaticCode,
		Digits:     c.Verification.Digits,
		TTL:        c.Verification.TTL,
	}
}

func parseDecimal(key, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal number, got %q", key, raw)
	}
	return d, nil
}
