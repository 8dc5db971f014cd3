package quote

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/simaogato/cryptokiosk-backend/internal/domain"
	"github.com/simaogato/cryptokiosk-backend/internal/metrics"
	"go.uber.org/zap"
)

// FallbackPrice is a configured substitute price for one asset
type FallbackPrice struct {
	Price    decimal.Decimal
	Currency string
}

// ProviderService serves price quotes, substituting the configured fallback when the live source fails
type ProviderService struct {
	Source    domain.PriceSource
	Fallbacks map[domain.Asset]FallbackPrice
	Timeout   time.Duration
	Metrics   *metrics.Metrics
	Logger    *zap.Logger

	now func() time.Time
}

// NewProviderService creates a new ProviderService instance
func NewProviderService(
	source domain.PriceSource,
	fallbacks map[domain.Asset]FallbackPrice,
	timeout time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ProviderService {
	return &ProviderService{
		Source:    source,
		Fallbacks: fallbacks,
		Timeout:   timeout,
		Metrics:   m,
		Logger:    logger,
		now:       time.Now,
	}
}

// GetPrice returns a quote for asset and never fails
// Logic:
//  1. Ask the live source once, bounded by Timeout
//  2. Accept the answer only if it is a positive price with a currency
//  3. On any failure return the configured fallback tagged Fallback
//
// There is no retry: a single failure is enough to switch to the fallback.
func (s *ProviderService) GetPrice(ctx context.Context, asset domain.Asset) domain.Quote {
	price, currency, err := s.fetchLive(ctx, asset)
	if err == nil {
		s.Metrics.QuoteServed(string(asset), string(domain.QuoteSourceLive))
		return domain.Quote{
			Asset:     asset,
			Price:     price,
			Currency:  currency,
			Source:    domain.QuoteSourceLive,
			FetchedAt: s.now(),
		}
	}

	s.Logger.Warn("live quote unavailable, using fallback price",
		zap.String("asset", string(asset)),
		zap.Error(err),
	)
	s.Metrics.QuoteServed(string(asset), string(domain.QuoteSourceFallback))

	fallback := s.Fallbacks[asset]
	return domain.Quote{
		Asset:     asset,
		Price:     fallback.Price,
		Currency:  fallback.Currency,
		Source:    domain.QuoteSourceFallback,
		FetchedAt: s.now(),
	}
}

func (s *ProviderService) fetchLive(ctx context.Context, asset domain.Asset) (price decimal.Decimal, currency string, err error) {
	if s.Source == nil {
		return decimal.Zero, "", errors.New("no live price source configured")
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	// A misbehaving source must not take the kiosk down with it
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("price source panicked")
		}
	}()

	price, currency, err = s.Source.FetchPrice(ctx, asset)
	if err != nil {
		return decimal.Zero, "", err
	}

	if price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, "", errors.New("price source returned a non-positive price")
	}

	if currency == "" {
		return decimal.Zero, "", errors.New("price source returned no currency")
	}

	return price, currency, nil
}
