package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteSource tells whether a price came from the live feed or the configured fallback
type QuoteSource string

const (
	QuoteSourceLive     QuoteSource = "Live"
	QuoteSourceFallback QuoteSource = "Fallback"
)

// Quote represents a crypto price at a point in time.
// A Fallback quote is degraded but valid and is priced exactly like a Live one.
type Quote struct {
	Asset     Asset
	Price     decimal.Decimal // price of one unit of Asset in Currency
	Currency  string          // e.g. "USD" or "ARS"
	Source    QuoteSource
	FetchedAt time.Time
}

// IsFallback reports whether the quote is the configured substitute price
func (q Quote) IsFallback() bool {
	return q.Source == QuoteSourceFallback
}
