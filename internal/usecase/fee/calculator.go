package fee

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/simaogato/cryptokiosk-backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Breakdown is the fee split of an ARS amount
type Breakdown struct {
	FeePercentage decimal.Decimal // 0-100
	FeeAmount     decimal.Decimal // whole ARS
	NetAmount     decimal.Decimal // AmountArs - FeeAmount
}

// Pricing is a Breakdown plus the crypto amount it buys or sells at a quote
type Pricing struct {
	Breakdown
	CryptoAmount decimal.Decimal
}

// Calculator computes service fees and crypto amounts from a Policy.
// Every method is pure: identical inputs always yield identical outputs.
type Calculator struct {
	Policy domain.Policy
}

// NewCalculator creates a new Calculator instance
func NewCalculator(policy domain.Policy) *Calculator {
	return &Calculator{Policy: policy}
}

// ComputeFee splits amountArs into a service fee and net proceeds
// Logic:
//  1. Look up the fee percentage for (kind, asset)
//  2. FeeAmount = amountArs * pct / 100, rounded to whole ARS
//  3. NetAmount = amountArs - FeeAmount, so fee and net always add up exactly
func (c *Calculator) ComputeFee(amountArs int64, asset domain.Asset, kind domain.TransactionKind) (Breakdown, error) {
	if amountArs <= 0 {
		return Breakdown{}, errors.New("amount must be positive")
	}

	if !kind.IsValid() {
		return Breakdown{}, errors.New("transaction kind must be PURCHASE or SALE")
	}

	pct := c.Policy.Fees.PercentFor(kind, asset)
	amount := decimal.NewFromInt(amountArs)
	feeAmount := amount.Mul(pct).Div(hundred).Round(0)

	return Breakdown{
		FeePercentage: pct,
		FeeAmount:     feeAmount,
		NetAmount:     amount.Sub(feeAmount),
	}, nil
}

// CryptoAmount converts net ARS proceeds into units of the quoted asset
// A quote denominated in another currency is converted with the policy exchange rate.
// The result is rounded to the asset's configured precision.
func (c *Calculator) CryptoAmount(net decimal.Decimal, quote domain.Quote) (decimal.Decimal, error) {
	if quote.Price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, errors.New("quote price must be positive")
	}

	info, ok := c.Policy.AssetInfo(quote.Asset)
	if !ok {
		return decimal.Zero, errors.New("asset is not configured: " + string(quote.Asset))
	}

	priceArs := quote.Price
	if !strings.EqualFold(quote.Currency, domain.TransactionCurrency) {
		priceArs = priceArs.Mul(c.Policy.ExchangeRate)
	}

	return net.DivRound(priceArs, info.Decimals), nil
}

// Price computes the fee breakdown and crypto amount for a session's inputs
func (c *Calculator) Price(amountArs int64, kind domain.TransactionKind, quote domain.Quote) (Pricing, error) {
	breakdown, err := c.ComputeFee(amountArs, quote.Asset, kind)
	if err != nil {
		return Pricing{}, err
	}

	crypto, err := c.CryptoAmount(breakdown.NetAmount, quote)
	if err != nil {
		return Pricing{}, err
	}

	return Pricing{Breakdown: breakdown, CryptoAmount: crypto}, nil
}
