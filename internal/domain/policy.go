package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// TransactionCurrency is the local currency all kiosk amounts are denominated in
const TransactionCurrency = "ARS"

// AmountLimits bounds the ARS amount of a single transaction (inclusive)
type AmountLimits struct {
	Min int64
	Max int64
}

// Validate ensures the limits describe a non-empty positive range
func (l AmountLimits) Validate() error {
	if l.Min <= 0 {
		return errors.New("minimum amount must be positive")
	}

	if l.Max < l.Min {
		return errors.New("maximum amount must not be lower than minimum amount")
	}

	return nil
}

// FeeRule overrides the fee percentage for one asset of one kind
type FeeRule struct {
	Kind    TransactionKind
	Asset   Asset
	Percent decimal.Decimal // 0-100
}

// FeeSchedule maps (kind, asset) to a fee percentage.
// Rules take precedence over the per-kind default.
type FeeSchedule struct {
	Defaults map[TransactionKind]decimal.Decimal // percentage (0-100) per kind
	Rules    []FeeRule
}

// PercentFor returns the fee percentage (0-100) for an asset and kind
func (fs FeeSchedule) PercentFor(kind TransactionKind, asset Asset) decimal.Decimal {
	for _, rule := range fs.Rules {
		if rule.Kind == kind && rule.Asset == asset {
			return rule.Percent
		}
	}
	return fs.Defaults[kind]
}

// Validate ensures every percentage is between 0 and 100 and both kinds have a default
func (fs FeeSchedule) Validate() error {
	for _, kind := range []TransactionKind{KindPurchase, KindSale} {
		pct, ok := fs.Defaults[kind]
		if !ok {
			return errors.New("fee schedule is missing a default for " + string(kind))
		}
		if !isPercent(pct) {
			return errors.New("default fee for " + string(kind) + " must be between 0 and 100")
		}
	}

	for _, rule := range fs.Rules {
		if !rule.Kind.IsValid() {
			return errors.New("fee rule kind must be PURCHASE or SALE")
		}
		if rule.Asset == "" {
			return errors.New("fee rule asset cannot be empty")
		}
		if !isPercent(rule.Percent) {
			return errors.New("fee rule percent must be between 0 and 100")
		}
	}

	return nil
}

func isPercent(d decimal.Decimal) bool {
	return !d.LessThan(decimal.Zero) && !d.GreaterThan(decimal.NewFromInt(100))
}

// Policy is the deployment configuration the flow controller and pricing read from
type Policy struct {
	Limits       AmountLimits
	Fees         FeeSchedule
	ExchangeRate decimal.Decimal // ARS per unit of the quote currency
	Assets       map[Asset]AssetInfo
}

// AssetInfo returns the metadata of an asset and whether it is configured
func (p Policy) AssetInfo(asset Asset) (AssetInfo, bool) {
	info, ok := p.Assets[asset]
	return info, ok
}

// Validate ensures the policy can price every configured asset
func (p Policy) Validate() error {
	if err := p.Limits.Validate(); err != nil {
		return err
	}

	if err := p.Fees.Validate(); err != nil {
		return err
	}

	if p.ExchangeRate.LessThanOrEqual(decimal.Zero) {
		return errors.New("exchange rate must be positive")
	}

	if len(p.Assets) == 0 {
		return errors.New("policy must configure at least one asset")
	}

	for _, info := range p.Assets {
		if err := info.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// DefaultPolicy returns the policy used when configuration is absent
func DefaultPolicy() Policy {
	return Policy{
		Limits: AmountLimits{Min: 10000, Max: 250000},
		Fees: FeeSchedule{
			Defaults: map[TransactionKind]decimal.Decimal{
				KindPurchase: decimal.NewFromInt(10),
				KindSale:     decimal.NewFromInt(6),
			},
			Rules: []FeeRule{
				{Kind: KindSale, Asset: AssetBTC, Percent: decimal.NewFromInt(8)},
			},
		},
		ExchangeRate: decimal.NewFromInt(1350),
		Assets:       DefaultAssets(),
	}
}
