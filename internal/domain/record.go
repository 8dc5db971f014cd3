package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionRecord represents the immutable receipt of a completed session
type TransactionRecord struct {
	ID            uuid.UUID // same as the session ID
	Kind          TransactionKind
	Asset         Asset
	Network       string
	AmountArs     int64
	FeePercentage decimal.Decimal
	FeeAmount     decimal.Decimal
	NetAmount     decimal.Decimal
	CryptoAmount  decimal.Decimal
	QuotePrice    decimal.Decimal
	QuoteCurrency string
	QuoteSource   QuoteSource
	ExchangeRate  decimal.Decimal
	Destination   string // wallet address for purchases, payment request for sales
	SettlementRef string
	CompletedAt   time.Time
}

// Validate ensures the record adheres to domain rules
// CRITICAL: FeeAmount + NetAmount must equal AmountArs exactly
func (r *TransactionRecord) Validate() error {
	if r.ID == uuid.Nil {
		return errors.New("record ID cannot be empty")
	}

	if !r.Kind.IsValid() {
		return errors.New("record kind must be PURCHASE or SALE")
	}

	if r.Asset == "" {
		return errors.New("record asset cannot be empty")
	}

	if r.AmountArs <= 0 {
		return errors.New("record amount must be positive")
	}

	if r.FeeAmount.LessThan(decimal.Zero) || r.NetAmount.LessThanOrEqual(decimal.Zero) {
		return errors.New("record fee must not be negative and net amount must be positive")
	}

	if !r.FeeAmount.Add(r.NetAmount).Equal(decimal.NewFromInt(r.AmountArs)) {
		return errors.New("fee amount plus net amount must equal the transaction amount")
	}

	if r.CryptoAmount.LessThanOrEqual(decimal.Zero) {
		return errors.New("record crypto amount must be positive")
	}

	if r.QuotePrice.LessThanOrEqual(decimal.Zero) {
		return errors.New("record quote price must be positive")
	}

	if r.Destination == "" {
		return errors.New("record destination cannot be empty")
	}

	return nil
}
