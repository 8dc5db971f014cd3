package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/simaogato/cryptokiosk-backend/internal/domain"
	"go.uber.org/zap"
)

// RecordCompletionInput represents the input for recording a completed session
type RecordCompletionInput struct {
	Session      domain.TransactionSession
	ExchangeRate decimal.Decimal
	CompletedAt  time.Time
}

// LedgerService turns completed sessions into persisted transaction records
type LedgerService struct {
	RecordRepo domain.TransactionRecordRepository
	Logger     *zap.Logger
}

// NewLedgerService creates a new LedgerService instance
func NewLedgerService(recordRepo domain.TransactionRecordRepository, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		RecordRepo: recordRepo,
		Logger:     logger,
	}
}

// RecordCompletion builds and stores the receipt of a completed session
// Logic:
//  1. Require a priced session (amount, quote and derived values present)
//  2. Pick the destination: wallet address for purchases, payment request for sales
//  3. Validate the record (fee + net == amount) and persist it
func (s *LedgerService) RecordCompletion(ctx context.Context, input RecordCompletionInput) (*domain.TransactionRecord, error) {
	session := input.Session

	// 1. Priced session
	if session.Quote == nil {
		return nil, errors.New("cannot record a session without a quote")
	}

	// 2. Destination
	destination := session.WalletAddress
	if session.Kind == domain.KindSale {
		destination = session.PaymentRequest
	}

	record := &domain.TransactionRecord{
		ID:            session.ID,
		Kind:          session.Kind,
		Asset:         session.Asset,
		Network:       session.Network,
		AmountArs:     session.AmountArs,
		FeePercentage: session.FeePercentage,
		FeeAmount:     session.FeeAmount,
		NetAmount:     session.NetAmount,
		CryptoAmount:  session.CryptoAmount,
		QuotePrice:    session.Quote.Price,
		QuoteCurrency: session.Quote.Currency,
		QuoteSource:   session.Quote.Source,
		ExchangeRate:  input.ExchangeRate,
		Destination:   destination,
		SettlementRef: session.SettlementRef,
		CompletedAt:   input.CompletedAt,
	}

	// 3. Validate and persist
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction record: %w", err)
	}

	if err := s.RecordRepo.Create(ctx, record); err != nil {
		return nil, err
	}

	s.Logger.Info("transaction recorded",
		zap.String("record_id", record.ID.String()),
		zap.String("kind", string(record.Kind)),
		zap.String("asset", string(record.Asset)),
		zap.Int64("amount_ars", record.AmountArs),
		zap.String("crypto_amount", record.CryptoAmount.String()),
		zap.String("quote_source", string(record.QuoteSource)),
	)

	return record, nil
}

// ListRecordsResult is a page of records plus the total count
type ListRecordsResult struct {
	Records    []*domain.TransactionRecord
	TotalCount int
}

// ListRecords returns a page of completed transactions, newest first
func (s *LedgerService) ListRecords(ctx context.Context, limit, offset int) (*ListRecordsResult, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		return nil, errors.New("offset must not be negative")
	}

	records, err := s.RecordRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	total, err := s.RecordRepo.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &ListRecordsResult{Records: records, TotalCount: total}, nil
}
