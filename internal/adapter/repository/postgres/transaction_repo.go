package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/cryptokiosk-backend/internal/domain"
)

// transactionRecordRepository implements domain.TransactionRecordRepository
type transactionRecordRepository struct {
	db *DB
}

// NewTransactionRecordRepository creates a new transaction record repository
func NewTransactionRecordRepository(db *DB) domain.TransactionRecordRepository {
	return &transactionRecordRepository{db: db}
}

const recordColumns = `id, kind, asset, network, amount_ars, fee_percentage, fee_amount, net_amount,
	crypto_amount, quote_price, quote_currency, quote_source, exchange_rate, destination,
	settlement_ref, completed_at`

// Create inserts a completed transaction record
func (r *transactionRecordRepository) Create(ctx context.Context, record *domain.TransactionRecord) error {
	query := `
		INSERT INTO transaction_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		string(record.Kind),
		string(record.Asset),
		record.Network,
		record.AmountArs,
		record.FeePercentage.String(),
		record.FeeAmount.String(),
		record.NetAmount.String(),
		record.CryptoAmount.String(),
		record.QuotePrice.String(),
		record.QuoteCurrency,
		string(record.QuoteSource),
		record.ExchangeRate.String(),
		record.Destination,
		record.SettlementRef,
		record.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction record: %w", err)
	}

	return nil
}

// GetByID retrieves a record by its session ID
func (r *transactionRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TransactionRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM transaction_records WHERE id = $1`

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction record %s: %w", id, domain.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction record by ID: %w", err)
	}

	return record, nil
}

// List retrieves a page of records, newest first
func (r *transactionRecordRepository) List(ctx context.Context, limit, offset int) ([]*domain.TransactionRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM transaction_records
		ORDER BY completed_at DESC, id
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction records: %w", err)
	}
	defer rows.Close()

	var records []*domain.TransactionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction records: %w", err)
	}

	return records, nil
}

// Count returns the total number of records
func (r *transactionRecordRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transaction_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transaction records: %w", err)
	}
	return count, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.TransactionRecord, error) {
	var record domain.TransactionRecord
	var kind, asset, source string
	var feePct, feeAmount, netAmount, cryptoAmount, quotePrice, rate string

	err := row.Scan(
		&record.ID,
		&kind,
		&asset,
		&record.Network,
		&record.AmountArs,
		&feePct,
		&feeAmount,
		&netAmount,
		&cryptoAmount,
		&quotePrice,
		&record.QuoteCurrency,
		&source,
		&rate,
		&record.Destination,
		&record.SettlementRef,
		&record.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Kind = domain.TransactionKind(kind)
	record.Asset = domain.Asset(asset)
	record.QuoteSource = domain.QuoteSource(source)

	// NUMERIC columns
	decimals := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"fee_percentage", feePct, &record.FeePercentage},
		{"fee_amount", feeAmount, &record.FeeAmount},
		{"net_amount", netAmount, &record.NetAmount},
		{"crypto_amount", cryptoAmount, &record.CryptoAmount},
		{"quote_price", quotePrice, &record.QuotePrice},
		{"exchange_rate", rate, &record.ExchangeRate},
	}
	for _, d := range decimals {
		v, err := decimal.NewFromString(d.raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", d.name, err)
		}
		*d.dst = v
	}

	return &record, nil
}
