package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection
// connectionString should be in the format: "host=localhost port=5432 user=postgres password=postgres dbname=kiosk sslmode=disable"
func NewDB(ctx context.Context, connectionString string, maxOpenConns int) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// schema creates the tables the kiosk writes to
const schema = `
CREATE TABLE IF NOT EXISTS transaction_records (
	id             UUID PRIMARY KEY,
	kind           TEXT NOT NULL,
	asset          TEXT NOT NULL,
	network        TEXT NOT NULL,
	amount_ars     BIGINT NOT NULL,
	fee_percentage NUMERIC NOT NULL,
	fee_amount     NUMERIC NOT NULL,
	net_amount     NUMERIC NOT NULL,
	crypto_amount  NUMERIC NOT NULL,
	quote_price    NUMERIC NOT NULL,
	quote_currency TEXT NOT NULL,
	quote_source   TEXT NOT NULL,
	exchange_rate  NUMERIC NOT NULL,
	destination    TEXT NOT NULL,
	settlement_ref TEXT NOT NULL DEFAULT '',
	completed_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transaction_records_completed_at_idx ON transaction_records (completed_at DESC);
`

// EnsureSchema creates missing tables and indexes
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
