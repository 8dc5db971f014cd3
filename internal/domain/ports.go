package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrCodeNotFound is returned by a CodeStore when no code is held for a session
var ErrCodeNotFound = errors.New("verification code not found or expired")

// PriceSource looks up the current price of an asset from an external feed
type PriceSource interface {
	// FetchPrice returns the price of one unit of asset and the currency it is quoted in
	FetchPrice(ctx context.Context, asset Asset) (decimal.Decimal, string, error)
}

// CodeDispatcher delivers a verification message to a phone.
// Callers never wait for delivery confirmation.
type CodeDispatcher interface {
	Dispatch(ctx context.Context, method CommunicationMethod, phone, message string) error
}

// CashAcceptor reports the banknotes inserted into the kiosk
type CashAcceptor interface {
	// DetectInsertedCash blocks until the acceptor reports the total ARS inserted
	DetectInsertedCash(ctx context.Context) (int64, error)
}

// SettlementRequest describes the crypto delivery of a purchase
type SettlementRequest struct {
	SessionID     uuid.UUID
	Asset         Asset
	Network       string
	WalletAddress string
	CryptoAmount  decimal.Decimal
}

// SettlementGateway delivers purchased crypto to the customer's wallet
type SettlementGateway interface {
	// Settle returns a settlement reference on success
	Settle(ctx context.Context, req SettlementRequest) (string, error)
}

// PaymentRequestInput describes the payment a sale expects from the customer
type PaymentRequestInput struct {
	SessionID    uuid.UUID
	Asset        Asset
	Network      string
	CryptoAmount decimal.Decimal
}

// PaymentRequester builds the payment presentment artifact (invoice URI shown as a QR code)
type PaymentRequester interface {
	CreatePaymentRequest(ctx context.Context, in PaymentRequestInput) (string, error)
}

// PaymentConfirmer waits for the customer's crypto payment of a sale
type PaymentConfirmer interface {
	// AwaitPayment returns nil once the payment request is paid
	AwaitPayment(ctx context.Context, paymentRequest string) error
}
