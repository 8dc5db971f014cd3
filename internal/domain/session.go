package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SessionStatus represents the lifecycle state of a session
type SessionStatus string

const (
	StatusInProgress SessionStatus = "IN_PROGRESS"
	StatusCompleted  SessionStatus = "COMPLETED"
	StatusCancelled  SessionStatus = "CANCELLED"
)

// TransactionSession represents one run of the purchase or sale wizard.
// It is owned by a single flow controller; views only ever see copies.
// The verification code is kept in the code store, never on the session.
type TransactionSession struct {
	ID     uuid.UUID
	Kind   TransactionKind
	Step   Step
	Status SessionStatus

	CommunicationMethod CommunicationMethod
	Phone               string
	PhoneVerified       bool

	Asset         Asset
	Network       string
	WalletAddress string

	AmountArs          int64
	DetectedCashAmount int64 // purchase only, authoritative once confirmed
	Quote              *Quote

	// Derived from AmountArs, Asset and Quote. Only the flow controller writes them.
	FeePercentage decimal.Decimal
	FeeAmount     decimal.Decimal
	NetAmount     decimal.Decimal
	CryptoAmount  decimal.Decimal

	PaymentRequest string // sale only
	SettlementRef  string

	StartedAt   time.Time
	CompletedAt *time.Time
}

// NewTransactionSession creates a session positioned at step 1 of the kind
func NewTransactionSession(kind TransactionKind, now time.Time) (*TransactionSession, error) {
	if !kind.IsValid() {
		return nil, errors.New("transaction kind must be PURCHASE or SALE")
	}

	return &TransactionSession{
		ID:        uuid.New(),
		Kind:      kind,
		Step:      1,
		Status:    StatusInProgress,
		StartedAt: now,
	}, nil
}

// Validate ensures the session is positioned on a valid step for its kind
func (s *TransactionSession) Validate() error {
	if !s.Kind.IsValid() {
		return errors.New("transaction kind must be PURCHASE or SALE")
	}

	if !s.Kind.IsValidStep(s.Step) {
		return errors.New("step is out of range for " + string(s.Kind))
	}

	if s.Status == StatusCompleted && s.Step != s.Kind.CompletedStep() {
		return errors.New("completed session must be on the completed step")
	}

	if s.AmountArs < 0 || s.DetectedCashAmount < 0 {
		return errors.New("amounts cannot be negative")
	}

	return nil
}

// IsTerminal reports whether the session can no longer change
func (s *TransactionSession) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusCancelled
}

// StepName returns the screen name of the current step
func (s *TransactionSession) StepName() string {
	return s.Kind.StepName(s.Step)
}

// ClearPricing drops the committed amount and everything derived from it
func (s *TransactionSession) ClearPricing() {
	s.AmountArs = 0
	s.Quote = nil
	s.FeePercentage = decimal.Zero
	s.FeeAmount = decimal.Zero
	s.NetAmount = decimal.Zero
	s.CryptoAmount = decimal.Zero
	s.PaymentRequest = ""
}

// ReleaseTransient wipes the customer-supplied fields so nothing carries over to the next flow
func (s *TransactionSession) ReleaseTransient() {
	s.Phone = ""
	s.PhoneVerified = false
	s.CommunicationMethod = ""
	s.WalletAddress = ""
	s.DetectedCashAmount = 0
	s.ClearPricing()
}

// Snapshot returns a deep copy safe to hand to the view layer
func (s *TransactionSession) Snapshot() TransactionSession {
	cp := *s
	if s.Quote != nil {
		q := *s.Quote
		cp.Quote = &q
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}
