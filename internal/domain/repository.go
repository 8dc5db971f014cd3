package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TransactionRecordRepository defines the interface for completed transaction persistence
type TransactionRecordRepository interface {
	// Create stores a new record
	Create(ctx context.Context, record *TransactionRecord) error

	// GetByID retrieves a record by its session ID
	// Returns ErrRecordNotFound when no record exists
	GetByID(ctx context.Context, id uuid.UUID) (*TransactionRecord, error)

	// List retrieves a page of records, newest first
	List(ctx context.Context, limit, offset int) ([]*TransactionRecord, error)

	// Count returns the total number of records
	Count(ctx context.Context) (int, error)
}

// CodeStore defines the interface for per-session verification code storage
type CodeStore interface {
	// Save stores the expected code for a session, replacing any previous one
	Save(ctx context.Context, sessionID uuid.UUID, code string, ttl time.Duration) error

	// Get returns the expected code for a session
	// Returns ErrCodeNotFound when the code expired or was never issued
	Get(ctx context.Context, sessionID uuid.UUID) (string, error)

	// Delete removes the code for a session; deleting a missing code is not an error
	Delete(ctx context.Context, sessionID uuid.UUID) error
}

// SendLimiter throttles verification code sends per phone number
type SendLimiter interface {
	// Allow returns nil when a code may be sent to phone now, or a ValidationError explaining the wait
	Allow(ctx context.Context, phone string) error
}
