package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/simaogato/cryptokiosk-backend/internal/domain"
)

// recordRepository keeps completed transactions in process memory.
// Used when no database is configured; records are lost on restart.
type recordRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]domain.TransactionRecord
}

// NewTransactionRecordRepository creates a new in-memory transaction record repository
func NewTransactionRecordRepository() domain.TransactionRecordRepository {
	return &recordRepository{records: make(map[uuid.UUID]domain.TransactionRecord)}
}

func (r *recordRepository) Create(_ context.Context, record *domain.TransactionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.ID]; exists {
		return fmt.Errorf("transaction record %s already exists", record.ID)
	}
	r.records[record.ID] = *record
	return nil
}

func (r *recordRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.TransactionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("transaction record %s: %w", id, domain.ErrRecordNotFound)
	}
	return &record, nil
}

func (r *recordRepository) List(_ context.Context, limit, offset int) ([]*domain.TransactionRecord, error) {
	r.mu.RLock()
	all := make([]*domain.TransactionRecord, 0, len(r.records))
	for _, record := range r.records {
		record := record
		all = append(all, &record)
	}
	r.mu.RUnlock()

	// newest first, ID breaks ties
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CompletedAt.Equal(all[j].CompletedAt) {
			return all[i].CompletedAt.After(all[j].CompletedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})

	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *recordRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records), nil
}
