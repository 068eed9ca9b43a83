package service

import (
	"context"
	"sync"
	"time"

	"github.com/ethaccount/gasless/src/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ExecutionStore tracks the status of actions. Claim fails with domain.ErrActionInFlight
// unless the action id is new or its previous attempt failed.
type ExecutionStore interface {
	Claim(ctx context.Context, entry *domain.ExecutionCache) error
	Update(ctx context.Context, entry *domain.ExecutionCache) error
	Get(ctx context.Context, actionID string) (*domain.ExecutionCache, error)
}

// ExecutionRecorder persists the history of finished executions
type ExecutionRecorder interface {
	Record(ctx context.Context, record *domain.ExecutionRecord) error
	List(ctx context.Context, owner common.Address, limit int) ([]*domain.ExecutionRecord, error)
}

// MemoryExecutionStore keeps statuses and history in process memory
type MemoryExecutionStore struct {
	mu      sync.Mutex
	entries map[string]domain.ExecutionCache
	records []*domain.ExecutionRecord
}

func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{entries: make(map[string]domain.ExecutionCache)}
}

func (s *MemoryExecutionStore) Claim(ctx context.Context, entry *domain.ExecutionCache) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[entry.ActionID]; ok && !existing.Claimable() {
		return domain.ErrActionInFlight
	}
	entry.UpdatedAt = time.Now()
	s.entries[entry.ActionID] = *entry
	return nil
}

func (s *MemoryExecutionStore) Update(ctx context.Context, entry *domain.ExecutionCache) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.UpdatedAt = time.Now()
	s.entries[entry.ActionID] = *entry
	return nil
}

func (s *MemoryExecutionStore) Get(ctx context.Context, actionID string) (*domain.ExecutionCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[actionID]
	if !ok {
		return nil, domain.ErrExecutionNotFound
	}
	return &entry, nil
}

// Record upserts by action id, like the database unique index does
func (s *MemoryExecutionStore) Record(ctx context.Context, record *domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for i, r := range s.records {
		if r.ActionID == record.ActionID {
			record.ID = r.ID
			record.CreatedAt = r.CreatedAt
			record.UpdatedAt = now
			s.records[i] = record
			return nil
		}
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.CreatedAt = now
	record.UpdatedAt = now
	s.records = append(s.records, record)
	return nil
}

// List returns the newest records of owner first
func (s *MemoryExecutionStore) List(ctx context.Context, owner common.Address, limit int) ([]*domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.ExecutionRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if common.HexToAddress(s.records[i].OwnerAddress) == owner {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}
