package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solrouter/swapflow/internal/order"
)

// MemoryStore is an in-process OrderStore for tests and ephemeral runs.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]*OrderRow
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*OrderRow)}
}

func (s *MemoryStore) UpsertStatus(ctx context.Context, ord *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := ord.ID.String()
	row, ok := s.rows[id]
	if !ok {
		row = &OrderRow{
			ID:        id,
			Side:      string(ord.Side),
			TokenIn:   ord.TokenIn,
			TokenOut:  ord.TokenOut,
			Amount:    ord.Amount.String(),
			Slippage:  ord.Slippage,
			CreatedAt: time.Now(),
		}
		s.rows[id] = row
	}
	row.Status = string(ord.Status)
	row.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) MarkConfirmed(ctx context.Context, id uuid.UUID, ref string, executedPrice string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id.String()]
	if !ok {
		return &PersistenceError{Op: "confirm", Err: fmt.Errorf("order %s not found", id)}
	}
	row.Status = string(order.StatusConfirmed)
	row.SettlementRef = ref
	row.ExecutedPrice = executedPrice
	row.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id.String()]
	if !ok {
		return &PersistenceError{Op: "fail", Err: fmt.Errorf("order %s not found", id)}
	}
	row.Status = string(order.StatusFailed)
	row.LastError = reason
	row.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*OrderRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id.String()]
	if !ok {
		return nil, &PersistenceError{Op: "get", Err: fmt.Errorf("order %s not found", id)}
	}
	cp := *row
	return &cp, nil
}
