package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aescanero/costume-orders/pkg/domain"
)

// InMemoryOrderStore implements OrderStore using an in-memory map.
// Intended for tests and local runs.
type InMemoryOrderStore struct {
	orders map[string]domain.Order
	mu     sync.RWMutex
}

// NewInMemoryOrderStore creates a new in-memory order store
func NewInMemoryOrderStore() *InMemoryOrderStore {
	return &InMemoryOrderStore{
		orders: make(map[string]domain.Order),
	}
}

// Put stores a copy of the order, replacing any record with the same ID
func (s *InMemoryOrderStore) Put(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if order == nil || order.ID == "" {
		return fmt.Errorf("%w: order id is required", domain.ErrPermanentStore)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[order.ID] = copyOrder(*order)
	return nil
}

// Get returns a copy of the stored order
func (s *InMemoryOrderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	out := copyOrder(order)
	return &out, nil
}

// Len returns the number of stored orders
func (s *InMemoryOrderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.orders)
}

// copyOrder avoids sharing the items slice with callers
func copyOrder(o domain.Order) domain.Order {
	items := make([]domain.OrderItem, len(o.Items))
	copy(items, o.Items)
	return domain.Order{ID: o.ID, Items: items}
}
