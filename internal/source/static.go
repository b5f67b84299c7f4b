package source

import (
	"context"
	"sync"

	"github.com/hyperjump/soroe/internal/models"
)

// StaticSource serves a mutable in-memory snapshot. Used in tests and as a
// stand-in when no source URL is configured.
type StaticSource struct {
	mu     sync.RWMutex
	orders []*models.Order
	err    error
}

// NewStaticSource creates a source seeded with orders.
func NewStaticSource(orders ...*models.Order) *StaticSource {
	return &StaticSource{orders: orders}
}

// SetOrders replaces the snapshot.
func (s *StaticSource) SetOrders(orders ...*models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = orders
	s.err = nil
}

// SetError makes subsequent FetchAll calls fail with err.
func (s *StaticSource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// FetchAll returns a copy of the current snapshot.
func (s *StaticSource) FetchAll(ctx context.Context) ([]*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*models.Order, len(s.orders))
	copy(out, s.orders)
	return out, nil
}
