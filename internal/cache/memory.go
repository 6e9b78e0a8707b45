package cache

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/segyhp/installment-engine/internal/domain"
)

// MemoryStatusCache follows the same generation rules as RedisStatusCache without expiry
type MemoryStatusCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]map[string]domain.PaymentStatusResponse
	gens    map[uuid.UUID]int64
}

func NewMemoryStatusCache() *MemoryStatusCache {
	return &MemoryStatusCache{
		entries: make(map[uuid.UUID]map[string]domain.PaymentStatusResponse),
		gens:    make(map[uuid.UUID]int64),
	}
}

func (c *MemoryStatusCache) Get(_ context.Context, orderID uuid.UUID, field string) (*domain.PaymentStatusResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status, ok := c.entries[orderID][field]
	if !ok {
		return nil, false
	}
	return &status, true
}

func (c *MemoryStatusCache) Generation(_ context.Context, orderID uuid.UUID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[orderID], nil
}

func (c *MemoryStatusCache) Set(_ context.Context, orderID uuid.UUID, field string, gen int64, status *domain.PaymentStatusResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[orderID] != gen {
		return nil
	}
	fields, ok := c.entries[orderID]
	if !ok {
		fields = make(map[string]domain.PaymentStatusResponse)
		c.entries[orderID] = fields
	}
	fields[field] = *status
	return nil
}

func (c *MemoryStatusCache) Invalidate(_ context.Context, orderID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[orderID]++
	delete(c.entries, orderID)
	return nil
}
