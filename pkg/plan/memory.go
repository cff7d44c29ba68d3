package plan

import (
	"context"
	"fmt"
	"sync"
)

// MemoryCatalog keeps plans in memory. Safe for concurrent use.
type MemoryCatalog struct {
	mu      sync.RWMutex
	plans   map[string]Plan
	byPrice map[string]string
}

// NewMemoryCatalog validates the given plans and returns a catalog holding deep copies of them.
func NewMemoryCatalog(plans ...Plan) (*MemoryCatalog, error) {
	c := &MemoryCatalog{
		plans:   make(map[string]Plan, len(plans)),
		byPrice: make(map[string]string, len(plans)),
	}
	for _, p := range plans {
		if err := c.add(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustMemoryCatalog is like NewMemoryCatalog but panics on invalid plans.
// Intended for tests and static wiring.
func MustMemoryCatalog(plans ...Plan) *MemoryCatalog {
	c, err := NewMemoryCatalog(plans...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *MemoryCatalog) add(p Plan) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, exists := c.plans[p.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePlan, p.ID)
	}
	if p.ExternalPriceID != "" {
		if other, exists := c.byPrice[p.ExternalPriceID]; exists {
			return fmt.Errorf("%w: price %s used by %s and %s", ErrDuplicatePlan, p.ExternalPriceID, other, p.ID)
		}
		c.byPrice[p.ExternalPriceID] = p.ID
	}
	c.plans[p.ID] = p.Clone()
	return nil
}

func (c *MemoryCatalog) Get(_ context.Context, id string) (Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.plans[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p.Clone(), nil
}

func (c *MemoryCatalog) GetByPriceID(ctx context.Context, priceID string) (Plan, error) {
	if priceID == "" {
		return Plan{}, ErrPlanNotFound
	}

	c.mu.RLock()
	id, ok := c.byPrice[priceID]
	c.mu.RUnlock()
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return c.Get(ctx, id)
}

func (c *MemoryCatalog) List(_ context.Context) ([]Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p.Clone())
	}
	SortPlans(out)
	return out, nil
}
