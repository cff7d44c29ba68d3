package plan

import (
	"context"
	"time"

	"github.com/dmitrymomot/fleetbilling/pkg/cache"
)

// CachedCatalog memoizes plan lookups of a slower catalog (typically the database).
// Plans are admin-managed and change rarely, so a short TTL is enough to pick up edits.
type CachedCatalog struct {
	next    Catalog
	byID    *cache.LRUCache[string, Plan]
	byPrice *cache.LRUCache[string, Plan]
}

// NewCachedCatalog wraps next with LRU caches of the given capacity and entry TTL.
func NewCachedCatalog(next Catalog, capacity int, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		next:    next,
		byID:    cache.NewLRUCache[string, Plan](capacity, cache.WithTTL[string, Plan](ttl)),
		byPrice: cache.NewLRUCache[string, Plan](capacity, cache.WithTTL[string, Plan](ttl)),
	}
}

func (c *CachedCatalog) Get(ctx context.Context, id string) (Plan, error) {
	if p, ok := c.byID.Get(id); ok {
		return p.Clone(), nil
	}
	p, err := c.next.Get(ctx, id)
	if err != nil {
		return Plan{}, err
	}
	c.byID.Put(id, p.Clone())
	return p, nil
}

func (c *CachedCatalog) GetByPriceID(ctx context.Context, priceID string) (Plan, error) {
	if p, ok := c.byPrice.Get(priceID); ok {
		return p.Clone(), nil
	}
	p, err := c.next.GetByPriceID(ctx, priceID)
	if err != nil {
		return Plan{}, err
	}
	c.byPrice.Put(priceID, p.Clone())
	return p, nil
}

// List always hits the underlying catalog; it backs admin and pricing pages only.
func (c *CachedCatalog) List(ctx context.Context) ([]Plan, error) {
	return c.next.List(ctx)
}

// Invalidate drops every cached plan. Call after catalog edits.
func (c *CachedCatalog) Invalidate() {
	c.byID.Clear()
	c.byPrice.Clear()
}
