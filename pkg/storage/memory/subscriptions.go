package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/fleetbilling/pkg/plan"
	"github.com/dmitrymomot/fleetbilling/pkg/subscription"
)

// SubscriptionStore is an in-memory subscription.Store.
// Usage changes bump the version so plan changes notice concurrent counting.
type SubscriptionStore struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]*subscription.Subscription
	active map[uuid.UUID]uuid.UUID // tenant id -> subscription id
}

// NewSubscriptionStore returns an empty store.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{
		subs:   make(map[uuid.UUID]*subscription.Subscription),
		active: make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *SubscriptionStore) GetActive(_ context.Context, tenantID uuid.UUID) (*subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.activeLocked(tenantID)
	if !ok {
		return nil, subscription.ErrSubscriptionNotFound
	}
	c := *sub
	return &c, nil
}

func (s *SubscriptionStore) Create(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.Status == subscription.StatusActive {
		if _, ok := s.active[sub.TenantID]; ok {
			return subscription.ErrActiveSubscriptionExists
		}
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.Version = 1

	c := *sub
	s.subs[c.ID] = &c
	if c.Status == subscription.StatusActive {
		s.active[c.TenantID] = c.ID
	}
	return nil
}

func (s *SubscriptionStore) Update(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.subs[sub.ID]
	if !ok {
		return subscription.ErrSubscriptionNotFound
	}
	if stored.Version != sub.Version {
		return subscription.ErrVersionConflict
	}

	wasActive := stored.Status == subscription.StatusActive
	isActive := sub.Status == subscription.StatusActive
	if isActive && !wasActive {
		if _, ok := s.active[sub.TenantID]; ok {
			return subscription.ErrActiveSubscriptionExists
		}
	}

	c := *sub
	c.Usage = stored.Usage
	c.Version = stored.Version + 1
	s.subs[c.ID] = &c

	switch {
	case wasActive && !isActive:
		delete(s.active, c.TenantID)
	case isActive:
		s.active[c.TenantID] = c.ID
	}

	sub.Version = c.Version
	sub.Usage = c.Usage
	return nil
}

func (s *SubscriptionStore) AdjustUsage(_ context.Context, tenantID uuid.UUID, r plan.Resource, delta int64) (subscription.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.activeLocked(tenantID)
	if !ok {
		return subscription.Usage{}, subscription.ErrSubscriptionNotFound
	}
	sub.Usage = sub.Usage.Add(r, delta)
	sub.Version++
	return sub.Usage, nil
}

func (s *SubscriptionStore) IncrementUsageWithin(_ context.Context, tenantID uuid.UUID, r plan.Resource, limit int64) (subscription.Usage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.activeLocked(tenantID)
	if !ok {
		return subscription.Usage{}, false, subscription.ErrSubscriptionNotFound
	}
	if limit != plan.Unlimited && sub.Usage.Get(r) >= limit {
		return sub.Usage, false, nil
	}
	sub.Usage = sub.Usage.Add(r, 1)
	sub.Version++
	return sub.Usage, true, nil
}

// SetUsage overwrites the counters of the active subscription.
// Useful to seed state in tests and demos.
func (s *SubscriptionStore) SetUsage(tenantID uuid.UUID, u subscription.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.activeLocked(tenantID)
	if !ok {
		return subscription.ErrSubscriptionNotFound
	}
	sub.Usage = u
	sub.Version++
	return nil
}

func (s *SubscriptionStore) activeLocked(tenantID uuid.UUID) (*subscription.Subscription, bool) {
	id, ok := s.active[tenantID]
	if !ok {
		return nil, false
	}
	sub, ok := s.subs[id]
	return sub, ok
}
