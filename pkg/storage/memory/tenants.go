package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

// TenantStore is an in-memory tenant.Store.
type TenantStore struct {
	mu         sync.RWMutex
	tenants    map[uuid.UUID]*tenant.Tenant
	byCustomer map[string]uuid.UUID
	bySub      map[string]uuid.UUID
}

// NewTenantStore returns an empty store.
func NewTenantStore() *TenantStore {
	return &TenantStore{
		tenants:    make(map[uuid.UUID]*tenant.Tenant),
		byCustomer: make(map[string]uuid.UUID),
		bySub:      make(map[string]uuid.UUID),
	}
}

func (s *TenantStore) Get(_ context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	return t.Clone(), nil
}

func (s *TenantStore) GetByCustomerID(ctx context.Context, customerID string) (*tenant.Tenant, error) {
	return s.getBy(s.byCustomer, customerID)
}

func (s *TenantStore) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*tenant.Tenant, error) {
	return s.getBy(s.bySub, subscriptionID)
}

func (s *TenantStore) getBy(index map[string]uuid.UUID, key string) (*tenant.Tenant, error) {
	if key == "" {
		return nil, tenant.ErrTenantNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := index[key]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	return s.tenants[id].Clone(), nil
}

func (s *TenantStore) Create(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[t.ID]; ok {
		return fmt.Errorf("tenant %s already exists", t.ID)
	}
	if err := s.checkUnique(t); err != nil {
		return err
	}
	s.put(t.Clone(), nil)
	return nil
}

func (s *TenantStore) Update(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.tenants[t.ID]
	if !ok {
		return tenant.ErrTenantNotFound
	}
	if err := s.checkUnique(t); err != nil {
		return err
	}
	s.put(t.Clone(), prev)
	return nil
}

func (s *TenantStore) checkUnique(t *tenant.Tenant) error {
	if id, ok := s.byCustomer[t.ExternalCustomerID]; ok && t.ExternalCustomerID != "" && id != t.ID {
		return fmt.Errorf("%w: customer %s", tenant.ErrDuplicateExternalID, t.ExternalCustomerID)
	}
	if id, ok := s.bySub[t.ExternalSubscriptionID]; ok && t.ExternalSubscriptionID != "" && id != t.ID {
		return fmt.Errorf("%w: subscription %s", tenant.ErrDuplicateExternalID, t.ExternalSubscriptionID)
	}
	return nil
}

func (s *TenantStore) put(t, prev *tenant.Tenant) {
	if prev != nil {
		delete(s.byCustomer, prev.ExternalCustomerID)
		delete(s.bySub, prev.ExternalSubscriptionID)
	}
	s.tenants[t.ID] = t
	if t.ExternalCustomerID != "" {
		s.byCustomer[t.ExternalCustomerID] = t.ID
	}
	if t.ExternalSubscriptionID != "" {
		s.bySub[t.ExternalSubscriptionID] = t.ID
	}
}

// Len returns the number of stored tenants.
func (s *TenantStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tenants)
}
