package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/dmitrymomot/fleetbilling/pkg/billing"
)

// PaymentStore records payments once per invoice.
type PaymentStore struct {
	mu       sync.RWMutex
	payments map[string]billing.Payment
}

// NewPaymentStore returns an empty store.
func NewPaymentStore() *PaymentStore {
	return &PaymentStore{payments: make(map[string]billing.Payment)}
}

// RecordPayment implements billing.PaymentRecorder.
// A repeated invoice id keeps the first record.
func (s *PaymentStore) RecordPayment(_ context.Context, p billing.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payments[p.InvoiceID]; !ok {
		s.payments[p.InvoiceID] = p
	}
	return nil
}

// ListByCustomer returns a customer's payments, newest first.
func (s *PaymentStore) ListByCustomer(_ context.Context, customerID string) ([]billing.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []billing.Payment
	for _, p := range s.payments {
		if p.CustomerID == customerID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b billing.Payment) int {
		return b.PaidAt.Compare(a.PaidAt)
	})
	return out, nil
}
