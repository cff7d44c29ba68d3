package postgres

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/fleetbilling/pkg/billing"
	"github.com/dmitrymomot/fleetbilling/pkg/pg"
)

// PaymentStore records captured payments, once per invoice.
type PaymentStore struct {
	db *pg.TxManager
}

// NewPaymentStore creates a PaymentStore.
func NewPaymentStore(db *pg.TxManager) *PaymentStore {
	return &PaymentStore{db: db}
}

// RecordPayment implements billing.PaymentRecorder.
func (s *PaymentStore) RecordPayment(ctx context.Context, p billing.Payment) error {
	_, err := s.db.Conn(ctx).Exec(ctx, `
		INSERT INTO payments (invoice_id, customer_id, subscription_id, amount, currency, provider, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (invoice_id) DO NOTHING`,
		p.InvoiceID, p.CustomerID, p.SubscriptionID, p.Amount, p.Currency, p.Provider, p.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("record payment %s: %w", p.InvoiceID, err)
	}
	return nil
}

// ListByCustomer returns a customer's payments, newest first.
func (s *PaymentStore) ListByCustomer(ctx context.Context, customerID string) ([]billing.Payment, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, `
		SELECT invoice_id, customer_id, subscription_id, amount, currency, provider, paid_at
		FROM payments WHERE customer_id = $1 ORDER BY paid_at DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []billing.Payment
	for rows.Next() {
		var p billing.Payment
		if err := rows.Scan(&p.InvoiceID, &p.CustomerID, &p.SubscriptionID, &p.Amount, &p.Currency, &p.Provider, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
