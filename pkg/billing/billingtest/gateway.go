// Package billingtest provides a testify mock of billing.Gateway.
package billingtest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/fleetbilling/pkg/billing"
)

// Gateway is a mock billing.Gateway.
type Gateway struct {
	mock.Mock
}

var _ billing.Gateway = (*Gateway)(nil)

func (m *Gateway) Provider() string { return "mock" }

func (m *Gateway) SignatureHeader() string { return "X-Test-Signature" }

func (m *Gateway) CreateCustomer(ctx context.Context, p billing.CustomerParams) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func (m *Gateway) CreateSubscription(ctx context.Context, p billing.SubscriptionParams) (*billing.Subscription, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *Gateway) GetSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *Gateway) UpdateSubscriptionPrice(ctx context.Context, id, priceID string) (*billing.Subscription, error) {
	args := m.Called(ctx, id, priceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *Gateway) CancelSubscription(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *Gateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	args := m.Called(ctx, customerID, returnURL)
	return args.String(0), args.Error(1)
}

func (m *Gateway) CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutSession), args.Error(1)
}

func (m *Gateway) ListInvoices(ctx context.Context, customerID string, limit int) ([]billing.Invoice, error) {
	args := m.Called(ctx, customerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *Gateway) GetInvoice(ctx context.Context, id string) (*billing.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *Gateway) GetDefaultPaymentMethod(ctx context.Context, customerID string) (*billing.PaymentMethod, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PaymentMethod), args.Error(1)
}

func (m *Gateway) ParseEvent(ctx context.Context, payload []byte, signature string) (*billing.Event, error) {
	args := m.Called(ctx, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Event), args.Error(1)
}
