package subscription

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dmitrymomot/fleetbilling/pkg/billing"
	"github.com/dmitrymomot/fleetbilling/pkg/keylock"
	"github.com/dmitrymomot/fleetbilling/pkg/logger"
	"github.com/dmitrymomot/fleetbilling/pkg/plan"
	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

// SelfService exposes the payment processor's self-service flows to a tenant.
// Gateway errors are returned to the caller.
type SelfService struct {
	tenants tenant.Store
	catalog plan.Catalog
	gateway billing.Gateway
	opts    *options
}

// NewSelfService creates the self-service component. The tenant store is
// written only to attach a billing customer before the first checkout.
func NewSelfService(tenants tenant.Store, catalog plan.Catalog, gateway billing.Gateway, opts ...Option) *SelfService {
	return &SelfService{tenants: tenants, catalog: catalog, gateway: gateway, opts: newOptions(opts)}
}

// PortalURL returns a billing portal link for the tenant's external customer.
func (s *SelfService) PortalURL(ctx context.Context, tenantID uuid.UUID, returnURL string) (string, error) {
	t, err := s.customer(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return s.gateway.CreatePortalSession(ctx, t.ExternalCustomerID, returnURL)
}

// CheckoutParams describes a hosted checkout for a paid plan.
type CheckoutParams struct {
	PlanID     string `json:"plan_id"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// Checkout starts a hosted checkout. The plan and tenant ride along as
// metadata so the completion notification can be mapped back.
// A tenant without a billing customer gets one first, so the notification
// resolves to this tenant.
func (s *SelfService) Checkout(ctx context.Context, tenantID uuid.UUID, p CheckoutParams) (*billing.CheckoutSession, error) {
	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	target, err := s.catalog.Get(ctx, p.PlanID)
	if err != nil {
		if errors.Is(err, plan.ErrPlanNotFound) {
			return nil, errors.Join(ErrUnknownPlan, err)
		}
		return nil, err
	}
	if target.ExternalPriceID == "" {
		return nil, ErrPlanNotPurchasable
	}

	if t.ExternalCustomerID == "" {
		if t, err = s.attachCustomer(ctx, tenantID); err != nil {
			return nil, err
		}
	}

	// Trials are for first-time subscribers only.
	trialDays := target.TrialDays
	if t.ExternalSubscriptionID != "" {
		trialDays = 0
	}

	return s.gateway.CreateCheckoutSession(ctx, billing.CheckoutParams{
		CustomerID: t.ExternalCustomerID,
		Email:      t.Email,
		PriceID:    target.ExternalPriceID,
		TenantID:   t.ID.String(),
		PlanID:     target.ID,
		TrialDays:  trialDays,
		SuccessURL: p.SuccessURL,
		CancelURL:  p.CancelURL,
	})
}

// Invoices lists the most recent invoices. Tenants without a customer have none.
func (s *SelfService) Invoices(ctx context.Context, tenantID uuid.UUID, limit int) ([]billing.Invoice, error) {
	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.ExternalCustomerID == "" {
		return []billing.Invoice{}, nil
	}
	return s.gateway.ListInvoices(ctx, t.ExternalCustomerID, limit)
}

// PaymentMethod returns the customer's default payment method.
func (s *SelfService) PaymentMethod(ctx context.Context, tenantID uuid.UUID) (*billing.PaymentMethod, error) {
	t, err := s.customer(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.gateway.GetDefaultPaymentMethod(ctx, t.ExternalCustomerID)
}

// Cancel asks the processor to cancel the tenant's subscription.
// Local state follows when the deletion notification arrives.
func (s *SelfService) Cancel(ctx context.Context, tenantID uuid.UUID) error {
	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	if t.ExternalSubscriptionID == "" {
		return ErrNoExternalSubscription
	}
	if err := s.gateway.CancelSubscription(ctx, t.ExternalSubscriptionID); err != nil {
		return err
	}
	s.opts.logger.InfoContext(ctx, "subscription cancellation requested",
		logger.TenantID(t.ID),
		logger.SubscriptionID(t.ExternalSubscriptionID))
	return nil
}

func (s *SelfService) customer(ctx context.Context, tenantID uuid.UUID) (*tenant.Tenant, error) {
	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.ExternalCustomerID == "" {
		return nil, ErrNoBillingCustomer
	}
	return t, nil
}

// attachCustomer creates the external customer under the tenant lock and
// stores it. A customer attached concurrently is reused.
func (s *SelfService) attachCustomer(ctx context.Context, tenantID uuid.UUID) (*tenant.Tenant, error) {
	var t *tenant.Tenant
	err := keylock.Do(ctx, s.opts.locker, keylock.TenantKey(tenantID.String()), func(ctx context.Context) error {
		var err error
		if t, err = s.tenants.Get(ctx, tenantID); err != nil {
			return err
		}
		if t.ExternalCustomerID != "" {
			return nil
		}
		customerID, err := s.gateway.CreateCustomer(ctx, billing.CustomerParams{
			TenantID: t.ID.String(),
			Email:    t.Email,
			Name:     t.Name,
		})
		if err != nil {
			return errors.Join(billing.ErrGateway, err)
		}
		t.ExternalCustomerID = customerID
		t.UpdatedAt = s.opts.now().UTC()
		return s.tenants.Update(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	s.opts.logger.InfoContext(ctx, "billing customer attached",
		logger.TenantID(t.ID),
		logger.CustomerID(t.ExternalCustomerID))
	return t, nil
}
