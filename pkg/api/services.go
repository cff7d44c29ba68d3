package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrymomot/fleetbilling/pkg/billing"
	"github.com/dmitrymomot/fleetbilling/pkg/plan"
	"github.com/dmitrymomot/fleetbilling/pkg/subscription"
	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

// WebhookReceiver verifies and applies inbound billing notifications.
type WebhookReceiver interface {
	Handle(ctx context.Context, payload []byte, signature string) error
}

// EntitlementResolver loads the tenant's current plan and usage.
type EntitlementResolver interface {
	ResolveCurrent(ctx context.Context, tenantID uuid.UUID) (*subscription.Entitlement, error)
}

// LimitChecker answers quota questions for a tenant.
type LimitChecker interface {
	Check(ctx context.Context, tenantID uuid.UUID, r plan.Resource) (subscription.LimitCheck, error)
	EnforceLimit(ctx context.Context, tenantID uuid.UUID, r plan.Resource) error
}

// UsageCounter changes usage counters.
type UsageCounter interface {
	UpdateUsage(ctx context.Context, tenantID uuid.UUID, r plan.Resource, delta int64) (subscription.Usage, error)
	Reserve(ctx context.Context, tenantID uuid.UUID, r plan.Resource) (*subscription.Reservation, error)
}

// PlanChanger moves a tenant to another plan.
type PlanChanger interface {
	ChangePlan(ctx context.Context, tenantID uuid.UUID, newPlanID string) (*tenant.Tenant, error)
}

// SelfService exposes the payment processor flows to tenants.
type SelfService interface {
	PortalURL(ctx context.Context, tenantID uuid.UUID, returnURL string) (string, error)
	Checkout(ctx context.Context, tenantID uuid.UUID, p subscription.CheckoutParams) (*billing.CheckoutSession, error)
	Invoices(ctx context.Context, tenantID uuid.UUID, limit int) ([]billing.Invoice, error)
	PaymentMethod(ctx context.Context, tenantID uuid.UUID) (*billing.PaymentMethod, error)
	Cancel(ctx context.Context, tenantID uuid.UUID) error
}

// Registrar onboards new tenants.
type Registrar interface {
	Register(ctx context.Context, p subscription.RegisterParams) (*tenant.Tenant, error)
}

// PaymentLister lists captured payments of a billing customer.
type PaymentLister interface {
	ListByCustomer(ctx context.Context, customerID string) ([]billing.Payment, error)
}

// Services are the collaborators behind the HTTP handlers.
type Services struct {
	Webhooks     WebhookReceiver
	Tenants      tenant.Provider
	Catalog      plan.Catalog
	Entitlements EntitlementResolver
	Limits       LimitChecker
	Usage        UsageCounter
	Plans        PlanChanger
	SelfService  SelfService
	Registrar    Registrar
	Payments     PaymentLister
}
