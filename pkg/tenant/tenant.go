package tenant

import (
	"context"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/fleetbilling/pkg/plan"
)

// Status is the billing lifecycle state of a tenant.
type Status string

const (
	StatusTrial      Status = "trial"
	StatusActive     Status = "active"
	StatusPastDue    Status = "past_due"
	StatusCancelled  Status = "cancelled"
	StatusIncomplete Status = "incomplete"
)

// NormalizeStatus maps a payment processor subscription status onto the
// tenant vocabulary. Statuses without a local counterpart are kept verbatim.
func NormalizeStatus(external string) Status {
	switch external {
	case "trialing":
		return StatusTrial
	case "canceled":
		return StatusCancelled
	default:
		return Status(external)
	}
}

// Tenant is a client company: the unit of billing and data isolation.
//
// ExternalCustomerID and ExternalSubscriptionID are the join keys used to map
// asynchronous billing notifications back to the tenant. Once set they are stable.
type Tenant struct {
	ID                     uuid.UUID               `json:"id"`
	Name                   string                  `json:"name"`
	Email                  string                  `json:"email"`
	PlanID                 string                  `json:"plan_id"`
	Status                 Status                  `json:"status"`
	ExternalCustomerID     string                  `json:"external_customer_id,omitempty"`
	ExternalSubscriptionID string                  `json:"external_subscription_id,omitempty"`
	TrialEndsAt            *time.Time              `json:"trial_ends_at,omitempty"`
	CustomLimits           map[plan.Resource]int64 `json:"custom_limits,omitempty"`
	SubscriptionStartedAt  *time.Time              `json:"subscription_started_at,omitempty"`
	SubscriptionEndedAt    *time.Time              `json:"subscription_ended_at,omitempty"`
	CreatedAt              time.Time               `json:"created_at"`
	UpdatedAt              time.Time               `json:"updated_at"`
}

// EffectiveLimit returns the quota that applies to the tenant for r:
// the custom override when one is set, otherwise the plan default.
func (t *Tenant) EffectiveLimit(p plan.Plan, r plan.Resource) int64 {
	if limit, ok := t.CustomLimits[r]; ok {
		return limit
	}
	return p.Limit(r)
}

// Clone returns a deep copy.
func (t *Tenant) Clone() *Tenant {
	c := *t
	c.CustomLimits = maps.Clone(t.CustomLimits)
	c.TrialEndsAt = cloneTime(t.TrialEndsAt)
	c.SubscriptionStartedAt = cloneTime(t.SubscriptionStartedAt)
	c.SubscriptionEndedAt = cloneTime(t.SubscriptionEndedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Provider loads a tenant by its local ID.
type Provider interface {
	// Get returns ErrTenantNotFound if no tenant has the given ID.
	Get(ctx context.Context, id uuid.UUID) (*Tenant, error)
}

// Store persists tenants.
// External identifiers must be unique across tenants.
type Store interface {
	Provider

	// GetByCustomerID resolves a tenant by the payment processor customer ID.
	GetByCustomerID(ctx context.Context, customerID string) (*Tenant, error)

	// GetBySubscriptionID resolves a tenant by the payment processor subscription ID.
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*Tenant, error)

	Create(ctx context.Context, t *Tenant) error

	// Update overwrites every mutable field of the tenant.
	Update(ctx context.Context, t *Tenant) error
}
