package subscription

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/fleetbilling/pkg/plan"
)

// Status is the state of a local subscription record.
type Status string

const (
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusUnpaid   Status = "unpaid"
)

// Usage holds the per-resource counters of a subscription.
// Counters never go below zero.
type Usage struct {
	Vehicles int64 `json:"vehicles"`
	Users    int64 `json:"users"`
	Drivers  int64 `json:"drivers"`
}

// Get returns the counter for r. Unknown resources report zero.
func (u Usage) Get(r plan.Resource) int64 {
	switch r {
	case plan.ResourceVehicles:
		return u.Vehicles
	case plan.ResourceUsers:
		return u.Users
	case plan.ResourceDrivers:
		return u.Drivers
	default:
		return 0
	}
}

// Add returns a copy of u with delta applied to r, clamped at zero.
func (u Usage) Add(r plan.Resource, delta int64) Usage {
	v := max(u.Get(r)+delta, 0)
	switch r {
	case plan.ResourceVehicles:
		u.Vehicles = v
	case plan.ResourceUsers:
		u.Users = v
	case plan.ResourceDrivers:
		u.Drivers = v
	}
	return u
}

// Subscription binds a tenant to a plan for a period and carries its usage.
// Version is bumped by every successful Store.Update.
type Subscription struct {
	ID                     uuid.UUID  `json:"id"`
	TenantID               uuid.UUID  `json:"tenant_id"`
	PlanID                 string     `json:"plan_id"`
	Status                 Status     `json:"status"`
	PeriodStart            time.Time  `json:"period_start"`
	PeriodEnd              *time.Time `json:"period_end,omitempty"`
	ExternalSubscriptionID string     `json:"external_subscription_id,omitempty"`
	Usage                  Usage      `json:"usage"`
	Version                int64      `json:"version"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// New creates an active subscription of tenantID to p starting at now.
func New(tenantID uuid.UUID, p plan.Plan, now time.Time) *Subscription {
	now = now.UTC()
	return &Subscription{
		ID:          uuid.New(),
		TenantID:    tenantID,
		PlanID:      p.ID,
		Status:      StatusActive,
		PeriodStart: now,
		PeriodEnd:   periodEnd(p.Interval, now),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func periodEnd(interval plan.BillingInterval, start time.Time) *time.Time {
	var end time.Time
	switch interval {
	case plan.BillingIntervalMonthly:
		end = start.AddDate(0, 1, 0)
	case plan.BillingIntervalAnnual:
		end = start.AddDate(1, 0, 0)
	default:
		return nil
	}
	return &end
}

// UsageInfo is the usage of a single resource against its effective limit.
type UsageInfo struct {
	Current int64 `json:"current"`
	Limit   int64 `json:"limit"`
}

// Unlimited reports whether the resource has no cap.
func (u UsageInfo) Unlimited() bool { return u.Limit == plan.Unlimited }

// Percentage returns how much of the limit is used, 0-100.
// Unlimited resources always report 0; a zero limit reports 100.
func (u UsageInfo) Percentage() int {
	switch {
	case u.Unlimited():
		return 0
	case u.Limit == 0:
		return 100
	}
	return int(min(u.Current*100/u.Limit, 100))
}
