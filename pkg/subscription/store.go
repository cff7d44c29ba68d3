package subscription

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrymomot/fleetbilling/pkg/plan"
)

// Store persists subscriptions. At most one subscription per tenant is active.
type Store interface {
	// GetActive returns ErrSubscriptionNotFound when the tenant has no active subscription.
	GetActive(ctx context.Context, tenantID uuid.UUID) (*Subscription, error)

	// Create returns ErrActiveSubscriptionExists when another active subscription
	// already exists for the tenant.
	Create(ctx context.Context, s *Subscription) error

	// Update writes s only if the stored version equals s.Version, then
	// increments s.Version. A mismatch returns ErrVersionConflict.
	// Usage is not written; counters change only through AdjustUsage and
	// IncrementUsageWithin.
	Update(ctx context.Context, s *Subscription) error

	// AdjustUsage atomically adds delta to the resource counter of the active
	// subscription, clamping at zero, and returns the resulting usage.
	AdjustUsage(ctx context.Context, tenantID uuid.UUID, r plan.Resource, delta int64) (Usage, error)

	// IncrementUsageWithin atomically increments the counter by one only if
	// limit is plan.Unlimited or the current value is below limit.
	// It reports whether the increment happened and returns the usage it observed.
	IncrementUsageWithin(ctx context.Context, tenantID uuid.UUID, r plan.Resource, limit int64) (Usage, bool, error)
}

// Transactor runs fn in a single store transaction.
// Stores called with the ctx passed to fn join that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TransactorFunc adapts a function to the Transactor interface.
type TransactorFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func (f TransactorFunc) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}

// NoTx runs fn directly. For stores without transaction support.
var NoTx = TransactorFunc(func(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
})
