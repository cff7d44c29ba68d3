package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dmitrymomot/fleetbilling/pkg/logger"
	"github.com/dmitrymomot/fleetbilling/pkg/plan"
)

// LimitErrorCode is the machine-readable code of LimitError.
const LimitErrorCode = "LIMIT_REACHED"

// LimitError reports that a tenant cannot add another unit of a resource.
// It matches ErrLimitReached with errors.Is.
type LimitError struct {
	Resource plan.Resource
	Limit    int64
	Current  int64
	PlanName string
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s limit reached: %d of %d allowed on plan %s",
		e.Resource, e.Current, e.Limit, e.PlanName)
}

func (e *LimitError) Code() string { return LimitErrorCode }

func (e *LimitError) Is(target error) bool { return target == ErrLimitReached }

// Enforcer guards resource creation against the tenant's quota.
//
// The advisory path is EnforceLimit, create, then UpdateUsage. Two concurrent
// requests may both pass the check and overshoot the limit by a small margin.
// Reserve closes that gap with an atomic increment-and-compare in the store.
type Enforcer struct {
	resolver *Resolver
	subs     Store
	opts     *options
}

// NewEnforcer creates an Enforcer that resolves entitlements through resolver.
func NewEnforcer(resolver *Resolver, subs Store, opts ...Option) *Enforcer {
	return &Enforcer{resolver: resolver, subs: subs, opts: newOptions(opts)}
}

// LimitCheck is the answer to a quota check and the counts behind it.
type LimitCheck struct {
	Resource plan.Resource `json:"resource"`
	Allowed  bool          `json:"allowed"`
	Usage    int64         `json:"usage"`
	Limit    int64         `json:"limit"`
}

// Check reports whether the tenant may add one more unit of r, with the
// current usage and the effective limit. A denial is not an error.
func (e *Enforcer) Check(ctx context.Context, tenantID uuid.UUID, r plan.Resource) (LimitCheck, error) {
	if !r.Valid() {
		return LimitCheck{}, fmt.Errorf("%w: %q", ErrInvalidResource, r)
	}
	ent, err := e.resolver.ResolveCurrent(ctx, tenantID)
	if err != nil {
		return LimitCheck{}, err
	}
	info := ent.UsageInfo(r)
	return LimitCheck{
		Resource: r,
		Allowed:  ent.Allows(r),
		Usage:    info.Current,
		Limit:    info.Limit,
	}, nil
}

// CheckLimit reports whether the tenant may add one more unit of r.
func (e *Enforcer) CheckLimit(ctx context.Context, tenantID uuid.UUID, r plan.Resource) (bool, error) {
	c, err := e.Check(ctx, tenantID, r)
	if err != nil {
		return false, err
	}
	return c.Allowed, nil
}

// EnforceLimit returns a *LimitError when the tenant may not add one more unit of r.
func (e *Enforcer) EnforceLimit(ctx context.Context, tenantID uuid.UUID, r plan.Resource) error {
	if !r.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidResource, r)
	}
	ent, err := e.resolver.ResolveCurrent(ctx, tenantID)
	if err != nil {
		return err
	}
	if ent.Allows(r) {
		return nil
	}
	return e.reject(ctx, ent, r, ent.Subscription.Usage.Get(r))
}

// UpdateUsage applies delta to the counter of r, clamping at zero.
// Call it after a resource was created (+1) or deleted (-1).
func (e *Enforcer) UpdateUsage(ctx context.Context, tenantID uuid.UUID, r plan.Resource, delta int64) (Usage, error) {
	if !r.Valid() {
		return Usage{}, fmt.Errorf("%w: %q", ErrInvalidResource, r)
	}
	usage, err := e.subs.AdjustUsage(ctx, tenantID, r, delta)
	if errors.Is(err, ErrSubscriptionNotFound) {
		if _, err := e.resolver.ResolveCurrent(ctx, tenantID); err != nil {
			return Usage{}, err
		}
		usage, err = e.subs.AdjustUsage(ctx, tenantID, r, delta)
	}
	if err != nil {
		return Usage{}, err
	}
	return usage, nil
}

// Usage returns usage and effective limits for every resource.
func (e *Enforcer) Usage(ctx context.Context, tenantID uuid.UUID) (map[plan.Resource]UsageInfo, error) {
	ent, err := e.resolver.ResolveCurrent(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make(map[plan.Resource]UsageInfo, len(plan.Resources))
	for _, r := range plan.Resources {
		out[r] = ent.UsageInfo(r)
	}
	return out, nil
}

// Reservation is one unit of a resource counted ahead of its creation.
type Reservation struct {
	TenantID uuid.UUID
	Resource plan.Resource
	Usage    Usage

	enforcer *Enforcer
	released atomic.Bool
}

// Release gives the unit back. Call it when the creation failed.
// Releasing twice is a no-op.
func (r *Reservation) Release(ctx context.Context) error {
	if !r.released.CompareAndSwap(false, true) {
		return nil
	}
	_, err := r.enforcer.subs.AdjustUsage(ctx, r.TenantID, r.Resource, -1)
	return err
}

// Reserve atomically counts one unit of r if it fits into the quota.
// On success the counter already includes the new unit.
func (e *Enforcer) Reserve(ctx context.Context, tenantID uuid.UUID, r plan.Resource) (*Reservation, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResource, r)
	}
	ent, err := e.resolver.ResolveCurrent(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	usage, ok, err := e.subs.IncrementUsageWithin(ctx, tenantID, r, ent.Limit(r))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.reject(ctx, ent, r, usage.Get(r))
	}
	return &Reservation{TenantID: tenantID, Resource: r, Usage: usage, enforcer: e}, nil
}

func (e *Enforcer) reject(ctx context.Context, ent *Entitlement, r plan.Resource, current int64) error {
	if e.opts.observer != nil {
		e.opts.observer.ObserveLimitRejection(r)
	}
	e.opts.logger.DebugContext(ctx, "resource limit reached",
		logger.TenantID(ent.Tenant.ID),
		logger.PlanID(ent.Plan.ID),
		logger.Resource(r))
	return &LimitError{
		Resource: r,
		Limit:    ent.Limit(r),
		Current:  current,
		PlanName: ent.Plan.Name,
	}
}
