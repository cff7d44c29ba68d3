package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/fleetbilling/pkg/logger"
	"github.com/dmitrymomot/fleetbilling/pkg/plan"
	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

// Entitlement is the resolved plan, subscription and quota state of a tenant.
type Entitlement struct {
	Tenant       *tenant.Tenant
	Subscription *Subscription
	Plan         plan.Plan
}

// Limit returns the effective limit for r, honoring tenant overrides.
func (e *Entitlement) Limit(r plan.Resource) int64 {
	return e.Tenant.EffectiveLimit(e.Plan, r)
}

// Allows reports whether one more unit of r fits into the quota.
func (e *Entitlement) Allows(r plan.Resource) bool {
	limit := e.Limit(r)
	return limit == plan.Unlimited || e.Subscription.Usage.Get(r) < limit
}

// UsageInfo returns usage against limit for r.
func (e *Entitlement) UsageInfo(r plan.Resource) UsageInfo {
	return UsageInfo{Current: e.Subscription.Usage.Get(r), Limit: e.Limit(r)}
}

// Resolver loads a tenant's entitlement, provisioning the free plan on first use.
type Resolver struct {
	tenants tenant.Provider
	subs    Store
	catalog plan.Catalog
	opts    *options
	group   singleflight.Group
}

// NewResolver creates a Resolver over the tenant provider, subscription store and catalog.
func NewResolver(tenants tenant.Provider, subs Store, catalog plan.Catalog, opts ...Option) *Resolver {
	return &Resolver{
		tenants: tenants,
		subs:    subs,
		catalog: catalog,
		opts:    newOptions(opts),
	}
}

// ResolveCurrent returns the tenant's current entitlement.
// A tenant without an active subscription gets one on the free plan.
func (r *Resolver) ResolveCurrent(ctx context.Context, tenantID uuid.UUID) (*Entitlement, error) {
	t, err := r.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	sub, err := r.activeOrProvision(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	p, err := r.catalog.Get(ctx, sub.PlanID)
	if err != nil {
		return nil, fmt.Errorf("plan %q of subscription %s: %w", sub.PlanID, sub.ID, err)
	}

	return &Entitlement{Tenant: t, Subscription: sub, Plan: p}, nil
}

// Create subscribes the tenant to planID.
// It fails with ErrActiveSubscriptionExists when one is already active.
func (r *Resolver) Create(ctx context.Context, tenantID uuid.UUID, planID string) (*Subscription, error) {
	if _, err := r.tenants.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	p, err := r.catalog.Get(ctx, planID)
	if err != nil {
		if errors.Is(err, plan.ErrPlanNotFound) {
			return nil, errors.Join(ErrUnknownPlan, err)
		}
		return nil, err
	}

	sub := New(tenantID, p, r.opts.now())
	if err := r.subs.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *Resolver) activeOrProvision(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	sub, err := r.subs.GetActive(ctx, tenantID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}

	// Concurrent first requests for the same tenant share one provisioning
	// attempt, which must outlive the caller that happened to start it.
	v, err, _ := r.group.Do(tenantID.String(), func() (any, error) {
		return r.provision(context.WithoutCancel(ctx), tenantID)
	})
	if err != nil {
		return nil, err
	}
	shared := *v.(*Subscription)
	return &shared, nil
}

func (r *Resolver) provision(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	free, err := plan.FreePlan(ctx, r.catalog, r.opts.freePlanID)
	if err != nil {
		return nil, errors.Join(ErrFreePlanNotConfigured, err)
	}

	sub := New(tenantID, free, r.opts.now())
	err = r.subs.Create(ctx, sub)
	switch {
	case err == nil:
		r.opts.logger.InfoContext(ctx, "provisioned free subscription",
			logger.TenantID(tenantID),
			logger.PlanID(free.ID))
		return sub, nil
	case errors.Is(err, ErrActiveSubscriptionExists):
		// Lost the race against another instance; use the winner's row.
		return r.subs.GetActive(ctx, tenantID)
	default:
		return nil, errors.Join(ErrFailedToProvision, err)
	}
}
