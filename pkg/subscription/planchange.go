package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/fleetbilling/pkg/keylock"
	"github.com/dmitrymomot/fleetbilling/pkg/logger"
	"github.com/dmitrymomot/fleetbilling/pkg/plan"
	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

// Violation is a resource whose usage exceeds the target plan's quota.
type Violation struct {
	Resource plan.Resource `json:"resource"`
	Usage    int64         `json:"usage"`
	Limit    int64         `json:"limit"`
}

// PlanChangeError lists the resources that block a plan change.
// It matches ErrPlanChangeRejected with errors.Is.
type PlanChangeError struct {
	PlanID     string
	Violations []Violation
}

func (e *PlanChangeError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s usage %d exceeds limit %d", v.Resource, v.Usage, v.Limit))
	}
	return fmt.Sprintf("cannot change to plan %s: %s", e.PlanID, strings.Join(parts, ", "))
}

func (e *PlanChangeError) Is(target error) bool { return target == ErrPlanChangeRejected }

// PlanChanger moves tenants between plans.
// It holds the same per-tenant lock as the webhook reconciler.
type PlanChanger struct {
	tenants  tenant.Store
	subs     Store
	catalog  plan.Catalog
	resolver *Resolver
	opts     *options
}

// NewPlanChanger creates a PlanChanger.
func NewPlanChanger(tenants tenant.Store, subs Store, catalog plan.Catalog, resolver *Resolver, opts ...Option) *PlanChanger {
	return &PlanChanger{
		tenants:  tenants,
		subs:     subs,
		catalog:  catalog,
		resolver: resolver,
		opts:     newOptions(opts),
	}
}

// ChangePlan switches the tenant to newPlanID if current usage fits the new quotas.
// Custom limits are reset. Local state is committed first; the payment
// processor is then updated on a best-effort basis.
func (c *PlanChanger) ChangePlan(ctx context.Context, tenantID uuid.UUID, newPlanID string) (*tenant.Tenant, error) {
	target, err := c.catalog.Get(ctx, newPlanID)
	if err != nil {
		if errors.Is(err, plan.ErrPlanNotFound) {
			return nil, errors.Join(ErrUnknownPlan, err)
		}
		return nil, err
	}

	var (
		updated *tenant.Tenant
		changed bool
	)
	err = keylock.Do(ctx, c.opts.locker, keylock.TenantKey(tenantID.String()), func(ctx context.Context) error {
		// Make sure a subscription row exists before the transaction reads it.
		if _, err := c.resolver.ResolveCurrent(ctx, tenantID); err != nil {
			return err
		}

		for attempt := 1; ; attempt++ {
			updated, changed, err = c.apply(ctx, tenantID, target)
			if err == nil || !errors.Is(err, ErrVersionConflict) || attempt >= c.opts.maxRetries {
				return err
			}
			c.opts.logger.DebugContext(ctx, "retrying plan change after version conflict",
				logger.TenantID(tenantID),
				logger.RetryCount(attempt))
		}
	})
	if err != nil {
		return nil, err
	}

	if changed {
		c.opts.logger.InfoContext(ctx, "tenant plan changed",
			logger.TenantID(tenantID),
			logger.PlanID(target.ID))
		c.propagate(ctx, updated, target)
	}
	return updated, nil
}

func (c *PlanChanger) apply(ctx context.Context, tenantID uuid.UUID, target plan.Plan) (*tenant.Tenant, bool, error) {
	var (
		out     *tenant.Tenant
		changed bool
	)
	err := c.opts.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := c.tenants.Get(ctx, tenantID)
		if err != nil {
			return err
		}
		sub, err := c.subs.GetActive(ctx, tenantID)
		if err != nil {
			return err
		}

		if v := violations(sub.Usage, target); len(v) > 0 {
			return &PlanChangeError{PlanID: target.ID, Violations: v}
		}

		out = t
		if t.PlanID == target.ID && sub.PlanID == target.ID && t.CustomLimits == nil {
			return nil
		}
		changed = true

		// The version-checked write goes first so a conflict leaves the
		// tenant untouched even without a real transaction.
		now := c.opts.now().UTC()
		sub.PlanID = target.ID
		sub.UpdatedAt = now
		if err := c.subs.Update(ctx, sub); err != nil {
			return err
		}

		t.PlanID = target.ID
		t.CustomLimits = nil
		t.UpdatedAt = now
		return c.tenants.Update(ctx, t)
	})
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}

func violations(u Usage, target plan.Plan) []Violation {
	var out []Violation
	for _, r := range plan.Resources {
		limit := target.Limit(r)
		if limit == plan.Unlimited {
			continue
		}
		if used := u.Get(r); used > limit {
			out = append(out, Violation{Resource: r, Usage: used, Limit: limit})
		}
	}
	return out
}

// propagate mirrors the change to the payment processor.
// Failures are logged; local state stays authoritative and a later
// notification brings the two back in line.
func (c *PlanChanger) propagate(ctx context.Context, t *tenant.Tenant, target plan.Plan) {
	g := c.opts.gateway
	if g == nil || t.ExternalSubscriptionID == "" {
		return
	}

	var err error
	if target.ExternalPriceID == "" {
		err = g.CancelSubscription(ctx, t.ExternalSubscriptionID)
	} else {
		_, err = g.UpdateSubscriptionPrice(ctx, t.ExternalSubscriptionID, target.ExternalPriceID)
	}
	if err != nil {
		c.opts.logger.WarnContext(ctx, "failed to propagate plan change to billing provider",
			logger.TenantID(t.ID),
			logger.PlanID(target.ID),
			logger.SubscriptionID(t.ExternalSubscriptionID),
			logger.Provider(g.Provider()),
			logger.Error(err))
	}
}
