package subscription

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/fleetbilling/pkg/billing"
	"github.com/dmitrymomot/fleetbilling/pkg/logger"
	"github.com/dmitrymomot/fleetbilling/pkg/plan"
	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

// RegisterParams describes a new tenant. An empty PlanID selects the free plan.
type RegisterParams struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	PlanID string `json:"plan_id"`
}

// Onboarder registers tenants locally and, best effort, with the payment processor.
type Onboarder struct {
	tenants tenant.Store
	subs    Store
	catalog plan.Catalog
	opts    *options
}

// NewOnboarder creates an Onboarder.
func NewOnboarder(tenants tenant.Store, subs Store, catalog plan.Catalog, opts ...Option) *Onboarder {
	return &Onboarder{tenants: tenants, subs: subs, catalog: catalog, opts: newOptions(opts)}
}

// Register creates the tenant and its first subscription.
// Gateway failures are logged and leave the tenant without external references.
func (o *Onboarder) Register(ctx context.Context, p RegisterParams) (*tenant.Tenant, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	if p.Name == "" {
		return nil, errors.Join(ErrInvalidRegistration, errors.New("name is required"))
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return nil, errors.Join(ErrInvalidRegistration, err)
	}

	target, err := o.targetPlan(ctx, p.PlanID)
	if err != nil {
		return nil, err
	}

	now := o.opts.now().UTC()
	t := &tenant.Tenant{
		ID:                    uuid.New(),
		Name:                  p.Name,
		Email:                 p.Email,
		PlanID:                target.ID,
		Status:                tenant.StatusActive,
		SubscriptionStartedAt: &now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if target.TrialDays > 0 {
		ends := target.TrialEndsAt(now)
		t.Status = tenant.StatusTrial
		t.TrialEndsAt = &ends
	}
	sub := New(t.ID, target, now)

	err = o.opts.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := o.tenants.Create(ctx, t); err != nil {
			return err
		}
		return o.subs.Create(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	o.opts.logger.InfoContext(ctx, "tenant registered",
		logger.TenantID(t.ID),
		logger.PlanID(target.ID),
		logger.Status(t.Status))

	o.linkBilling(ctx, t, sub, target)
	return t, nil
}

func (o *Onboarder) targetPlan(ctx context.Context, planID string) (plan.Plan, error) {
	if planID == "" {
		p, err := plan.FreePlan(ctx, o.catalog, o.opts.freePlanID)
		if err != nil {
			return plan.Plan{}, errors.Join(ErrFreePlanNotConfigured, err)
		}
		return p, nil
	}
	p, err := o.catalog.Get(ctx, planID)
	if err != nil {
		if errors.Is(err, plan.ErrPlanNotFound) {
			return plan.Plan{}, errors.Join(ErrUnknownPlan, err)
		}
		return plan.Plan{}, err
	}
	return p, nil
}

// linkBilling creates the external customer and, for paid plans, the external
// subscription. Whatever succeeds is stored on the tenant.
func (o *Onboarder) linkBilling(ctx context.Context, t *tenant.Tenant, sub *Subscription, target plan.Plan) {
	g := o.opts.gateway
	if g == nil {
		return
	}
	log := o.opts.logger.With(logger.TenantID(t.ID), logger.Provider(g.Provider()))

	customerID, err := g.CreateCustomer(ctx, billing.CustomerParams{
		TenantID: t.ID.String(),
		Email:    t.Email,
		Name:     t.Name,
	})
	if err != nil {
		log.WarnContext(ctx, "failed to create billing customer", logger.Error(err))
		return
	}
	t.ExternalCustomerID = customerID

	if target.ExternalPriceID != "" {
		ext, err := g.CreateSubscription(ctx, billing.SubscriptionParams{
			CustomerID: customerID,
			PriceID:    target.ExternalPriceID,
			TenantID:   t.ID.String(),
			TrialDays:  target.TrialDays,
		})
		if err != nil {
			log.WarnContext(ctx, "failed to create billing subscription", logger.Error(err))
		} else {
			t.ExternalSubscriptionID = ext.ID
			sub.ExternalSubscriptionID = ext.ID
		}
	}

	t.UpdatedAt = o.opts.now().UTC()
	err = o.opts.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := o.tenants.Update(ctx, t); err != nil {
			return err
		}
		if sub.ExternalSubscriptionID == "" {
			return nil
		}
		return o.subs.Update(ctx, sub)
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to store billing references",
			logger.CustomerID(t.ExternalCustomerID),
			logger.Error(err))
	}
}
