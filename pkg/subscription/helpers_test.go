package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fleetbilling/pkg/plan"
	"github.com/dmitrymomot/fleetbilling/pkg/storage/memory"
	"github.com/dmitrymomot/fleetbilling/pkg/subscription"
	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

var (
	freemiumPlan = plan.Plan{
		ID:       "freemium",
		Name:     "Freemium",
		Interval: plan.BillingIntervalNone,
		Limits: map[plan.Resource]int64{
			plan.ResourceVehicles: 2,
			plan.ResourceUsers:    3,
			plan.ResourceDrivers:  2,
		},
		Public: true,
	}
	tinyPlan = plan.Plan{
		ID:       "tiny",
		Name:     "Tiny",
		Price:    plan.Money{Amount: 900, Currency: "USD"},
		Interval: plan.BillingIntervalMonthly,
		Limits: map[plan.Resource]int64{
			plan.ResourceVehicles: 2,
			plan.ResourceUsers:    1,
			plan.ResourceDrivers:  1,
		},
		ExternalPriceID: "price_tiny",
	}
	proPlan = plan.Plan{
		ID:       "pro",
		Name:     "Pro",
		Price:    plan.Money{Amount: 4900, Currency: "USD"},
		Interval: plan.BillingIntervalMonthly,
		Limits: map[plan.Resource]int64{
			plan.ResourceVehicles: 50,
			plan.ResourceUsers:    10,
			plan.ResourceDrivers:  50,
		},
		TrialDays:       14,
		ExternalPriceID: "price_pro",
	}
	enterprisePlan = plan.Plan{
		ID:       "enterprise",
		Name:     "Enterprise",
		Price:    plan.Money{Amount: 19900, Currency: "USD"},
		Interval: plan.BillingIntervalAnnual,
		Limits: map[plan.Resource]int64{
			plan.ResourceVehicles: plan.Unlimited,
			plan.ResourceUsers:    plan.Unlimited,
			plan.ResourceDrivers:  plan.Unlimited,
		},
	}
)

type fixture struct {
	tenants  *memory.TenantStore
	subs     *memory.SubscriptionStore
	catalog  *plan.MemoryCatalog
	resolver *subscription.Resolver
	enforcer *subscription.Enforcer
}

func newFixture(t *testing.T, opts ...subscription.Option) *fixture {
	t.Helper()
	return newFixtureWithPlans(t, []plan.Plan{freemiumPlan, tinyPlan, proPlan, enterprisePlan}, opts...)
}

func newFixtureWithPlans(t *testing.T, plans []plan.Plan, opts ...subscription.Option) *fixture {
	t.Helper()
	catalog, err := plan.NewMemoryCatalog(plans...)
	require.NoError(t, err)

	opts = append([]subscription.Option{subscription.WithClock(clock)}, opts...)
	f := &fixture{
		tenants: memory.NewTenantStore(),
		subs:    memory.NewSubscriptionStore(),
		catalog: catalog,
	}
	f.resolver = subscription.NewResolver(f.tenants, f.subs, f.catalog, opts...)
	f.enforcer = subscription.NewEnforcer(f.resolver, f.subs, opts...)
	return f
}

func (f *fixture) addTenant(t *testing.T, mutate ...func(*tenant.Tenant)) *tenant.Tenant {
	t.Helper()
	tn := &tenant.Tenant{
		ID:        uuid.New(),
		Name:      "Acme Logistics",
		Email:     "ops@acme.test",
		PlanID:    freemiumPlan.ID,
		Status:    tenant.StatusActive,
		CreatedAt: fixedNow,
		UpdatedAt: fixedNow,
	}
	for _, m := range mutate {
		m(tn)
	}
	require.NoError(t, f.tenants.Create(context.Background(), tn))
	return tn
}

// subscribe gives the tenant an active subscription on p with the given usage.
func (f *fixture) subscribe(t *testing.T, tenantID uuid.UUID, p plan.Plan, usage subscription.Usage) {
	t.Helper()
	require.NoError(t, f.subs.Create(context.Background(), subscription.New(tenantID, p, fixedNow)))
	require.NoError(t, f.subs.SetUsage(tenantID, usage))
}
