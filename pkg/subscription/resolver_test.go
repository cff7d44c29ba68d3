package subscription_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fleetbilling/pkg/plan"
	"github.com/dmitrymomot/fleetbilling/pkg/storage/memory"
	"github.com/dmitrymomot/fleetbilling/pkg/subscription"
	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

func TestResolver_ResolveCurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("provisions free plan on first use", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tn := f.addTenant(t)

		ent, err := f.resolver.ResolveCurrent(ctx, tn.ID)
		require.NoError(t, err)
		assert.Equal(t, freemiumPlan.ID, ent.Plan.ID)
		assert.Equal(t, subscription.StatusActive, ent.Subscription.Status)
		assert.Equal(t, tn.ID, ent.Tenant.ID)
		assert.Equal(t, int64(2), ent.Limit(plan.ResourceVehicles))

		again, err := f.resolver.ResolveCurrent(ctx, tn.ID)
		require.NoError(t, err)
		assert.Equal(t, ent.Subscription.ID, again.Subscription.ID)
	})

	t.Run("returns existing subscription", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tn := f.addTenant(t)
		f.subscribe(t, tn.ID, proPlan, subscription.Usage{Vehicles: 7})

		ent, err := f.resolver.ResolveCurrent(ctx, tn.ID)
		require.NoError(t, err)
		assert.Equal(t, proPlan.ID, ent.Plan.ID)
		assert.Equal(t, int64(7), ent.UsageInfo(plan.ResourceVehicles).Current)
	})

	t.Run("concurrent first calls create one subscription", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tn := f.addTenant(t)

		const n = 16
		ids := make([]uuid.UUID, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ent, err := f.resolver.ResolveCurrent(ctx, tn.ID)
				if assert.NoError(t, err) {
					ids[i] = ent.Subscription.ID
				}
			}()
		}
		wg.Wait()

		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})

	t.Run("provisioning survives the first caller going away", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tn := f.addTenant(t)
		subs := &blockingCreateStore{
			SubscriptionStore: f.subs,
			entered:           make(chan struct{}),
			release:           make(chan struct{}),
		}
		resolver := subscription.NewResolver(f.tenants, subs, f.catalog, subscription.WithClock(clock))

		firstCtx, cancel := context.WithCancel(ctx)
		errs := make(chan error, 2)
		go func() {
			_, err := resolver.ResolveCurrent(firstCtx, tn.ID)
			errs <- err
		}()
		<-subs.entered
		go func() {
			_, err := resolver.ResolveCurrent(ctx, tn.ID)
			errs <- err
		}()
		cancel()
		close(subs.release)

		require.NoError(t, <-errs)
		require.NoError(t, <-errs)

		sub, err := f.subs.GetActive(ctx, tn.ID)
		require.NoError(t, err)
		assert.Equal(t, freemiumPlan.ID, sub.PlanID)
	})

	t.Run("configured free plan id", func(t *testing.T) {
		t.Parallel()
		basic := freemiumPlan.Clone()
		basic.ID = "basic"
		basic.Name = "Basic"
		f := newFixtureWithPlans(t, []plan.Plan{freemiumPlan, basic}, subscription.WithFreePlanID("basic"))
		tn := f.addTenant(t)

		ent, err := f.resolver.ResolveCurrent(ctx, tn.ID)
		require.NoError(t, err)
		assert.Equal(t, "basic", ent.Plan.ID)
	})

	t.Run("missing free plan is a configuration error", func(t *testing.T) {
		t.Parallel()
		f := newFixtureWithPlans(t, []plan.Plan{proPlan})
		tn := f.addTenant(t)

		_, err := f.resolver.ResolveCurrent(ctx, tn.ID)
		assert.ErrorIs(t, err, subscription.ErrFreePlanNotConfigured)
		assert.ErrorIs(t, err, plan.ErrPlanNotFound)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.resolver.ResolveCurrent(ctx, uuid.New())
		assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
	})
}

func TestResolver_Create(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates subscription", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tn := f.addTenant(t)

		sub, err := f.resolver.Create(ctx, tn.ID, proPlan.ID)
		require.NoError(t, err)
		assert.Equal(t, proPlan.ID, sub.PlanID)
		assert.Equal(t, int64(1), sub.Version)
	})

	t.Run("conflict when one is active", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tn := f.addTenant(t)
		_, err := f.resolver.ResolveCurrent(ctx, tn.ID)
		require.NoError(t, err)

		_, err = f.resolver.Create(ctx, tn.ID, proPlan.ID)
		assert.ErrorIs(t, err, subscription.ErrActiveSubscriptionExists)
	})

	t.Run("unknown plan", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tn := f.addTenant(t)

		_, err := f.resolver.Create(ctx, tn.ID, "platinum")
		assert.ErrorIs(t, err, subscription.ErrUnknownPlan)
		assert.ErrorIs(t, err, plan.ErrPlanNotFound)
	})
}

// blockingCreateStore holds Create until release is closed or ctx is done.
type blockingCreateStore struct {
	*memory.SubscriptionStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingCreateStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.SubscriptionStore.Create(ctx, sub)
}
