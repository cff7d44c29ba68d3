package subscription_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fleetbilling/pkg/billing"
	"github.com/dmitrymomot/fleetbilling/pkg/billing/billingtest"
	"github.com/dmitrymomot/fleetbilling/pkg/plan"
	"github.com/dmitrymomot/fleetbilling/pkg/storage/memory"
	"github.com/dmitrymomot/fleetbilling/pkg/subscription"
	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

func newChanger(f *fixture, opts ...subscription.Option) *subscription.PlanChanger {
	opts = append([]subscription.Option{subscription.WithClock(clock)}, opts...)
	return subscription.NewPlanChanger(f.tenants, f.subs, f.catalog, f.resolver, opts...)
}

func TestPlanChanger_ChangePlan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("rejects when usage exceeds target", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tn := f.addTenant(t, func(tn *tenant.Tenant) { tn.PlanID = proPlan.ID })
		f.subscribe(t, tn.ID, proPlan, subscription.Usage{Vehicles: 3, Users: 1})

		_, err := newChanger(f).ChangePlan(ctx, tn.ID, tinyPlan.ID)
		require.ErrorIs(t, err, subscription.ErrPlanChangeRejected)

		var pcErr *subscription.PlanChangeError
		require.True(t, errors.As(err, &pcErr))
		require.Len(t, pcErr.Violations, 1)
		assert.Equal(t, subscription.Violation{Resource: plan.ResourceVehicles, Usage: 3, Limit: 2}, pcErr.Violations[0])

		stored, err := f.tenants.Get(ctx, tn.ID)
		require.NoError(t, err)
		assert.Equal(t, proPlan.ID, stored.PlanID)

		sub, err := f.subs.GetActive(ctx, tn.ID)
		require.NoError(t, err)
		assert.Equal(t, proPlan.ID, sub.PlanID)
	})

	t.Run("usage equal to target limit fits", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tn := f.addTenant(t, func(tn *tenant.Tenant) { tn.PlanID = proPlan.ID })
		f.subscribe(t, tn.ID, proPlan, subscription.Usage{Vehicles: 2, Users: 1, Drivers: 1})

		updated, err := newChanger(f).ChangePlan(ctx, tn.ID, tinyPlan.ID)
		require.NoError(t, err)
		assert.Equal(t, tinyPlan.ID, updated.PlanID)
	})

	t.Run("success resets custom limits", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tn := f.addTenant(t, func(tn *tenant.Tenant) {
			tn.CustomLimits = map[plan.Resource]int64{plan.ResourceVehicles: 40}
		})
		f.subscribe(t, tn.ID, freemiumPlan, subscription.Usage{Vehicles: 30})

		updated, err := newChanger(f).ChangePlan(ctx, tn.ID, proPlan.ID)
		require.NoError(t, err)
		assert.Equal(t, proPlan.ID, updated.PlanID)
		assert.Nil(t, updated.CustomLimits)

		ent, err := f.resolver.ResolveCurrent(ctx, tn.ID)
		require.NoError(t, err)
		assert.Equal(t, proPlan.ID, ent.Subscription.PlanID)
		assert.Equal(t, int64(50), ent.Limit(plan.ResourceVehicles))
		assert.Equal(t, int64(30), ent.Subscription.Usage.Vehicles)
	})

	t.Run("unknown plan", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tn := f.addTenant(t)

		_, err := newChanger(f).ChangePlan(ctx, tn.ID, "platinum")
		assert.ErrorIs(t, err, subscription.ErrUnknownPlan)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := newChanger(f).ChangePlan(ctx, uuid.New(), proPlan.ID)
		assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
	})

	t.Run("swaps external price", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tn := f.addTenant(t, func(tn *tenant.Tenant) { tn.ExternalSubscriptionID = "sub_1" })

		gw := &billingtest.Gateway{}
		gw.On("UpdateSubscriptionPrice", mock.Anything, "sub_1", "price_pro").
			Return(&billing.Subscription{ID: "sub_1", PriceID: "price_pro"}, nil).Once()

		_, err := newChanger(f, subscription.WithGateway(gw)).ChangePlan(ctx, tn.ID, proPlan.ID)
		require.NoError(t, err)
		gw.AssertExpectations(t)
	})

	t.Run("cancels external subscription on downgrade to unpriced plan", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tn := f.addTenant(t, func(tn *tenant.Tenant) {
			tn.PlanID = proPlan.ID
			tn.ExternalSubscriptionID = "sub_1"
		})
		f.subscribe(t, tn.ID, proPlan, subscription.Usage{Vehicles: 1})

		gw := &billingtest.Gateway{}
		gw.On("CancelSubscription", mock.Anything, "sub_1").Return(nil).Once()

		_, err := newChanger(f, subscription.WithGateway(gw)).ChangePlan(ctx, tn.ID, freemiumPlan.ID)
		require.NoError(t, err)
		gw.AssertExpectations(t)
	})

	t.Run("gateway failure keeps local change", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tn := f.addTenant(t, func(tn *tenant.Tenant) { tn.ExternalSubscriptionID = "sub_1" })

		gw := &billingtest.Gateway{}
		gw.On("UpdateSubscriptionPrice", mock.Anything, "sub_1", "price_pro").
			Return(nil, errors.Join(billing.ErrGateway, errors.New("timeout"))).Once()

		updated, err := newChanger(f, subscription.WithGateway(gw)).ChangePlan(ctx, tn.ID, proPlan.ID)
		require.NoError(t, err)
		assert.Equal(t, proPlan.ID, updated.PlanID)
		gw.AssertExpectations(t)
	})

	t.Run("no-op change skips the gateway", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tn := f.addTenant(t, func(tn *tenant.Tenant) { tn.ExternalSubscriptionID = "sub_1" })

		gw := &billingtest.Gateway{}
		updated, err := newChanger(f, subscription.WithGateway(gw)).ChangePlan(ctx, tn.ID, freemiumPlan.ID)
		require.NoError(t, err)
		assert.Equal(t, freemiumPlan.ID, updated.PlanID)
		gw.AssertNotCalled(t, "CancelSubscription", mock.Anything, mock.Anything)
	})
}

// racingStore counts a unit between the plan changer's read and write once,
// forcing a version conflict.
type racingStore struct {
	*memory.SubscriptionStore
	raced atomic.Bool
	usage subscription.Usage
}

func (s *racingStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	if s.raced.CompareAndSwap(false, true) {
		if err := s.SetUsage(sub.TenantID, s.usage); err != nil {
			return err
		}
	}
	return s.SubscriptionStore.Update(ctx, sub)
}

func TestPlanChanger_RetriesOnVersionConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("retry succeeds", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tn := f.addTenant(t)
		f.subscribe(t, tn.ID, freemiumPlan, subscription.Usage{Vehicles: 1})

		racing := &racingStore{SubscriptionStore: f.subs, usage: subscription.Usage{Vehicles: 2}}
		changer := subscription.NewPlanChanger(f.tenants, racing, f.catalog, f.resolver, subscription.WithClock(clock))

		updated, err := changer.ChangePlan(ctx, tn.ID, tinyPlan.ID)
		require.NoError(t, err)
		assert.Equal(t, tinyPlan.ID, updated.PlanID)
		assert.True(t, racing.raced.Load())
	})

	t.Run("retry re-checks usage", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tn := f.addTenant(t)
		f.subscribe(t, tn.ID, freemiumPlan, subscription.Usage{Vehicles: 1})

		racing := &racingStore{SubscriptionStore: f.subs, usage: subscription.Usage{Users: 2}}
		changer := subscription.NewPlanChanger(f.tenants, racing, f.catalog, f.resolver, subscription.WithClock(clock))

		_, err := changer.ChangePlan(ctx, tn.ID, tinyPlan.ID)
		assert.ErrorIs(t, err, subscription.ErrPlanChangeRejected)

		stored, err := f.tenants.Get(ctx, tn.ID)
		require.NoError(t, err)
		assert.Equal(t, freemiumPlan.ID, stored.PlanID)
	})
}
