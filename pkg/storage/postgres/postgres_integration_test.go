//go:build integration

package postgres_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dmitrymomot/fleetbilling/pkg/billing"
	"github.com/dmitrymomot/fleetbilling/pkg/pg"
	"github.com/dmitrymomot/fleetbilling/pkg/plan"
	"github.com/dmitrymomot/fleetbilling/pkg/storage/postgres"
	"github.com/dmitrymomot/fleetbilling/pkg/subscription"
	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

var db *pg.TxManager

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("billing_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		slog.Error("failed to start postgres container", "error", err)
		os.Exit(1)
	}

	code := run(ctx, container, m)

	cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = container.Terminate(cleanupCtx)
	os.Exit(code)
}

func run(ctx context.Context, container *tcpostgres.PostgresContainer, m *testing.M) int {
	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		slog.Error("connection string", "error", err)
		return 1
	}

	cfg := pg.Config{
		ConnectionString: connStr,
		MaxOpenConns:     20,
		MaxIdleConns:     1,
		RetryAttempts:    5,
		RetryInterval:    time.Second,
		MigrationsTable:  "billing_schema_migrations",
	}
	pool, err := pg.Connect(ctx, cfg)
	if err != nil {
		slog.Error("connect", "error", err)
		return 1
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, postgres.Migrations, cfg, slog.Default()); err != nil {
		slog.Error("migrate", "error", err)
		return 1
	}

	db = pg.NewTxManager(pool)
	if err := postgres.NewPlanStore(db).Upsert(ctx, testPlans()...); err != nil {
		slog.Error("seed plans", "error", err)
		return 1
	}
	return m.Run()
}

func testPlans() []plan.Plan {
	return []plan.Plan{
		{
			ID:       "freemium",
			Name:     "Freemium",
			Interval: plan.BillingIntervalNone,
			Limits:   map[plan.Resource]int64{plan.ResourceVehicles: 2, plan.ResourceUsers: 3, plan.ResourceDrivers: 2},
			Public:   true,
		},
		{
			ID:              "pro",
			Name:            "Pro",
			Price:           plan.Money{Amount: 4900, Currency: "USD"},
			Interval:        plan.BillingIntervalMonthly,
			Limits:          map[plan.Resource]int64{plan.ResourceVehicles: 50, plan.ResourceUsers: 10, plan.ResourceDrivers: plan.Unlimited},
			Features:        []plan.Feature{plan.FeatureReports},
			TrialDays:       14,
			Public:          true,
			ExternalPriceID: "price_pro",
		},
	}
}

func newTenant(t *testing.T, ctx context.Context) *tenant.Tenant {
	t.Helper()
	tn := &tenant.Tenant{
		Name:   "Acme Logistics",
		Email:  "ops@acme.test",
		PlanID: "freemium",
		Status: tenant.StatusActive,
	}
	require.NoError(t, postgres.NewTenantStore(db).Create(ctx, tn))
	return tn
}

func newSubscription(t *testing.T, ctx context.Context, tn *tenant.Tenant) *subscription.Subscription {
	t.Helper()
	p, err := postgres.NewPlanStore(db).Get(ctx, tn.PlanID)
	require.NoError(t, err)
	sub := subscription.New(tn.ID, p, time.Now())
	require.NoError(t, postgres.NewSubscriptionStore(db).Create(ctx, sub))
	return sub
}

func TestPlanStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := postgres.NewPlanStore(db)

	t.Run("get round-trips limits and features", func(t *testing.T) {
		t.Parallel()
		p, err := store.Get(ctx, "pro")
		require.NoError(t, err)
		assert.Equal(t, plan.Unlimited, p.Limit(plan.ResourceDrivers))
		assert.Equal(t, int64(50), p.Limit(plan.ResourceVehicles))
		assert.True(t, p.HasFeature(plan.FeatureReports))
		assert.Equal(t, plan.BillingIntervalMonthly, p.Interval)
	})

	t.Run("get by price id", func(t *testing.T) {
		t.Parallel()
		p, err := store.GetByPriceID(ctx, "price_pro")
		require.NoError(t, err)
		assert.Equal(t, "pro", p.ID)

		_, err = store.GetByPriceID(ctx, "")
		assert.ErrorIs(t, err, plan.ErrPlanNotFound)
	})

	t.Run("missing plan", func(t *testing.T) {
		t.Parallel()
		_, err := store.Get(ctx, "nope")
		assert.ErrorIs(t, err, plan.ErrPlanNotFound)
	})

	t.Run("list ordered by price", func(t *testing.T) {
		t.Parallel()
		plans, err := store.List(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(plans), 2)
		assert.Equal(t, "freemium", plans[0].ID)
	})

	t.Run("upsert rejects invalid plans", func(t *testing.T) {
		t.Parallel()
		err := store.Upsert(ctx, plan.Plan{ID: "broken"})
		assert.ErrorIs(t, err, plan.ErrInvalidPlan)
	})
}

func TestTenantStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := postgres.NewTenantStore(db)

	t.Run("external ids resolve and stay unique", func(t *testing.T) {
		t.Parallel()
		a := newTenant(t, ctx)
		b := newTenant(t, ctx)

		cus := "cus_" + uuid.NewString()
		a.ExternalCustomerID = cus
		a.CustomLimits = map[plan.Resource]int64{plan.ResourceVehicles: 7}
		require.NoError(t, store.Update(ctx, a))

		got, err := store.GetByCustomerID(ctx, cus)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
		assert.Equal(t, int64(7), got.CustomLimits[plan.ResourceVehicles])

		b.ExternalCustomerID = cus
		assert.ErrorIs(t, store.Update(ctx, b), tenant.ErrDuplicateExternalID)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		t.Parallel()
		_, err := store.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
		_, err = store.GetBySubscriptionID(ctx, "sub_missing")
		assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
		assert.ErrorIs(t, store.Update(ctx, &tenant.Tenant{ID: uuid.New(), PlanID: "freemium"}), tenant.ErrTenantNotFound)
	})
}

func TestSubscriptionStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := postgres.NewSubscriptionStore(db)

	t.Run("one active subscription per tenant", func(t *testing.T) {
		t.Parallel()
		tn := newTenant(t, ctx)
		newSubscription(t, ctx, tn)

		p, err := postgres.NewPlanStore(db).Get(ctx, "freemium")
		require.NoError(t, err)
		err = store.Create(ctx, subscription.New(tn.ID, p, time.Now()))
		assert.ErrorIs(t, err, subscription.ErrActiveSubscriptionExists)
	})

	t.Run("usage clamps at zero", func(t *testing.T) {
		t.Parallel()
		tn := newTenant(t, ctx)
		newSubscription(t, ctx, tn)

		u, err := store.AdjustUsage(ctx, tn.ID, plan.ResourceVehicles, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(3), u.Vehicles)

		u, err = store.AdjustUsage(ctx, tn.ID, plan.ResourceVehicles, -10)
		require.NoError(t, err)
		assert.Equal(t, int64(0), u.Vehicles)
	})

	t.Run("usage without subscription", func(t *testing.T) {
		t.Parallel()
		_, err := store.AdjustUsage(ctx, uuid.New(), plan.ResourceUsers, 1)
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
		_, _, err = store.IncrementUsageWithin(ctx, uuid.New(), plan.ResourceUsers, 1)
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	})

	t.Run("concurrent increments never pass the limit", func(t *testing.T) {
		t.Parallel()
		tn := newTenant(t, ctx)
		newSubscription(t, ctx, tn)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			granted int
		)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, err := store.IncrementUsageWithin(ctx, tn.ID, plan.ResourceDrivers, 2)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 2, granted)
		sub, err := store.GetActive(ctx, tn.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), sub.Usage.Drivers)
	})

	t.Run("update detects stale versions and keeps usage", func(t *testing.T) {
		t.Parallel()
		tn := newTenant(t, ctx)
		sub := newSubscription(t, ctx, tn)

		_, err := store.AdjustUsage(ctx, tn.ID, plan.ResourceUsers, 2)
		require.NoError(t, err)

		sub.PlanID = "pro"
		assert.ErrorIs(t, store.Update(ctx, sub), subscription.ErrVersionConflict)

		fresh, err := store.GetActive(ctx, tn.ID)
		require.NoError(t, err)
		fresh.PlanID = "pro"
		require.NoError(t, store.Update(ctx, fresh))
		assert.Equal(t, int64(2), fresh.Usage.Users)
		assert.Equal(t, "pro", fresh.PlanID)
	})
}

func TestTxManager_Rollback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tenants := postgres.NewTenantStore(db)

	var id uuid.UUID
	err := db.WithinTx(ctx, func(ctx context.Context) error {
		tn := newTenant(t, ctx)
		id = tn.ID
		return subscription.ErrPlanChangeRejected
	})
	require.ErrorIs(t, err, subscription.ErrPlanChangeRejected)

	_, err = tenants.Get(ctx, id)
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
}

func TestPaymentStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := postgres.NewPaymentStore(db)

	cus := "cus_" + uuid.NewString()
	inv := "in_" + uuid.NewString()
	paid := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	p := billing.Payment{InvoiceID: inv, CustomerID: cus, Amount: 4900, Currency: "USD", Provider: "stripe", PaidAt: paid}
	require.NoError(t, store.RecordPayment(ctx, p))

	p.Amount = 1
	require.NoError(t, store.RecordPayment(ctx, p))

	later := billing.Payment{InvoiceID: "in_" + uuid.NewString(), CustomerID: cus, Amount: 4900, Currency: "USD", Provider: "stripe", PaidAt: paid.AddDate(0, 1, 0)}
	require.NoError(t, store.RecordPayment(ctx, later))

	got, err := store.ListByCustomer(ctx, cus)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, later.InvoiceID, got[0].InvoiceID)
	assert.Equal(t, int64(4900), got[1].Amount)
}
