package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/dmitrymomot/fleetbilling/pkg/billing"
	"github.com/dmitrymomot/fleetbilling/pkg/config"
	"github.com/dmitrymomot/fleetbilling/pkg/httpserver"
	"github.com/dmitrymomot/fleetbilling/pkg/keylock"
	"github.com/dmitrymomot/fleetbilling/pkg/logger"
	"github.com/dmitrymomot/fleetbilling/pkg/pg"
	"github.com/dmitrymomot/fleetbilling/pkg/plan"
	"github.com/dmitrymomot/fleetbilling/pkg/redis"
	"github.com/dmitrymomot/fleetbilling/pkg/storage/memory"
	"github.com/dmitrymomot/fleetbilling/pkg/storage/postgres"
	"github.com/dmitrymomot/fleetbilling/pkg/subscription"
	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

const catalogCacheSize = 128

type paymentStore interface {
	billing.PaymentRecorder
	ListByCustomer(ctx context.Context, customerID string) ([]billing.Payment, error)
}

// deps are the storage and coordination backends selected by configuration.
type deps struct {
	tenants  tenant.Store
	subs     subscription.Store
	payments paymentStore
	catalog  plan.Catalog
	tx       subscription.Transactor
	locker   keylock.Locker
	checks   []httpserver.Check
	closers  []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func openDeps(ctx context.Context, app appConfig, log *slog.Logger) (*deps, error) {
	d := &deps{}

	var err error
	switch app.StorageDriver {
	case storageMemory:
		err = d.openMemory(app, log)
	case storagePostgres:
		err = d.openPostgres(ctx, app, log)
	default:
		err = fmt.Errorf("unknown storage driver %q", app.StorageDriver)
	}
	if err == nil {
		err = d.openLocker(ctx, app)
	}
	if err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *deps) openMemory(app appConfig, log *slog.Logger) error {
	plans, err := plan.LoadFile(app.PlansFile)
	if err != nil {
		return err
	}
	catalog, err := plan.NewMemoryCatalog(plans...)
	if err != nil {
		return err
	}
	log.Warn("using in-memory storage, state is lost on restart", slog.Int("plans", len(plans)))

	d.tenants = memory.NewTenantStore()
	d.subs = memory.NewSubscriptionStore()
	d.payments = memory.NewPaymentStore()
	d.catalog = catalog
	d.tx = subscription.NoTx
	return nil
}

func (d *deps) openPostgres(ctx context.Context, app appConfig, log *slog.Logger) error {
	var cfg pg.Config
	if err := config.Load(&cfg); err != nil {
		return err
	}
	pool, err := pg.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	d.closers = append(d.closers, pool.Close)
	d.checks = append(d.checks, httpserver.Check{Name: "postgres", Probe: pg.Healthcheck(pool)})

	if err := pg.Migrate(ctx, pool, postgres.Migrations, cfg, log.With(logger.Component("migrate"))); err != nil {
		return err
	}

	db := pg.NewTxManager(pool)
	plans := postgres.NewPlanStore(db)
	if err := seedPlans(ctx, plans, app.PlansFile, log); err != nil {
		return err
	}

	d.tenants = postgres.NewTenantStore(db)
	d.subs = postgres.NewSubscriptionStore(db)
	d.payments = postgres.NewPaymentStore(db)
	d.catalog = plan.NewCachedCatalog(plans, catalogCacheSize, app.CatalogTTL)
	d.tx = db
	return nil
}

// seedPlans upserts the plans file into the database. Without a file the
// stored catalog is used as is.
func seedPlans(ctx context.Context, store *postgres.PlanStore, path string, log *slog.Logger) error {
	seed, err := plan.LoadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.InfoContext(ctx, "no plans file, using stored catalog", slog.String("path", path))
		return nil
	case err != nil:
		return err
	}
	if err := store.Upsert(ctx, seed...); err != nil {
		return err
	}
	log.InfoContext(ctx, "plan catalog seeded", slog.Int("plans", len(seed)), slog.String("path", path))
	return nil
}

func (d *deps) openLocker(ctx context.Context, app appConfig) error {
	switch app.LockDriver {
	case lockMemory:
		d.locker = keylock.NewMemory()
		return nil
	case lockRedis:
		var cfg redis.Config
		if err := config.Load(&cfg); err != nil {
			return err
		}
		client, err := redis.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, func() { _ = client.Close() })
		d.checks = append(d.checks, httpserver.Check{Name: "redis", Probe: redis.Healthcheck(client)})
		d.locker = keylock.NewRedis(client, keylock.WithPrefix("fleetbilling:lock:"))
		return nil
	default:
		return fmt.Errorf("unknown lock driver %q", app.LockDriver)
	}
}
