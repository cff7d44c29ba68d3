// Command billingd runs the fleet billing service: the billing API, the
// payment processor webhook endpoint and the health and metrics endpoints.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/fleetbilling/pkg/api"
	"github.com/dmitrymomot/fleetbilling/pkg/billing"
	"github.com/dmitrymomot/fleetbilling/pkg/clientip"
	"github.com/dmitrymomot/fleetbilling/pkg/config"
	"github.com/dmitrymomot/fleetbilling/pkg/email"
	"github.com/dmitrymomot/fleetbilling/pkg/environment"
	"github.com/dmitrymomot/fleetbilling/pkg/httpserver"
	"github.com/dmitrymomot/fleetbilling/pkg/logger"
	"github.com/dmitrymomot/fleetbilling/pkg/metrics"
	"github.com/dmitrymomot/fleetbilling/pkg/reconcile"
	"github.com/dmitrymomot/fleetbilling/pkg/requestid"
	"github.com/dmitrymomot/fleetbilling/pkg/subscription"
	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("billingd stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg settings
	if err := loadConfig(&cfg); err != nil {
		return err
	}

	env := environment.Parse(cfg.App.Env)
	log := logger.New(
		logger.WithEnvironment(cfg.App.Env, cfg.App.Service),
		logger.WithContextExtractors(
			requestid.LoggerExtractor(),
			clientip.LoggerExtractor(),
			tenant.LoggerExtractor(),
		),
	)
	logger.SetAsDefault(log)

	collector := metrics.New(cfg.App.MetricsPrefix)

	deps, err := openDeps(ctx, cfg.App, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	gateway, err := billing.New(cfg.Billing, cfg.Stripe, cfg.Paddle,
		billing.WithLogger(log.With(logger.Component("billing"))),
		billing.WithPaymentRecorder(deps.payments),
		billing.WithObserver(collector),
	)
	if err != nil {
		return err
	}

	sender, err := email.New(cfg.Email)
	if err != nil {
		return err
	}

	subOpts := []subscription.Option{
		subscription.WithLogger(log.With(logger.Component("subscription"))),
		subscription.WithFreePlanID(cfg.App.FreePlanID),
		subscription.WithGateway(gateway),
		subscription.WithTransactor(deps.tx),
		subscription.WithLocker(deps.locker),
		subscription.WithLimitObserver(collector),
	}
	resolver := subscription.NewResolver(deps.tenants, deps.subs, deps.catalog, subOpts...)
	enforcer := subscription.NewEnforcer(resolver, deps.subs, subOpts...)

	reconciler := reconcile.New(gateway, deps.tenants, deps.subs, deps.catalog,
		reconcile.WithLogger(log.With(logger.Component("reconcile"))),
		reconcile.WithLocker(deps.locker),
		reconcile.WithTransactor(deps.tx),
		reconcile.WithNotifier(reconcile.NewEmailNotifier(sender, deps.catalog, cfg.Email.SupportEmail)),
		reconcile.WithObserver(collector),
	)

	router := api.NewRouter(api.Services{
		Webhooks:     reconciler,
		Tenants:      deps.tenants,
		Catalog:      deps.catalog,
		Entitlements: resolver,
		Limits:       enforcer,
		Usage:        enforcer,
		Plans:        subscription.NewPlanChanger(deps.tenants, deps.subs, deps.catalog, resolver, subOpts...),
		SelfService:  subscription.NewSelfService(deps.tenants, deps.catalog, gateway, subOpts...),
		Registrar:    subscription.NewOnboarder(deps.tenants, deps.subs, deps.catalog, subOpts...),
		Payments:     deps.payments,
	},
		api.WithLogger(log.With(logger.Component("api"))),
		api.WithEnvironment(env),
		api.WithSignatureHeader(gateway.SignatureHeader()),
		api.WithTenantHeader(cfg.App.TenantHeader),
		api.WithMetrics(collector),
		api.WithReadinessChecks(deps.checks...),
	)

	log.InfoContext(ctx, "starting billing service",
		logger.Provider(gateway.Provider()),
		slog.String("storage", cfg.App.StorageDriver),
		slog.String("lock", cfg.App.LockDriver),
		slog.String("addr", cfg.HTTP.Addr))

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log.With(logger.Component("http"))))
	if err := srv.Run(ctx, router); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loadConfig(cfg *settings) error {
	return errors.Join(
		config.Load(&cfg.App),
		config.Load(&cfg.HTTP),
		config.Load(&cfg.Billing),
		config.Load(&cfg.Stripe),
		config.Load(&cfg.Paddle),
		config.Load(&cfg.Email),
	)
}
