// Package tenant models the billing-relevant state of a client company and
// propagates it through request contexts.
//
// A Tenant carries its lifecycle Status (trial, active, past_due, cancelled,
// incomplete), the current plan reference, optional per-resource quota
// overrides and the payment processor identifiers used to reconcile
// asynchronous notifications.
//
// Store is the persistence contract; implementations live in storage/memory
// and storage/postgres.
//
// # HTTP
//
//	mw := tenant.Middleware(tenant.NewHeaderResolver("X-Tenant-ID"), store,
//		tenant.WithSkipPaths("/health", "/webhooks"),
//	)
//	router.Use(mw, tenant.RequireTenant(nil))
//
// Handlers read the tenant with FromContext or Require.
package tenant
