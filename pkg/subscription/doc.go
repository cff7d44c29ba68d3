// Package subscription keeps a tenant's entitlement: which plan it is on,
// how much of each resource it uses, and whether it may add more.
//
// The main components are wired explicitly:
//
//   - Resolver loads the tenant, its active Subscription and Plan, and lazily
//     provisions the free plan the first time a tenant is seen.
//   - Enforcer guards resource creation. EnforceLimit followed by UpdateUsage
//     is the advisory path; Reserve is the strict path backed by an atomic
//     increment-and-compare in the Store.
//   - PlanChanger moves a tenant to another plan when current usage fits,
//     then mirrors the change to the payment processor on a best-effort basis.
//   - Onboarder registers new tenants; SelfService exposes the processor's
//     portal, checkout, invoices, payment method and cancellation.
//
// Usage counters never go below zero and a limit of plan.Unlimited (-1) means
// no cap. A request is allowed while usage is strictly below the limit.
//
// # Errors
//
// Limit rejections are returned as *LimitError (matches ErrLimitReached) and
// rejected plan changes as *PlanChangeError (matches ErrPlanChangeRejected).
// Both carry enough detail for a caller to render an upgrade prompt.
//
// # Example
//
//	resolver := subscription.NewResolver(tenants, subs, catalog)
//	enforcer := subscription.NewEnforcer(resolver, subs)
//
//	res, err := enforcer.Reserve(ctx, tenantID, plan.ResourceVehicles)
//	if err != nil {
//		return err // *LimitError when the quota is used up
//	}
//	if err := createVehicle(ctx); err != nil {
//		_ = res.Release(ctx)
//		return err
//	}
package subscription
