package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/fleetbilling/pkg/billing"
	"github.com/dmitrymomot/fleetbilling/pkg/plan"
	"github.com/dmitrymomot/fleetbilling/pkg/subscription"
	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

const (
	defaultInvoiceLimit = 10
	maxInvoiceLimit     = 100
)

type usageView struct {
	Current    int64 `json:"current"`
	Limit      int64 `json:"limit"`
	Unlimited  bool  `json:"unlimited"`
	Percentage int   `json:"percentage"`
}

func newUsageView(u subscription.UsageInfo) usageView {
	return usageView{
		Current:    u.Current,
		Limit:      u.Limit,
		Unlimited:  u.Unlimited(),
		Percentage: u.Percentage(),
	}
}

type entitlementView struct {
	TenantID    string                      `json:"tenant_id"`
	Status      tenant.Status               `json:"status"`
	Plan        plan.Plan                   `json:"plan"`
	TrialEndsAt *time.Time                  `json:"trial_ends_at,omitempty"`
	Usage       map[plan.Resource]usageView `json:"usage"`
}

func (s *server) getEntitlement(r *http.Request) (Response, error) {
	t, err := tenant.Require(r.Context())
	if err != nil {
		return nil, err
	}
	ent, err := s.svc.Entitlements.ResolveCurrent(r.Context(), t.ID)
	if err != nil {
		return nil, err
	}

	view := entitlementView{
		TenantID:    ent.Tenant.ID.String(),
		Status:      ent.Tenant.Status,
		Plan:        ent.Plan,
		TrialEndsAt: ent.Tenant.TrialEndsAt,
		Usage:       make(map[plan.Resource]usageView, len(plan.Resources)),
	}
	for _, res := range plan.Resources {
		view.Usage[res] = newUsageView(ent.UsageInfo(res))
	}
	return JSON(view), nil
}

func (s *server) checkLimit(r *http.Request) (Response, error) {
	t, res, err := tenantResource(r)
	if err != nil {
		return nil, err
	}
	c, err := s.svc.Limits.Check(r.Context(), t.ID, res)
	if err != nil {
		return nil, err
	}
	return JSON(c), nil
}

// enforceLimit is the guard to call before creating a resource. It answers
// 204 when one more unit fits and 403 LIMIT_REACHED otherwise.
func (s *server) enforceLimit(r *http.Request) (Response, error) {
	t, res, err := tenantResource(r)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Limits.EnforceLimit(r.Context(), t.ID, res); err != nil {
		return nil, err
	}
	return NoContent(), nil
}

func tenantResource(r *http.Request) (*tenant.Tenant, plan.Resource, error) {
	t, err := tenant.Require(r.Context())
	if err != nil {
		return nil, "", err
	}
	res, err := plan.ParseResource(chi.URLParam(r, "resource"))
	if err != nil {
		return nil, "", err
	}
	return t, res, nil
}

type usageRequest struct {
	Delta int64 `json:"delta"`
}

type usageResult struct {
	Resource plan.Resource      `json:"resource"`
	Usage    subscription.Usage `json:"usage"`
}

// updateUsage records a created (+n) or deleted (-n) resource after the fact.
func (s *server) updateUsage(r *http.Request) (Response, error) {
	t, err := tenant.Require(r.Context())
	if err != nil {
		return nil, err
	}
	res, err := plan.ParseResource(chi.URLParam(r, "resource"))
	if err != nil {
		return nil, err
	}
	var req usageRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Delta == 0 {
		return nil, fmt.Errorf("%w: delta must not be zero", ErrBadRequest)
	}

	usage, err := s.svc.Usage.UpdateUsage(r.Context(), t.ID, res, req.Delta)
	if err != nil {
		return nil, err
	}
	return JSON(usageResult{Resource: res, Usage: usage}), nil
}

// reserveUsage counts one unit ahead of creation, atomically against the limit.
func (s *server) reserveUsage(r *http.Request) (Response, error) {
	t, err := tenant.Require(r.Context())
	if err != nil {
		return nil, err
	}
	res, err := plan.ParseResource(chi.URLParam(r, "resource"))
	if err != nil {
		return nil, err
	}
	rsv, err := s.svc.Usage.Reserve(r.Context(), t.ID, res)
	if err != nil {
		return nil, err
	}
	return JSONWithStatus(http.StatusCreated, usageResult{Resource: rsv.Resource, Usage: rsv.Usage}), nil
}

type changePlanRequest struct {
	PlanID string `json:"plan_id"`
}

func (s *server) changePlan(r *http.Request) (Response, error) {
	t, err := tenant.Require(r.Context())
	if err != nil {
		return nil, err
	}
	var req changePlanRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.PlanID == "" {
		return nil, fmt.Errorf("%w: plan_id is required", subscription.ErrUnknownPlan)
	}

	updated, err := s.svc.Plans.ChangePlan(r.Context(), t.ID, req.PlanID)
	if err != nil {
		return nil, err
	}
	return JSON(updated), nil
}

type portalRequest struct {
	ReturnURL string `json:"return_url"`
}

type urlView struct {
	URL string `json:"url"`
}

func (s *server) portal(r *http.Request) (Response, error) {
	t, err := tenant.Require(r.Context())
	if err != nil {
		return nil, err
	}
	var req portalRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
	}
	url, err := s.svc.SelfService.PortalURL(r.Context(), t.ID, req.ReturnURL)
	if err != nil {
		return nil, err
	}
	return JSON(urlView{URL: url}), nil
}

func (s *server) checkout(r *http.Request) (Response, error) {
	t, err := tenant.Require(r.Context())
	if err != nil {
		return nil, err
	}
	var req subscription.CheckoutParams
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.SuccessURL == "" || req.CancelURL == "" {
		return nil, fmt.Errorf("%w: success_url and cancel_url are required", ErrBadRequest)
	}

	session, err := s.svc.SelfService.Checkout(r.Context(), t.ID, req)
	if err != nil {
		return nil, err
	}
	return JSONWithStatus(http.StatusCreated, session), nil
}

func (s *server) invoices(r *http.Request) (Response, error) {
	t, err := tenant.Require(r.Context())
	if err != nil {
		return nil, err
	}
	limit := defaultInvoiceLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest)
		}
		limit = min(n, maxInvoiceLimit)
	}

	invoices, err := s.svc.SelfService.Invoices(r.Context(), t.ID, limit)
	if err != nil {
		return nil, err
	}
	return JSONList(invoices), nil
}

func (s *server) paymentMethod(r *http.Request) (Response, error) {
	t, err := tenant.Require(r.Context())
	if err != nil {
		return nil, err
	}
	pm, err := s.svc.SelfService.PaymentMethod(r.Context(), t.ID)
	if err != nil {
		return nil, err
	}
	return JSON(pm), nil
}

func (s *server) payments(r *http.Request) (Response, error) {
	t, err := tenant.Require(r.Context())
	if err != nil {
		return nil, err
	}
	if t.ExternalCustomerID == "" || s.svc.Payments == nil {
		return JSONList([]billing.Payment{}), nil
	}
	payments, err := s.svc.Payments.ListByCustomer(r.Context(), t.ExternalCustomerID)
	if err != nil {
		return nil, err
	}
	return JSONList(payments), nil
}

type cancelView struct {
	Status string `json:"status"`
}

// cancel asks the processor to cancel. Local state follows the resulting notification.
func (s *server) cancel(r *http.Request) (Response, error) {
	t, err := tenant.Require(r.Context())
	if err != nil {
		return nil, err
	}
	if err := s.svc.SelfService.Cancel(r.Context(), t.ID); err != nil {
		return nil, err
	}
	return JSONWithStatus(http.StatusAccepted, cancelView{Status: "cancellation_requested"}), nil
}
