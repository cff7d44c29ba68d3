package subscription

import (
	"errors"

	"github.com/dmitrymomot/fleetbilling/pkg/plan"
)

var (
	ErrSubscriptionNotFound     = errors.New("subscription not found")
	ErrActiveSubscriptionExists = errors.New("tenant already has an active subscription")
	ErrVersionConflict          = errors.New("subscription was modified concurrently")
	ErrFreePlanNotConfigured    = errors.New("free plan is not configured")

	ErrUnknownPlan        = errors.New("unknown subscription plan")
	ErrLimitReached       = errors.New("resource limit reached")
	ErrPlanChangeRejected = errors.New("plan change rejected")
	ErrInvalidResource    = plan.ErrInvalidResource

	ErrInvalidRegistration    = errors.New("invalid tenant registration")
	ErrNoBillingCustomer      = errors.New("tenant has no billing customer")
	ErrNoExternalSubscription = errors.New("tenant has no external subscription")
	ErrPlanNotPurchasable     = errors.New("plan cannot be purchased")
	ErrFailedToProvision      = errors.New("failed to provision subscription")
)
