package plan

import "errors"

var (
	ErrPlanNotFound    = errors.New("subscription plan not found")
	ErrInvalidPlan     = errors.New("invalid subscription plan configuration")
	ErrInvalidResource = errors.New("invalid plan resource")
	ErrNoFreePlan      = errors.New("no free plan in catalog")
	ErrDuplicatePlan   = errors.New("duplicate subscription plan")
	ErrFailedToLoad    = errors.New("failed to load subscription plans")
)
