package plan

import (
	"fmt"
	"slices"
	"time"
)

// Resource represents a countable fleet resource a plan puts a quota on.
type Resource string

const (
	ResourceVehicles Resource = "vehicles"
	ResourceUsers    Resource = "users"
	ResourceDrivers  Resource = "drivers"
)

// Resources lists every resource a plan must define a limit for.
var Resources = []Resource{ResourceVehicles, ResourceUsers, ResourceDrivers}

// Valid reports whether r is a known resource.
func (r Resource) Valid() bool {
	return slices.Contains(Resources, r)
}

// ParseResource converts a raw resource name into a Resource.
func ParseResource(s string) (Resource, error) {
	r := Resource(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidResource, s)
	}
	return r, nil
}

const (
	// Unlimited indicates no limit for a resource (-1 chosen for SQL compatibility)
	Unlimited int64 = -1
)

// Feature represents a plan-specific capability that can be enabled/disabled.
type Feature string

const (
	FeatureMaintenance     Feature = "maintenance"
	FeatureTrips           Feature = "trips"
	FeatureDocuments       Feature = "documents"
	FeatureFuelTracking    Feature = "fuel_tracking"
	FeatureReports         Feature = "reports"
	FeatureAPI             Feature = "api"
	FeaturePrioritySupport Feature = "priority_support"
)

// Money represents a monetary amount in the smallest currency unit.
// For example, $10.99 USD would be Amount: 1099, Currency: "USD".
type Money struct {
	Amount   int64  `json:"amount" yaml:"amount"`
	Currency string `json:"currency" yaml:"currency"`
}

// BillingInterval represents the billing frequency for a subscription plan.
type BillingInterval string

const (
	BillingIntervalNone    BillingInterval = "none" // Free plans with no billing
	BillingIntervalMonthly BillingInterval = "monthly"
	BillingIntervalAnnual  BillingInterval = "annual"
)

// Plan describes a subscription tier and its resource quotas.
// ExternalPriceID links the plan to the payment processor's price object and is
// used to map checkout and subscription notifications back to the catalog.
type Plan struct {
	ID                string             `json:"id" yaml:"id"`
	Name              string             `json:"name" yaml:"name"`
	Description       string             `json:"description,omitempty" yaml:"description"`
	Price             Money              `json:"price" yaml:"price"`
	Interval          BillingInterval    `json:"interval" yaml:"interval"`
	Limits            map[Resource]int64 `json:"limits" yaml:"limits"` // -1 represents unlimited
	Features          []Feature          `json:"features,omitempty" yaml:"features"`
	TrialDays         int                `json:"trial_days" yaml:"trial_days"`
	Public            bool               `json:"public" yaml:"public"`
	ExternalPriceID   string             `json:"external_price_id,omitempty" yaml:"external_price_id"`
	ExternalProductID string             `json:"external_product_id,omitempty" yaml:"external_product_id"`
}

// Limit returns the maximum allowed for a resource.
// A resource missing from the plan has no allowance at all.
func (p Plan) Limit(r Resource) int64 {
	limit, ok := p.Limits[r]
	if !ok {
		return 0
	}
	return limit
}

// IsFree reports whether the plan costs nothing.
func (p Plan) IsFree() bool {
	return p.Price.Amount == 0
}

// HasFeature reports whether the plan grants a feature.
func (p Plan) HasFeature(f Feature) bool {
	return slices.Contains(p.Features, f)
}

// TrialEndsAt calculates when the trial period ends.
// Returns startedAt unchanged if no trial is available.
func (p Plan) TrialEndsAt(startedAt time.Time) time.Time {
	if p.TrialDays <= 0 {
		return startedAt
	}
	return startedAt.AddDate(0, 0, p.TrialDays).UTC()
}

// Clone returns a deep copy so callers can't mutate catalog state.
func (p Plan) Clone() Plan {
	c := p
	if p.Limits != nil {
		c.Limits = make(map[Resource]int64, len(p.Limits))
		for k, v := range p.Limits {
			c.Limits[k] = v
		}
	}
	c.Features = slices.Clone(p.Features)
	return c
}

// Validate checks a plan definition for internal consistency.
func (p Plan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: plan id is required", ErrInvalidPlan)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: plan %s has no name", ErrInvalidPlan, p.ID)
	}
	if p.Price.Amount < 0 {
		return fmt.Errorf("%w: plan %s has negative price", ErrInvalidPlan, p.ID)
	}
	if p.TrialDays < 0 {
		return fmt.Errorf("%w: plan %s has negative trial days: %d", ErrInvalidPlan, p.ID, p.TrialDays)
	}
	for _, r := range Resources {
		limit, ok := p.Limits[r]
		if !ok {
			return fmt.Errorf("%w: plan %s has no limit for %s", ErrInvalidPlan, p.ID, r)
		}
		if limit < Unlimited {
			return fmt.Errorf("%w: plan %s has invalid limit %d for %s", ErrInvalidPlan, p.ID, limit, r)
		}
	}
	for r := range p.Limits {
		if !r.Valid() {
			return fmt.Errorf("%w: plan %s limits unknown resource %q", ErrInvalidPlan, p.ID, r)
		}
	}
	return nil
}
