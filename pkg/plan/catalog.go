package plan

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Catalog provides read access to subscription plan definitions.
// Implementations return copies; mutating a returned Plan never affects the catalog.
type Catalog interface {
	// Get returns a plan by its catalog ID.
	// Returns ErrPlanNotFound if no such plan exists.
	Get(ctx context.Context, id string) (Plan, error)

	// GetByPriceID maps a payment processor price ID back to a plan.
	// Returns ErrPlanNotFound if no plan references the price.
	GetByPriceID(ctx context.Context, priceID string) (Plan, error)

	// List returns all plans ordered by price, then ID.
	List(ctx context.Context) ([]Plan, error)
}

// FreePlan returns the designated zero-cost plan.
// If id is set the plan must exist and be free; otherwise the cheapest free plan wins.
func FreePlan(ctx context.Context, c Catalog, id string) (Plan, error) {
	if id != "" {
		p, err := c.Get(ctx, id)
		if err != nil {
			return Plan{}, errors.Join(ErrNoFreePlan, err)
		}
		if !p.IsFree() {
			return Plan{}, fmt.Errorf("%w: plan %s is not free", ErrNoFreePlan, id)
		}
		return p, nil
	}

	plans, err := c.List(ctx)
	if err != nil {
		return Plan{}, err
	}
	for _, p := range plans {
		if p.IsFree() {
			return p, nil
		}
	}
	return Plan{}, errors.Join(ErrNoFreePlan, ErrPlanNotFound)
}

// SortPlans orders plans by price amount, then ID, so listings are stable.
func SortPlans(plans []Plan) {
	slices.SortFunc(plans, func(a, b Plan) int {
		if a.Price.Amount != b.Price.Amount {
			if a.Price.Amount < b.Price.Amount {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
}
