package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/fleetbilling/pkg/pg"
	"github.com/dmitrymomot/fleetbilling/pkg/plan"
)

const planColumns = `id, name, description, price_amount, price_currency, billing_interval,
	limits, features, trial_days, public, COALESCE(external_price_id, ''), COALESCE(external_product_id, '')`

// PlanStore is a plan.Catalog backed by the plans table.
type PlanStore struct {
	db *pg.TxManager
}

// NewPlanStore creates a PlanStore.
func NewPlanStore(db *pg.TxManager) *PlanStore {
	return &PlanStore{db: db}
}

func (s *PlanStore) Get(ctx context.Context, id string) (plan.Plan, error) {
	row := s.db.Conn(ctx).QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id)
	return scanPlan(row)
}

func (s *PlanStore) GetByPriceID(ctx context.Context, priceID string) (plan.Plan, error) {
	if priceID == "" {
		return plan.Plan{}, plan.ErrPlanNotFound
	}
	row := s.db.Conn(ctx).QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE external_price_id = $1`, priceID)
	return scanPlan(row)
}

func (s *PlanStore) List(ctx context.Context) ([]plan.Plan, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, `SELECT `+planColumns+` FROM plans ORDER BY price_amount, id`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []plan.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

// Upsert validates and writes plans in one transaction, replacing existing
// definitions with the same id. Used to seed the catalog from a file.
func (s *PlanStore) Upsert(ctx context.Context, plans ...plan.Plan) error {
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return err
		}
	}

	return s.db.WithinTx(ctx, func(ctx context.Context) error {
		for _, p := range plans {
			features := p.Features
			if features == nil {
				features = []plan.Feature{}
			}
			_, err := s.db.Conn(ctx).Exec(ctx, `
				INSERT INTO plans (id, name, description, price_amount, price_currency, billing_interval,
					limits, features, trial_days, public, external_price_id, external_product_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), NULLIF($12, ''))
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name,
					description = EXCLUDED.description,
					price_amount = EXCLUDED.price_amount,
					price_currency = EXCLUDED.price_currency,
					billing_interval = EXCLUDED.billing_interval,
					limits = EXCLUDED.limits,
					features = EXCLUDED.features,
					trial_days = EXCLUDED.trial_days,
					public = EXCLUDED.public,
					external_price_id = EXCLUDED.external_price_id,
					external_product_id = EXCLUDED.external_product_id,
					updated_at = now()`,
				p.ID, p.Name, p.Description, p.Price.Amount, p.Price.Currency, string(p.Interval),
				p.Limits, features, p.TrialDays, p.Public, p.ExternalPriceID, p.ExternalProductID,
			)
			if err != nil {
				if pg.IsDuplicateKeyError(err) {
					return fmt.Errorf("%w: price %s already mapped", plan.ErrDuplicatePlan, p.ExternalPriceID)
				}
				return fmt.Errorf("upsert plan %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

func scanPlan(row pgx.Row) (plan.Plan, error) {
	var (
		p        plan.Plan
		interval string
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price.Amount, &p.Price.Currency, &interval,
		&p.Limits, &p.Features, &p.TrialDays, &p.Public, &p.ExternalPriceID, &p.ExternalProductID,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return plan.Plan{}, plan.ErrPlanNotFound
		}
		return plan.Plan{}, errors.Join(plan.ErrFailedToLoad, err)
	}
	p.Interval = plan.BillingInterval(interval)
	return p, nil
}
