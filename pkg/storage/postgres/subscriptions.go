package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/fleetbilling/pkg/pg"
	"github.com/dmitrymomot/fleetbilling/pkg/plan"
	"github.com/dmitrymomot/fleetbilling/pkg/subscription"
)

const subscriptionColumns = `id, tenant_id, plan_id, status, period_start, period_end,
	COALESCE(external_subscription_id, ''), usage, version, created_at, updated_at`

// SubscriptionStore is a subscription.Store backed by the subscriptions table.
// Usage updates bump the version so plan changes notice concurrent counting.
type SubscriptionStore struct {
	db  *pg.TxManager
	now func() time.Time
}

// NewSubscriptionStore creates a SubscriptionStore. Queries join the transaction in ctx, if any.
func NewSubscriptionStore(db *pg.TxManager) *SubscriptionStore {
	return &SubscriptionStore{db: db, now: time.Now}
}

func (s *SubscriptionStore) GetActive(ctx context.Context, tenantID uuid.UUID) (*subscription.Subscription, error) {
	row := s.db.Conn(ctx).QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE tenant_id = $1 AND status = 'active'`, tenantID)
	sub, err := scanSubscription(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get active subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	now := s.now().UTC()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	sub.Version = 1

	_, err := s.db.Conn(ctx).Exec(ctx, `
		INSERT INTO subscriptions (id, tenant_id, plan_id, status, period_start, period_end,
			external_subscription_id, usage, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11)`,
		sub.ID, sub.TenantID, sub.PlanID, string(sub.Status), sub.PeriodStart, sub.PeriodEnd,
		sub.ExternalSubscriptionID, sub.Usage, sub.Version, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return subscription.ErrActiveSubscriptionExists
		}
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	now := s.now().UTC()
	row := s.db.Conn(ctx).QueryRow(ctx, `
		UPDATE subscriptions SET
			plan_id = $3, status = $4, period_start = $5, period_end = $6,
			external_subscription_id = NULLIF($7, ''), updated_at = $8, version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version, usage`,
		sub.ID, sub.Version, sub.PlanID, string(sub.Status), sub.PeriodStart, sub.PeriodEnd,
		sub.ExternalSubscriptionID, now,
	)

	var (
		version int64
		usage   subscription.Usage
	)
	if err := row.Scan(&version, &usage); err != nil {
		switch {
		case pg.IsDuplicateKeyError(err):
			return subscription.ErrActiveSubscriptionExists
		case pg.IsNotFoundError(err):
			return s.updateMiss(ctx, sub.ID)
		default:
			return fmt.Errorf("update subscription: %w", err)
		}
	}

	sub.Version = version
	sub.Usage = usage
	sub.UpdatedAt = now
	return nil
}

// updateMiss tells a missing row apart from a stale version.
func (s *SubscriptionStore) updateMiss(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := s.db.Conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if !exists {
		return subscription.ErrSubscriptionNotFound
	}
	return subscription.ErrVersionConflict
}

func (s *SubscriptionStore) AdjustUsage(ctx context.Context, tenantID uuid.UUID, r plan.Resource, delta int64) (subscription.Usage, error) {
	if !r.Valid() {
		return subscription.Usage{}, subscription.ErrInvalidResource
	}

	var usage subscription.Usage
	err := s.db.Conn(ctx).QueryRow(ctx, `
		UPDATE subscriptions SET
			usage = jsonb_set(usage, ARRAY[$2::text],
				to_jsonb(GREATEST(COALESCE((usage->>$2::text)::bigint, 0) + $3::bigint, 0))),
			version = version + 1,
			updated_at = now()
		WHERE tenant_id = $1 AND status = 'active'
		RETURNING usage`,
		tenantID, string(r), delta,
	).Scan(&usage)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return subscription.Usage{}, subscription.ErrSubscriptionNotFound
		}
		return subscription.Usage{}, fmt.Errorf("adjust usage: %w", err)
	}
	return usage, nil
}

func (s *SubscriptionStore) IncrementUsageWithin(ctx context.Context, tenantID uuid.UUID, r plan.Resource, limit int64) (subscription.Usage, bool, error) {
	if !r.Valid() {
		return subscription.Usage{}, false, subscription.ErrInvalidResource
	}

	var usage subscription.Usage
	err := s.db.Conn(ctx).QueryRow(ctx, `
		UPDATE subscriptions SET
			usage = jsonb_set(usage, ARRAY[$2::text],
				to_jsonb(COALESCE((usage->>$2::text)::bigint, 0) + 1)),
			version = version + 1,
			updated_at = now()
		WHERE tenant_id = $1 AND status = 'active'
			AND ($3::bigint = -1 OR COALESCE((usage->>$2::text)::bigint, 0) < $3::bigint)
		RETURNING usage`,
		tenantID, string(r), limit,
	).Scan(&usage)
	if err == nil {
		return usage, true, nil
	}
	if !pg.IsNotFoundError(err) {
		return subscription.Usage{}, false, fmt.Errorf("increment usage: %w", err)
	}

	// Either no active subscription or the limit was reached.
	sub, err := s.GetActive(ctx, tenantID)
	if err != nil {
		return subscription.Usage{}, false, err
	}
	return sub.Usage, false, nil
}

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var (
		sub    subscription.Subscription
		status string
	)
	err := row.Scan(
		&sub.ID, &sub.TenantID, &sub.PlanID, &status, &sub.PeriodStart, &sub.PeriodEnd,
		&sub.ExternalSubscriptionID, &sub.Usage, &sub.Version, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Status = subscription.Status(status)
	return &sub, nil
}
