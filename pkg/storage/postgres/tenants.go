package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/fleetbilling/pkg/pg"
	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

const tenantColumns = `id, name, email, plan_id, status,
	COALESCE(external_customer_id, ''), COALESCE(external_subscription_id, ''),
	trial_ends_at, custom_limits, subscription_started_at, subscription_ended_at, created_at, updated_at`

// TenantStore is a tenant.Store backed by the tenants table.
type TenantStore struct {
	db  *pg.TxManager
	now func() time.Time
}

// NewTenantStore creates a TenantStore.
func NewTenantStore(db *pg.TxManager) *TenantStore {
	return &TenantStore{db: db, now: time.Now}
}

func (s *TenantStore) Get(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return s.getBy(ctx, "id = $1", id)
}

func (s *TenantStore) GetByCustomerID(ctx context.Context, customerID string) (*tenant.Tenant, error) {
	if customerID == "" {
		return nil, tenant.ErrTenantNotFound
	}
	return s.getBy(ctx, "external_customer_id = $1", customerID)
}

func (s *TenantStore) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*tenant.Tenant, error) {
	if subscriptionID == "" {
		return nil, tenant.ErrTenantNotFound
	}
	return s.getBy(ctx, "external_subscription_id = $1", subscriptionID)
}

func (s *TenantStore) Create(ctx context.Context, t *tenant.Tenant) error {
	now := s.now().UTC()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err := s.db.Conn(ctx).Exec(ctx, `
		INSERT INTO tenants (id, name, email, plan_id, status, external_customer_id, external_subscription_id,
			trial_ends_at, custom_limits, subscription_started_at, subscription_ended_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11, $12, $13)`,
		t.ID, t.Name, t.Email, t.PlanID, string(t.Status), t.ExternalCustomerID, t.ExternalSubscriptionID,
		t.TrialEndsAt, t.CustomLimits, t.SubscriptionStartedAt, t.SubscriptionEndedAt, t.CreatedAt, t.UpdatedAt,
	)
	return tenantWriteError("create", err)
}

func (s *TenantStore) Update(ctx context.Context, t *tenant.Tenant) error {
	t.UpdatedAt = s.now().UTC()
	tag, err := s.db.Conn(ctx).Exec(ctx, `
		UPDATE tenants SET
			name = $2, email = $3, plan_id = $4, status = $5,
			external_customer_id = NULLIF($6, ''), external_subscription_id = NULLIF($7, ''),
			trial_ends_at = $8, custom_limits = $9,
			subscription_started_at = $10, subscription_ended_at = $11, updated_at = $12
		WHERE id = $1`,
		t.ID, t.Name, t.Email, t.PlanID, string(t.Status), t.ExternalCustomerID, t.ExternalSubscriptionID,
		t.TrialEndsAt, t.CustomLimits, t.SubscriptionStartedAt, t.SubscriptionEndedAt, t.UpdatedAt,
	)
	if err != nil {
		return tenantWriteError("update", err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

func (s *TenantStore) getBy(ctx context.Context, where string, arg any) (*tenant.Tenant, error) {
	row := s.db.Conn(ctx).QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE `+where, arg)
	t, err := scanTenant(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func scanTenant(row pgx.Row) (*tenant.Tenant, error) {
	var (
		t      tenant.Tenant
		status string
	)
	err := row.Scan(
		&t.ID, &t.Name, &t.Email, &t.PlanID, &status,
		&t.ExternalCustomerID, &t.ExternalSubscriptionID,
		&t.TrialEndsAt, &t.CustomLimits, &t.SubscriptionStartedAt, &t.SubscriptionEndedAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = tenant.Status(status)
	return &t, nil
}

func tenantWriteError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case pg.IsDuplicateKeyError(err) && pg.ConstraintName(err) != "tenants_pkey":
		return fmt.Errorf("%w: %s", tenant.ErrDuplicateExternalID, pg.ConstraintName(err))
	default:
		return fmt.Errorf("%s tenant: %w", op, err)
	}
}
