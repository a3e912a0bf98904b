package repository

import (
	"context"
	"fmt"

	"github.com/deppfellow/tenantflow/internal/model"
	"github.com/deppfellow/tenantflow/internal/server"
	"github.com/jackc/pgx/v5"
)

const leaseColumns = `
	l.id, l.property_id, l.tenant_id, l.unit, l.rent_amount_cents, l.currency,
	l.due_day, l.grace_period_days, l.start_date, l.end_date, l.status,
	l.created_at, l.updated_at`

const userColumns = `
	id, email, first_name, last_name, role, plan_tier, stripe_customer_id,
	default_payment_method_id, default_payment_method_type,
	stripe_connected_account_id, created_at, updated_at`

// LeaseRepository reads leases and the parties attached to them.
type LeaseRepository struct {
	server *server.Server
}

func NewLeaseRepository(s *server.Server) *LeaseRepository {
	return &LeaseRepository{server: s}
}

func (r *LeaseRepository) GetLease(ctx context.Context, leaseID string) (*model.Lease, error) {
	stmt := `SELECT` + leaseColumns + ` FROM leases l WHERE l.id = @id`

	rows, err := r.server.DB.Pool.Query(ctx, stmt, pgx.NamedArgs{"id": leaseID})
	if err != nil {
		return nil, fmt.Errorf("failed to execute get lease query for lease_id=%s: %w", leaseID, err)
	}

	lease, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Lease])
	if err != nil {
		return nil, fmt.Errorf("failed to collect row from table:leases: lease_id=%s: %w", leaseID, err)
	}

	return &lease, nil
}

func (r *LeaseRepository) GetProperty(ctx context.Context, propertyID string) (*model.Property, error) {
	stmt := `
		SELECT id, owner_id, name, address, created_at
		FROM properties
		WHERE id = @id
	`

	rows, err := r.server.DB.Pool.Query(ctx, stmt, pgx.NamedArgs{"id": propertyID})
	if err != nil {
		return nil, fmt.Errorf("failed to execute get property query for property_id=%s: %w", propertyID, err)
	}

	property, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Property])
	if err != nil {
		return nil, fmt.Errorf("failed to collect row from table:properties: property_id=%s: %w", propertyID, err)
	}

	return &property, nil
}

func (r *LeaseRepository) GetUser(ctx context.Context, userID string) (*model.User, error) {
	stmt := `SELECT` + userColumns + ` FROM users WHERE id = @id`

	rows, err := r.server.DB.Pool.Query(ctx, stmt, pgx.NamedArgs{"id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to execute get user query for user_id=%s: %w", userID, err)
	}

	user, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.User])
	if err != nil {
		return nil, fmt.Errorf("failed to collect row from table:users: user_id=%s: %w", userID, err)
	}

	return &user, nil
}

// ListActiveLeases returns every active lease with the tenant contact data
// and whether a live autopay subscription exists.
func (r *LeaseRepository) ListActiveLeases(ctx context.Context) ([]model.ActiveLease, error) {
	stmt := `
		SELECT` + leaseColumns + `,
			p.name AS property_name,
			u.email AS tenant_email,
			u.first_name AS tenant_first_name,
			EXISTS (
				SELECT 1 FROM rent_subscriptions s
				WHERE s.lease_id = l.id AND s.status <> 'canceled'
			) AS has_autopay
		FROM leases l
		JOIN properties p ON p.id = l.property_id
		JOIN users u ON u.id = l.tenant_id
		WHERE l.status = 'active'
		ORDER BY l.id
	`

	rows, err := r.server.DB.Pool.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to execute list active leases query: %w", err)
	}

	leases, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.ActiveLease])
	if err != nil {
		return nil, fmt.Errorf("failed to collect rows from table:leases: %w", err)
	}

	return leases, nil
}
