package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deppfellow/tenantflow/internal/model"
	"github.com/deppfellow/tenantflow/internal/server"
	"github.com/jackc/pgx/v5"
)

const subscriptionColumns = `
	id, lease_id, tenant_id, status, payment_method_type, amount_cents,
	platform_fee_cents, processor_fee_cents, currency, idempotency_key,
	processor_subscription_id, billing_anchor, canceled_at, created_at, updated_at`

// SubscriptionRepository persists autopay subscriptions.
type SubscriptionRepository struct {
	server *server.Server
}

func NewSubscriptionRepository(s *server.Server) *SubscriptionRepository {
	return &SubscriptionRepository{server: s}
}

// GetLiveByLease returns the lease's non-canceled subscription, or nil.
func (r *SubscriptionRepository) GetLiveByLease(ctx context.Context, leaseID string) (*model.RentSubscription, error) {
	stmt := `
		SELECT` + subscriptionColumns + `
		FROM rent_subscriptions
		WHERE lease_id = @lease_id AND status <> 'canceled'
	`

	rows, err := r.server.DB.Pool.Query(ctx, stmt, pgx.NamedArgs{"lease_id": leaseID})
	if err != nil {
		return nil, fmt.Errorf("failed to execute live subscription query for lease_id=%s: %w", leaseID, err)
	}

	sub, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.RentSubscription])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collect row from table:rent_subscriptions: lease_id=%s: %w", leaseID, err)
	}

	return &sub, nil
}

// CountByLease counts every subscription the lease ever had, canceled ones
// included.
func (r *SubscriptionRepository) CountByLease(ctx context.Context, leaseID string) (int, error) {
	var count int
	err := r.server.DB.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM rent_subscriptions WHERE lease_id = @lease_id`,
		pgx.NamedArgs{"lease_id": leaseID},
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscriptions for lease_id=%s: %w", leaseID, err)
	}
	return count, nil
}

func (r *SubscriptionRepository) CreateSubscription(ctx context.Context, s *model.RentSubscription) (*model.RentSubscription, error) {
	stmt := `
		INSERT INTO rent_subscriptions (
			lease_id, tenant_id, status, payment_method_type, amount_cents,
			platform_fee_cents, processor_fee_cents, currency, idempotency_key,
			processor_subscription_id, billing_anchor
		) VALUES (
			@lease_id, @tenant_id, @status, @payment_method_type, @amount_cents,
			@platform_fee_cents, @processor_fee_cents, @currency, @idempotency_key,
			@processor_subscription_id, @billing_anchor
		)
		RETURNING` + subscriptionColumns

	rows, err := r.server.DB.Pool.Query(ctx, stmt, pgx.NamedArgs{
		"lease_id":                  s.LeaseID,
		"tenant_id":                 s.TenantID,
		"status":                    string(s.Status),
		"payment_method_type":       string(s.PaymentMethodType),
		"amount_cents":              s.AmountCents,
		"platform_fee_cents":        s.PlatformFeeCents,
		"processor_fee_cents":       s.ProcessorFeeCents,
		"currency":                  s.Currency,
		"idempotency_key":           s.IdempotencyKey,
		"processor_subscription_id": s.ProcessorSubscriptionID,
		"billing_anchor":            s.BillingAnchor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute create subscription query for lease_id=%s: %w", s.LeaseID, err)
	}

	saved, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.RentSubscription])
	if err != nil {
		return nil, fmt.Errorf("failed to collect row from table:rent_subscriptions: lease_id=%s: %w", s.LeaseID, err)
	}

	return &saved, nil
}

func (r *SubscriptionRepository) MarkCanceled(ctx context.Context, subscriptionID string, at time.Time) (*model.RentSubscription, error) {
	stmt := `
		UPDATE rent_subscriptions
		SET status = 'canceled', canceled_at = @canceled_at
		WHERE id = @id
		RETURNING` + subscriptionColumns

	rows, err := r.server.DB.Pool.Query(ctx, stmt, pgx.NamedArgs{"id": subscriptionID, "canceled_at": at})
	if err != nil {
		return nil, fmt.Errorf("failed to execute cancel subscription query for subscription_id=%s: %w", subscriptionID, err)
	}

	sub, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.RentSubscription])
	if err != nil {
		return nil, fmt.Errorf("failed to collect row from table:rent_subscriptions: subscription_id=%s: %w", subscriptionID, err)
	}

	return &sub, nil
}

// ListLive returns every non-canceled subscription with a processor id,
// oldest first.
func (r *SubscriptionRepository) ListLive(ctx context.Context) ([]model.RentSubscription, error) {
	stmt := `
		SELECT` + subscriptionColumns + `
		FROM rent_subscriptions
		WHERE status <> 'canceled' AND processor_subscription_id <> ''
		ORDER BY created_at
	`

	rows, err := r.server.DB.Pool.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to execute list live subscriptions query: %w", err)
	}

	subs, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.RentSubscription])
	if err != nil {
		return nil, fmt.Errorf("failed to collect rows from table:rent_subscriptions: %w", err)
	}

	return subs, nil
}
