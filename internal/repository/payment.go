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

const paymentColumns = `
	id, lease_id, tenant_id, owner_id, kind, status, payment_method_type,
	amount_cents, platform_fee_cents, processor_fee_cents, net_amount_cents,
	currency, period_due_date, idempotency_key, attempt, processor_payment_id,
	failure_code, failure_message, paid_at, created_at, updated_at`

// PaymentRepository persists the rent payment ledger.
type PaymentRepository struct {
	server *server.Server
}

func NewPaymentRepository(s *server.Server) *PaymentRepository {
	return &PaymentRepository{server: s}
}

func (r *PaymentRepository) GetPayment(ctx context.Context, paymentID string) (*model.RentPayment, error) {
	stmt := `SELECT` + paymentColumns + ` FROM rent_payments WHERE id = @id`

	rows, err := r.server.DB.Pool.Query(ctx, stmt, pgx.NamedArgs{"id": paymentID})
	if err != nil {
		return nil, fmt.Errorf("failed to execute get payment query for payment_id=%s: %w", paymentID, err)
	}

	payment, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.RentPayment])
	if err != nil {
		return nil, fmt.Errorf("failed to collect row from table:rent_payments: payment_id=%s: %w", paymentID, err)
	}

	return &payment, nil
}

// GetLatestByKey returns the highest attempt recorded under key, or nil when
// the key was never used.
func (r *PaymentRepository) GetLatestByKey(ctx context.Context, key string) (*model.RentPayment, error) {
	stmt := `
		SELECT` + paymentColumns + `
		FROM rent_payments
		WHERE idempotency_key = @key
		ORDER BY attempt DESC
		LIMIT 1
	`

	rows, err := r.server.DB.Pool.Query(ctx, stmt, pgx.NamedArgs{"key": key})
	if err != nil {
		return nil, fmt.Errorf("failed to execute latest payment query for key=%s: %w", key, err)
	}

	payment, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.RentPayment])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collect row from table:rent_payments: key=%s: %w", key, err)
	}

	return &payment, nil
}

// UpsertPayment inserts the ledger row for (idempotency_key, attempt) or, if
// it already exists, updates its processor outcome.
func (r *PaymentRepository) UpsertPayment(ctx context.Context, p *model.RentPayment) (*model.RentPayment, error) {
	stmt := `
		INSERT INTO rent_payments (
			lease_id, tenant_id, owner_id, kind, status, payment_method_type,
			amount_cents, platform_fee_cents, processor_fee_cents, net_amount_cents,
			currency, period_due_date, idempotency_key, attempt,
			processor_payment_id, failure_code, failure_message, paid_at
		) VALUES (
			@lease_id, @tenant_id, @owner_id, @kind, @status, @payment_method_type,
			@amount_cents, @platform_fee_cents, @processor_fee_cents, @net_amount_cents,
			@currency, @period_due_date, @idempotency_key, @attempt,
			@processor_payment_id, @failure_code, @failure_message, @paid_at
		)
		ON CONFLICT ON CONSTRAINT rent_payments_idempotency_attempt_uniq DO UPDATE SET
			status = EXCLUDED.status,
			processor_payment_id = COALESCE(EXCLUDED.processor_payment_id, rent_payments.processor_payment_id),
			failure_code = EXCLUDED.failure_code,
			failure_message = EXCLUDED.failure_message,
			paid_at = COALESCE(EXCLUDED.paid_at, rent_payments.paid_at)
		RETURNING` + paymentColumns

	rows, err := r.server.DB.Pool.Query(ctx, stmt, pgx.NamedArgs{
		"lease_id":             p.LeaseID,
		"tenant_id":            p.TenantID,
		"owner_id":             p.OwnerID,
		"kind":                 string(p.Kind),
		"status":               string(p.Status),
		"payment_method_type":  string(p.PaymentMethodType),
		"amount_cents":         p.AmountCents,
		"platform_fee_cents":   p.PlatformFeeCents,
		"processor_fee_cents":  p.ProcessorFeeCents,
		"net_amount_cents":     p.NetAmountCents,
		"currency":             p.Currency,
		"period_due_date":      p.PeriodDueDate,
		"idempotency_key":      p.IdempotencyKey,
		"attempt":              p.Attempt,
		"processor_payment_id": p.ProcessorPaymentID,
		"failure_code":         p.FailureCode,
		"failure_message":      p.FailureMessage,
		"paid_at":              p.PaidAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute upsert payment query for key=%s attempt=%d: %w", p.IdempotencyKey, p.Attempt, err)
	}

	saved, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.RentPayment])
	if err != nil {
		return nil, fmt.Errorf("failed to collect row from table:rent_payments: key=%s: %w", p.IdempotencyKey, err)
	}

	return &saved, nil
}

// StatusUpdate is the processor outcome applied to an existing ledger row.
type StatusUpdate struct {
	Status         model.PaymentStatus
	FailureCode    *string
	FailureMessage *string
	PaidAt         *time.Time
}

func (r *PaymentRepository) UpdatePaymentStatus(ctx context.Context, paymentID string, update StatusUpdate) (*model.RentPayment, error) {
	stmt := `
		UPDATE rent_payments SET
			status = @status,
			failure_code = @failure_code,
			failure_message = @failure_message,
			paid_at = COALESCE(@paid_at, paid_at)
		WHERE id = @id
		RETURNING` + paymentColumns

	rows, err := r.server.DB.Pool.Query(ctx, stmt, pgx.NamedArgs{
		"id":              paymentID,
		"status":          string(update.Status),
		"failure_code":    update.FailureCode,
		"failure_message": update.FailureMessage,
		"paid_at":         update.PaidAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute update payment status query for payment_id=%s: %w", paymentID, err)
	}

	payment, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.RentPayment])
	if err != nil {
		return nil, fmt.Errorf("failed to collect row from table:rent_payments: payment_id=%s: %w", paymentID, err)
	}

	return &payment, nil
}

// ListByLease returns the lease's ledger, newest period first.
func (r *PaymentRepository) ListByLease(ctx context.Context, leaseID string) ([]model.RentPayment, error) {
	stmt := `
		SELECT` + paymentColumns + `
		FROM rent_payments
		WHERE lease_id = @lease_id
		ORDER BY period_due_date DESC, created_at DESC
	`

	rows, err := r.server.DB.Pool.Query(ctx, stmt, pgx.NamedArgs{"lease_id": leaseID})
	if err != nil {
		return nil, fmt.Errorf("failed to execute list payments query for lease_id=%s: %w", leaseID, err)
	}

	payments, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.RentPayment])
	if err != nil {
		return nil, fmt.Errorf("failed to collect rows from table:rent_payments: lease_id=%s: %w", leaseID, err)
	}

	return payments, nil
}

// ListInFlightBefore returns in-flight rows that carry a processor id and
// were last touched before cutoff, oldest first.
func (r *PaymentRepository) ListInFlightBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.RentPayment, error) {
	stmt := `
		SELECT` + paymentColumns + `
		FROM rent_payments
		WHERE status IN ('pending', 'processing', 'requires_action')
			AND processor_payment_id IS NOT NULL
			AND updated_at < @cutoff
		ORDER BY updated_at
		LIMIT @limit
	`

	rows, err := r.server.DB.Pool.Query(ctx, stmt, pgx.NamedArgs{"cutoff": cutoff, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("failed to execute in-flight payments query: %w", err)
	}

	payments, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.RentPayment])
	if err != nil {
		return nil, fmt.Errorf("failed to collect rows from table:rent_payments: %w", err)
	}

	return payments, nil
}
