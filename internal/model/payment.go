package model

import (
	"fmt"
	"time"
)

// PaymentStatus is the state of a single ledger row. It mirrors the payment
// processor's state after reconciliation.
type PaymentStatus string

const (
	PaymentStatusPending        PaymentStatus = "pending"
	PaymentStatusProcessing     PaymentStatus = "processing"
	PaymentStatusRequiresAction PaymentStatus = "requires_action"
	PaymentStatusSucceeded      PaymentStatus = "succeeded"
	PaymentStatusFailed         PaymentStatus = "failed"
	PaymentStatusCanceled       PaymentStatus = "canceled"
	PaymentStatusRefunded       PaymentStatus = "refunded"
)

// InFlight reports whether the processor may still move the payment.
func (s PaymentStatus) InFlight() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusRequiresAction:
		return true
	default:
		return false
	}
}

// Terminal reports whether the payment can no longer change on its own.
func (s PaymentStatus) Terminal() bool {
	return !s.InFlight()
}

// Retryable reports whether a new attempt may be made under the same
// idempotency key.
func (s PaymentStatus) Retryable() bool {
	return s == PaymentStatusFailed || s == PaymentStatusCanceled
}

// PaymentMethodType is the processor payment method family. It drives the
// processor fee formula.
type PaymentMethodType string

const (
	PaymentMethodCard PaymentMethodType = "card"
	PaymentMethodACH  PaymentMethodType = "us_bank_account"
)

// PaymentKind distinguishes manual payments from autopay charges.
type PaymentKind string

const (
	PaymentKindOneTime      PaymentKind = "one_time"
	PaymentKindSubscription PaymentKind = "subscription"
)

// RentPayment is a ledger row: one payment attempt and its outcome.
//
// IdempotencyKey + Attempt is unique. A failed or canceled attempt may be
// followed by a new one under the same key with Attempt+1; the processor
// receives "<IdempotencyKey>:<Attempt>".
type RentPayment struct {
	ID                 string            `db:"id" json:"id"`
	LeaseID            string            `db:"lease_id" json:"leaseId"`
	TenantID           string            `db:"tenant_id" json:"tenantId"`
	OwnerID            string            `db:"owner_id" json:"ownerId"`
	Kind               PaymentKind       `db:"kind" json:"kind"`
	Status             PaymentStatus     `db:"status" json:"status"`
	PaymentMethodType  PaymentMethodType `db:"payment_method_type" json:"paymentMethodType"`
	AmountCents        int64             `db:"amount_cents" json:"amountCents"`
	PlatformFeeCents   int64             `db:"platform_fee_cents" json:"platformFeeCents"`
	ProcessorFeeCents  int64             `db:"processor_fee_cents" json:"processorFeeCents"`
	NetAmountCents     int64             `db:"net_amount_cents" json:"netAmountCents"`
	Currency           string            `db:"currency" json:"currency"`
	PeriodDueDate      time.Time         `db:"period_due_date" json:"periodDueDate"`
	IdempotencyKey     string            `db:"idempotency_key" json:"idempotencyKey"`
	Attempt            int               `db:"attempt" json:"attempt"`
	ProcessorPaymentID *string           `db:"processor_payment_id" json:"processorPaymentId,omitempty"`
	FailureCode        *string           `db:"failure_code" json:"failureCode,omitempty"`
	FailureMessage     *string           `db:"failure_message" json:"failureMessage,omitempty"`
	PaidAt             *time.Time        `db:"paid_at" json:"paidAt,omitempty"`
	CreatedAt          time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updatedAt"`
}

// ProcessorKey is the idempotency key sent to the payment processor.
func (p *RentPayment) ProcessorKey() string {
	return ProcessorIdempotencyKey(p.IdempotencyKey, p.Attempt)
}

// IsLate reports whether the payment settled after the due date plus grace.
func (p *RentPayment) IsLate(graceDays int) bool {
	if p.PaidAt == nil {
		return false
	}
	deadline := p.PeriodDueDate.AddDate(0, 0, graceDays+1)
	return !p.PaidAt.Before(deadline)
}

// SubscriptionStatus is the local state of an autopay subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
)

// Live reports whether the subscription still counts as the lease's autopay.
func (s SubscriptionStatus) Live() bool {
	return s != SubscriptionStatusCanceled
}

// RentSubscription is the local mirror of a recurring processor subscription.
// At most one live subscription exists per lease.
type RentSubscription struct {
	ID                      string             `db:"id" json:"id"`
	LeaseID                 string             `db:"lease_id" json:"leaseId"`
	TenantID                string             `db:"tenant_id" json:"tenantId"`
	Status                  SubscriptionStatus `db:"status" json:"status"`
	PaymentMethodType       PaymentMethodType  `db:"payment_method_type" json:"paymentMethodType"`
	AmountCents             int64              `db:"amount_cents" json:"amountCents"`
	PlatformFeeCents        int64              `db:"platform_fee_cents" json:"platformFeeCents"`
	ProcessorFeeCents       int64              `db:"processor_fee_cents" json:"processorFeeCents"`
	Currency                string             `db:"currency" json:"currency"`
	IdempotencyKey          string             `db:"idempotency_key" json:"idempotencyKey"`
	ProcessorSubscriptionID string             `db:"processor_subscription_id" json:"processorSubscriptionId"`
	BillingAnchor           time.Time          `db:"billing_anchor" json:"billingAnchor"`
	CanceledAt              *time.Time         `db:"canceled_at" json:"canceledAt,omitempty"`
	CreatedAt               time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt               time.Time          `db:"updated_at" json:"updatedAt"`
}

// PaymentContext is everything needed to authorize and route a payment.
type PaymentContext struct {
	Lease     Lease
	Property  Property
	Tenant    User
	Owner     User
	ActorID   string
	ActorRole UserRole
}

// IsTenant reports whether the actor is the lease's tenant.
func (pc *PaymentContext) IsTenant() bool {
	return pc.ActorRole == UserRoleTenant
}

// ProcessorIdempotencyKey composes the key sent to the processor for an
// attempt.
func ProcessorIdempotencyKey(base string, attempt int) string {
	return fmt.Sprintf("%s:%d", base, attempt)
}
