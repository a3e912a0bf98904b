// Package payments is the boundary to the external payment processor.
//
// The service layer talks to the Processor interface only; StripeProcessor
// implements it on top of stripe-go. Every create call carries the caller's
// idempotency key so retries never create a second charge or subscription.
package payments

import (
	"context"
	"errors"
	"time"

	"github.com/deppfellow/tenantflow/internal/model"
)

var (
	// ErrDeclined is returned when the processor refused the payment method.
	ErrDeclined = errors.New("payment declined")

	// ErrNotFound is returned for unknown processor objects.
	ErrNotFound = errors.New("processor object not found")

	// ErrUnavailable is returned for transient processor failures
	// (network, rate limits, 5xx). Retrying with the same key is safe.
	ErrUnavailable = errors.New("payment processor unavailable")
)

// DeclineError carries the processor's decline details.
type DeclineError struct {
	Code    string
	Message string
}

func (e *DeclineError) Error() string {
	return "payment declined: " + e.Message
}

func (e *DeclineError) Unwrap() error {
	return ErrDeclined
}

// ChargeRequest describes a one-time destination charge.
type ChargeRequest struct {
	AmountCents          int64
	ApplicationFeeCents  int64
	Currency             string
	CustomerID           string
	PaymentMethodID      string
	PaymentMethodType    model.PaymentMethodType
	DestinationAccountID string
	Description          string
	IdempotencyKey       string
	Metadata             map[string]string
}

// Charge is the processor's view of a payment: a one-time charge or a
// charge billed by a subscription.
type Charge struct {
	ID             string
	Status         model.PaymentStatus
	AmountCents    int64
	FailureCode    string
	FailureMessage string
	Created        time.Time
}

// SubscriptionRequest describes a monthly recurring rent subscription.
type SubscriptionRequest struct {
	AmountCents           int64
	Currency              string
	CustomerID            string
	PaymentMethodID       string
	PaymentMethodType     model.PaymentMethodType
	DestinationAccountID  string
	ApplicationFeePercent float64
	BillingCycleAnchor    time.Time
	ProductName           string
	IdempotencyKey        string
	Metadata              map[string]string
}

// Subscription is the processor's view of a recurring subscription.
type Subscription struct {
	ID     string
	Status model.SubscriptionStatus
}

// Processor is the payment processor contract used by the orchestrator.
type Processor interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	GetCharge(ctx context.Context, id string) (*Charge, error)
	// CancelCharge voids an in-flight charge, or refunds it once succeeded.
	CancelCharge(ctx context.Context, id string, reason string) (*Charge, error)

	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	CancelSubscription(ctx context.Context, id string) (*Subscription, error)

	// ListSubscriptionCharges returns the charges a subscription billed
	// since the given time, oldest first.
	ListSubscriptionCharges(ctx context.Context, subscriptionID string, since time.Time) ([]Charge, error)
	GetSubscriptionCharge(ctx context.Context, id string) (*Charge, error)
}
