package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/deppfellow/tenantflow/internal/model"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeProcessor implements Processor with Stripe Connect destination
// charges: the tenant's customer is charged, the owner's connected account
// receives the transfer and the platform keeps the application fee.
type StripeProcessor struct {
	api    *client.API
	logger *zerolog.Logger
}

// NewStripeProcessor creates a processor bound to the given secret key.
func NewStripeProcessor(secretKey string, logger *zerolog.Logger) *StripeProcessor {
	api := &client.API{}
	api.Init(secretKey, nil)

	return &StripeProcessor{
		api:    api,
		logger: logger,
	}
}

// CreateCharge creates and confirms an off-session PaymentIntent.
func (p *StripeProcessor) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	params := &stripe.PaymentIntentParams{
		Amount:               stripe.Int64(req.AmountCents),
		Currency:             stripe.String(req.Currency),
		Customer:             stripe.String(req.CustomerID),
		PaymentMethod:        stripe.String(req.PaymentMethodID),
		PaymentMethodTypes:   stripe.StringSlice([]string{string(req.PaymentMethodType)}),
		Confirm:              stripe.Bool(true),
		OffSession:           stripe.Bool(true),
		ApplicationFeeAmount: stripe.Int64(req.ApplicationFeeCents),
		Description:          stripe.String(req.Description),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(req.DestinationAccountID),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	intent, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, p.classify(err, "create payment intent")
	}

	p.logger.Info().
		Str("payment_intent", intent.ID).
		Str("status", string(intent.Status)).
		Str("idempotency_key", req.IdempotencyKey).
		Msg("payment intent created")

	return chargeFromIntent(intent), nil
}

// GetCharge fetches the current state of a PaymentIntent.
func (p *StripeProcessor) GetCharge(ctx context.Context, id string) (*Charge, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := p.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, p.classify(err, "get payment intent")
	}
	return chargeFromIntent(intent), nil
}

// CancelCharge cancels an in-flight PaymentIntent. A succeeded intent can no
// longer be cancelled, so it is fully refunded instead.
func (p *StripeProcessor) CancelCharge(ctx context.Context, id string, reason string) (*Charge, error) {
	current, err := p.GetCharge(ctx, id)
	if err != nil {
		return nil, err
	}

	switch current.Status {
	case model.PaymentStatusCanceled, model.PaymentStatusRefunded:
		return current, nil

	case model.PaymentStatusSucceeded:
		params := &stripe.RefundParams{
			PaymentIntent: stripe.String(id),
			Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
		}
		params.Context = ctx
		params.SetIdempotencyKey("refund:" + id)
		params.AddMetadata("reason", reason)
		// Reverse the connected account transfer and the application fee too.
		params.ReverseTransfer = stripe.Bool(true)
		params.RefundApplicationFee = stripe.Bool(true)

		if _, err := p.api.Refunds.New(params); err != nil {
			return nil, p.classify(err, "refund payment intent")
		}
		current.Status = model.PaymentStatusRefunded
		return current, nil

	default:
		params := &stripe.PaymentIntentCancelParams{
			CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
		}
		params.Context = ctx

		intent, err := p.api.PaymentIntents.Cancel(id, params)
		if err != nil {
			return nil, p.classify(err, "cancel payment intent")
		}
		return chargeFromIntent(intent), nil
	}
}

// CreateSubscription creates a monthly price for the rent and a subscription
// anchored on the next due date.
func (p *StripeProcessor) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error) {
	priceParams := &stripe.PriceParams{
		Currency:   stripe.String(req.Currency),
		UnitAmount: stripe.Int64(req.AmountCents),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		},
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String(req.ProductName),
		},
	}
	priceParams.Context = ctx
	priceParams.SetIdempotencyKey(req.IdempotencyKey + ":price")

	price, err := p.api.Prices.New(priceParams)
	if err != nil {
		return nil, p.classify(err, "create price")
	}

	params := &stripe.SubscriptionParams{
		Customer:             stripe.String(req.CustomerID),
		DefaultPaymentMethod: stripe.String(req.PaymentMethodID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(price.ID)},
		},
		BillingCycleAnchor:    stripe.Int64(req.BillingCycleAnchor.Unix()),
		ProrationBehavior:     stripe.String("none"),
		ApplicationFeePercent: stripe.Float64(req.ApplicationFeePercent),
		OffSession:            stripe.Bool(true),
		TransferData: &stripe.SubscriptionTransferDataParams{
			Destination: stripe.String(req.DestinationAccountID),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	sub, err := p.api.Subscriptions.New(params)
	if err != nil {
		return nil, p.classify(err, "create subscription")
	}

	p.logger.Info().
		Str("subscription", sub.ID).
		Str("status", string(sub.Status)).
		Str("idempotency_key", req.IdempotencyKey).
		Msg("subscription created")

	return &Subscription{ID: sub.ID, Status: mapSubscriptionStatus(sub.Status)}, nil
}

// GetSubscription fetches the current state of a subscription.
func (p *StripeProcessor) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := p.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, p.classify(err, "get subscription")
	}
	return &Subscription{ID: sub.ID, Status: mapSubscriptionStatus(sub.Status)}, nil
}

// CancelSubscription cancels a subscription immediately.
func (p *StripeProcessor) CancelSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	sub, err := p.api.Subscriptions.Cancel(id, params)
	if err != nil {
		if errors.Is(p.classify(err, ""), ErrNotFound) {
			return &Subscription{ID: id, Status: model.SubscriptionStatusCanceled}, nil
		}
		return nil, p.classify(err, "cancel subscription")
	}
	return &Subscription{ID: sub.ID, Status: mapSubscriptionStatus(sub.Status)}, nil
}

// ListSubscriptionCharges lists the invoices of a subscription.
func (p *StripeProcessor) ListSubscriptionCharges(ctx context.Context, subscriptionID string, since time.Time) ([]Charge, error) {
	params := &stripe.InvoiceListParams{
		Subscription: stripe.String(subscriptionID),
		CreatedRange: &stripe.RangeQueryParams{GreaterThanOrEqual: since.Unix()},
	}
	params.Context = ctx

	var charges []Charge
	iter := p.api.Invoices.List(params)
	for iter.Next() {
		charges = append(charges, *chargeFromInvoice(iter.Invoice()))
	}
	if err := iter.Err(); err != nil {
		return nil, p.classify(err, "list invoices")
	}

	slices.SortFunc(charges, func(a, b Charge) int {
		return a.Created.Compare(b.Created)
	})
	return charges, nil
}

// GetSubscriptionCharge fetches the current state of an invoice.
func (p *StripeProcessor) GetSubscriptionCharge(ctx context.Context, id string) (*Charge, error) {
	params := &stripe.InvoiceParams{}
	params.Context = ctx

	inv, err := p.api.Invoices.Get(id, params)
	if err != nil {
		return nil, p.classify(err, "get invoice")
	}
	return chargeFromInvoice(inv), nil
}

func (p *StripeProcessor) classify(err error, op string) error {
	classified := classifyStripeError(err)
	if op == "" {
		return classified
	}
	if !errors.Is(classified, ErrDeclined) {
		p.logger.Warn().Err(err).Str("operation", op).Msg("stripe request failed")
	}
	return fmt.Errorf("stripe %s: %w", op, classified)
}

// classifyStripeError maps stripe errors onto the package's sentinel errors.
func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch {
	case stripeErr.Type == stripe.ErrorTypeCard:
		code := string(stripeErr.DeclineCode)
		if code == "" {
			code = string(stripeErr.Code)
		}
		return &DeclineError{Code: code, Message: stripeErr.Msg}
	case stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing:
		return fmt.Errorf("%w: %s", ErrNotFound, stripeErr.Msg)
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", ErrUnavailable, stripeErr.Msg)
	default:
		return fmt.Errorf("stripe %s error: %s", stripeErr.Type, stripeErr.Msg)
	}
}

func chargeFromIntent(intent *stripe.PaymentIntent) *Charge {
	charge := &Charge{
		ID:          intent.ID,
		Status:      mapIntentStatus(intent.Status),
		AmountCents: intent.Amount,
		Created:     time.Unix(intent.Created, 0).UTC(),
	}
	if intent.LastPaymentError != nil {
		charge.FailureCode = string(intent.LastPaymentError.Code)
		charge.FailureMessage = intent.LastPaymentError.Msg
	}
	return charge
}

// mapIntentStatus maps a PaymentIntent status onto a ledger status.
func mapIntentStatus(status stripe.PaymentIntentStatus) model.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return model.PaymentStatusSucceeded
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return model.PaymentStatusProcessing
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		return model.PaymentStatusRequiresAction
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return model.PaymentStatusFailed
	case stripe.PaymentIntentStatusCanceled:
		return model.PaymentStatusCanceled
	default:
		return model.PaymentStatusPending
	}
}

func chargeFromInvoice(inv *stripe.Invoice) *Charge {
	charge := &Charge{
		ID:          inv.ID,
		Status:      mapInvoiceStatus(inv.Status),
		AmountCents: inv.AmountDue,
		Created:     time.Unix(inv.Created, 0).UTC(),
	}
	if inv.Status == stripe.InvoiceStatusPaid {
		charge.AmountCents = inv.AmountPaid
	}
	if inv.Status == stripe.InvoiceStatusUncollectible {
		charge.FailureCode = "invoice_uncollectible"
		charge.FailureMessage = "The autopay charge could not be collected"
	}
	return charge
}

// mapInvoiceStatus maps a subscription invoice status onto a ledger status.
// An open invoice is still being collected, including Stripe's retries.
func mapInvoiceStatus(status stripe.InvoiceStatus) model.PaymentStatus {
	switch status {
	case stripe.InvoiceStatusPaid:
		return model.PaymentStatusSucceeded
	case stripe.InvoiceStatusOpen:
		return model.PaymentStatusProcessing
	case stripe.InvoiceStatusUncollectible:
		return model.PaymentStatusFailed
	case stripe.InvoiceStatusVoid:
		return model.PaymentStatusCanceled
	default:
		return model.PaymentStatusPending
	}
}

// mapSubscriptionStatus maps a Stripe subscription status onto the local one.
func mapSubscriptionStatus(status stripe.SubscriptionStatus) model.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return model.SubscriptionStatusActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return model.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return model.SubscriptionStatusCanceled
	default:
		return model.SubscriptionStatusIncomplete
	}
}
