package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deppfellow/tenantflow/internal/errs"
	"github.com/deppfellow/tenantflow/internal/lib/payments"
	"github.com/deppfellow/tenantflow/internal/model"
	"github.com/deppfellow/tenantflow/internal/sqlerr"
	"github.com/rs/zerolog"
)

// SubscriptionInput is a validated autopay enrollment request.
type SubscriptionInput struct {
	PaymentMethodID   string
	PaymentMethodType model.PaymentMethodType
}

// SubscriptionResult is the lease's autopay subscription plus whether an
// existing one was returned.
type SubscriptionResult struct {
	Subscription *model.RentSubscription `json:"subscription"`
	Replayed     bool                    `json:"replayed"`
}

// CreateSubscription enrolls the lease in autopay: a monthly processor
// subscription for the rent, anchored on the next due date. A lease has at
// most one live subscription; enrolling again returns it.
func (s *PaymentService) CreateSubscription(ctx context.Context, actorID, leaseID string, in SubscriptionInput) (*SubscriptionResult, error) {
	pc, err := s.resolver.Resolve(ctx, actorID, leaseID)
	if err != nil {
		return nil, err
	}

	method, err := s.billableParties(pc, in.PaymentMethodID, in.PaymentMethodType)
	if err != nil {
		return nil, err
	}

	breakdown, err := s.schedule.Calculate(pc.Lease.RentAmountCents, method.Type, pc.Owner.PlanTier)
	if err != nil {
		return nil, feeError(err)
	}

	today := dateOf(s.now(), s.location)
	anchor := NextBillingDue(&pc.Lease, today)

	log := s.logger.With().Str("lease_id", pc.Lease.ID).Logger()

	held, err := s.lock(ctx, "subscription:"+pc.Lease.ID)
	if err != nil {
		return nil, err
	}
	defer s.unlock(held, &log)

	existing, err := s.subscriptions.GetLiveByLease(ctx, pc.Lease.ID)
	if err != nil {
		return nil, sqlerr.HandleError(err)
	}
	if existing != nil {
		return &SubscriptionResult{Subscription: existing, Replayed: true}, nil
	}

	previous, err := s.subscriptions.CountByLease(ctx, pc.Lease.ID)
	if err != nil {
		return nil, sqlerr.HandleError(err)
	}
	key := SubscriptionIdempotencyKey(pc.Lease.ID, anchor, previous+1)
	log = log.With().Str("idempotency_key", key).Logger()

	// Processor subscriptions start at the anchor's local midnight.
	anchorAt := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, s.location)
	pct, _ := breakdown.ApplicationFeePercent().Float64()

	remote, err := s.processor.CreateSubscription(ctx, payments.SubscriptionRequest{
		AmountCents:           breakdown.AmountCents,
		Currency:              s.currency(&pc.Lease),
		CustomerID:            *pc.Tenant.StripeCustomerID,
		PaymentMethodID:       method.ID,
		PaymentMethodType:     method.Type,
		DestinationAccountID:  *pc.Owner.StripeConnectedAccountID,
		ApplicationFeePercent: pct,
		BillingCycleAnchor:    anchorAt,
		ProductName:           fmt.Sprintf("Rent for %s", pc.Property.Name),
		IdempotencyKey:        key,
		Metadata: map[string]string{
			"lease_id":  pc.Lease.ID,
			"tenant_id": pc.Tenant.ID,
		},
	})
	var decline *payments.DeclineError
	switch {
	case errors.As(err, &decline):
		return nil, errs.NewPaymentRequiredError(declineMessage(decline), "PAYMENT_DECLINED")
	case errors.Is(err, payments.ErrUnavailable):
		return nil, errs.NewServiceUnavailableError("The payment processor is unavailable, autopay was not enabled")
	case err != nil:
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	row := &model.RentSubscription{
		LeaseID:                 pc.Lease.ID,
		TenantID:                pc.Tenant.ID,
		Status:                  remote.Status,
		PaymentMethodType:       method.Type,
		AmountCents:             breakdown.AmountCents,
		PlatformFeeCents:        breakdown.PlatformFeeCents,
		ProcessorFeeCents:       breakdown.ProcessorFeeCents,
		Currency:                s.currency(&pc.Lease),
		IdempotencyKey:          key,
		ProcessorSubscriptionID: remote.ID,
		BillingAnchor:           anchor,
	}

	saved, err := retryWrite(ctx, s.logger, s.newBackOff, s.billing.LedgerWriteAttempts, "rent_subscription",
		func(ctx context.Context) (*model.RentSubscription, error) {
			return s.subscriptions.CreateSubscription(ctx, row)
		})
	if err != nil {
		log.Error().Err(err).Str("subscription_id", remote.ID).Msg("ledger write failed after subscription, compensating")
		return nil, s.compensateSubscription(ctx, remote.ID, &log)
	}

	log.Info().
		Str("subscription_id", saved.ID).
		Str("anchor", anchor.Format(time.DateOnly)).
		Msg("autopay enabled")

	return &SubscriptionResult{Subscription: saved}, nil
}

// CancelSubscription turns autopay off for a lease.
func (s *PaymentService) CancelSubscription(ctx context.Context, actorID, leaseID string) (*model.RentSubscription, error) {
	pc, err := s.resolver.Resolve(ctx, actorID, leaseID)
	if err != nil {
		return nil, err
	}

	live, err := s.subscriptions.GetLiveByLease(ctx, pc.Lease.ID)
	if err != nil {
		return nil, sqlerr.HandleError(err)
	}
	if live == nil {
		code := "AUTOPAY_NOT_ENABLED"
		return nil, errs.NewNotFoundError("Autopay is not enabled for this lease", true, &code)
	}

	if _, err := s.processor.CancelSubscription(ctx, live.ProcessorSubscriptionID); err != nil {
		if errors.Is(err, payments.ErrUnavailable) {
			return nil, errs.NewServiceUnavailableError("The payment processor is unavailable, autopay is still on")
		}
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}

	canceled, err := retryWrite(ctx, s.logger, s.newBackOff, s.billing.LedgerWriteAttempts, "rent_subscription",
		func(ctx context.Context) (*model.RentSubscription, error) {
			return s.subscriptions.MarkCanceled(ctx, live.ID, s.now())
		})
	if err != nil {
		return nil, sqlerr.HandleError(err)
	}

	s.logger.Info().
		Str("lease_id", pc.Lease.ID).
		Str("subscription_id", canceled.ID).
		Msg("autopay canceled")

	return canceled, nil
}

func (s *PaymentService) compensateSubscription(ctx context.Context, subscriptionID string, log *zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if _, err := s.processor.CancelSubscription(ctx, subscriptionID); err != nil {
		log.Error().Err(err).Str("subscription_id", subscriptionID).Msg("CRITICAL: compensation failed, subscription not recorded")
		return errs.NewInternalServerError()
	}

	log.Warn().Str("subscription_id", subscriptionID).Msg("subscription canceled after ledger write failure")
	return errs.NewServiceUnavailableError("Autopay could not be recorded and was rolled back")
}
