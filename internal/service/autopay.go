package service

import (
	"context"
	"time"

	"github.com/deppfellow/tenantflow/internal/model"
	"github.com/deppfellow/tenantflow/internal/sqlerr"
)

// AutopayResult counts the outcome of an autopay ledger sync.
type AutopayResult struct {
	Subscriptions int `json:"subscriptions"`
	Recorded      int `json:"recorded"`
	Updated       int `json:"updated"`
	Failed        int `json:"failed"`
}

// SyncAutopay records the charges billed by live autopay subscriptions in
// the ledger, one row per charge, credited to the period it was billed for.
func (s *StatusService) SyncAutopay(ctx context.Context) (AutopayResult, error) {
	var result AutopayResult

	subs, err := s.subscriptions.ListLive(ctx)
	if err != nil {
		return result, err
	}

	for i := range subs {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		result.Subscriptions++
		if err := s.syncSubscription(ctx, &subs[i], &result); err != nil {
			result.Failed++
			s.logger.Warn().
				Err(err).
				Str("subscription_id", subs[i].ID).
				Str("lease_id", subs[i].LeaseID).
				Msg("failed to sync autopay charges")
		}
	}

	return result, nil
}

func (s *StatusService) syncSubscription(ctx context.Context, sub *model.RentSubscription, result *AutopayResult) error {
	pc, err := s.resolver.Load(ctx, sub.LeaseID)
	if err != nil {
		return err
	}

	charges, err := s.processor.ListSubscriptionCharges(ctx, sub.ProcessorSubscriptionID, sub.CreatedAt.Add(-time.Hour))
	if err != nil {
		return err
	}

	log := s.logger.With().Str("lease_id", sub.LeaseID).Str("subscription_id", sub.ID).Logger()

	for i := range charges {
		charge := &charges[i]
		if charge.AmountCents <= 0 {
			continue
		}

		key := AutopayChargeKey(sub.LeaseID, charge.ID)
		existing, err := s.payments.GetLatestByKey(ctx, key)
		if err != nil {
			return sqlerr.HandleError(err)
		}

		if existing != nil {
			_, changed, err := s.apply(ctx, existing, charge)
			if err != nil {
				return err
			}
			if changed {
				result.Updated++
			}
			continue
		}

		row := &model.RentPayment{
			LeaseID:            sub.LeaseID,
			TenantID:           sub.TenantID,
			OwnerID:            pc.Owner.ID,
			Kind:               model.PaymentKindSubscription,
			Status:             charge.Status,
			PaymentMethodType:  sub.PaymentMethodType,
			AmountCents:        charge.AmountCents,
			PlatformFeeCents:   sub.PlatformFeeCents,
			ProcessorFeeCents:  sub.ProcessorFeeCents,
			NetAmountCents:     charge.AmountCents - sub.PlatformFeeCents - sub.ProcessorFeeCents,
			Currency:           sub.Currency,
			PeriodDueDate:      autopayPeriod(&pc.Lease, charge.Created),
			IdempotencyKey:     key,
			Attempt:            1,
			ProcessorPaymentID: &charge.ID,
		}
		if charge.FailureCode != "" {
			row.FailureCode = &charge.FailureCode
		}
		if charge.FailureMessage != "" {
			row.FailureMessage = &charge.FailureMessage
		}
		if charge.Status == model.PaymentStatusSucceeded {
			paidAt := s.now()
			row.PaidAt = &paidAt
		}

		saved, err := s.payments.UpsertPayment(ctx, row)
		if err != nil {
			return sqlerr.HandleError(err)
		}
		result.Recorded++

		log.Info().
			Str("payment_id", saved.ID).
			Str("charge_id", charge.ID).
			Str("status", string(saved.Status)).
			Time("period_due_date", saved.PeriodDueDate).
			Msg("autopay charge recorded")

		if saved.Status == model.PaymentStatusSucceeded {
			enqueueReceipt(ctx, s.enqueuer, pc, saved, s.now(), s.location, &log)
		}
	}

	return nil
}
