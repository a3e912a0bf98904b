package service

import (
	"context"
	"errors"
	"time"

	"github.com/deppfellow/tenantflow/internal/config"
	"github.com/deppfellow/tenantflow/internal/errs"
	"github.com/deppfellow/tenantflow/internal/lib/payments"
	"github.com/deppfellow/tenantflow/internal/model"
	"github.com/deppfellow/tenantflow/internal/repository"
	"github.com/deppfellow/tenantflow/internal/sqlerr"
	"github.com/rs/zerolog"
)

// reconcileBatchSize bounds one background reconciliation sweep.
const reconcileBatchSize = 100

// DeriveStatus computes the canonical rent status of a lease.
//
// The reported period is the earliest unpaid one due on or before today.
// When nothing is outstanding the lease is paid and the latest period due
// is reported.
//
//   - succeeded payments adding up to the rent: paid
//   - an in-flight payment or a pending autopay charge: pending
//   - otherwise pending until the due date plus grace days, overdue after
//
// autopay is the lease's live subscription, or nil.
func DeriveStatus(lease *model.Lease, history []model.RentPayment, autopay *model.RentSubscription, today time.Time) model.RentStatusReport {
	ledger := indexLedger(history)
	due := ledger.openPeriod(lease, today)

	paid := false
	if due.After(today) {
		if last, ok := lastDueOnOrBefore(lease, today); ok {
			due = last
			paid = true
		}
	}

	report := model.RentStatusReport{
		LeaseID:       lease.ID,
		Status:        model.RentStatusPending,
		PeriodDueDate: due,
		DaysUntilDue:  daysBetween(today, due),
		AmountCents:   lease.RentAmountCents,
		PaidCents:     ledger.period(due).paidCents,
		Currency:      lease.Currency,
	}

	for i := range history {
		p := &history[i]
		if report.LastPayment == nil || p.CreatedAt.After(report.LastPayment.CreatedAt) {
			report.LastPayment = p
		}
	}

	switch {
	case paid:
		report.Status = model.RentStatusPaid
	case ledger.inFlight(due, autopay):
		report.PaymentInFlight = true
	case daysBetween(due, today) > lease.GracePeriodDays:
		report.Status = model.RentStatusOverdue
		report.DaysOverdue = daysBetween(due, today)
	}

	return report
}

// StatusService derives rent status and reconciles ledger rows with the
// processor.
type StatusService struct {
	resolver       *ContextResolver
	payments       PaymentStore
	subscriptions  SubscriptionStore
	processor      payments.Processor
	enqueuer       Enqueuer
	location       *time.Location
	reconcileAfter time.Duration
	now            func() time.Time
	logger         *zerolog.Logger
}

func NewStatusService(
	resolver *ContextResolver,
	paymentStore PaymentStore,
	subscriptionStore SubscriptionStore,
	processor payments.Processor,
	enqueuer Enqueuer,
	billing *config.BillingConfig,
	logger *zerolog.Logger,
) *StatusService {
	return &StatusService{
		resolver:       resolver,
		payments:       paymentStore,
		subscriptions:  subscriptionStore,
		processor:      processor,
		enqueuer:       enqueuer,
		location:       billing.Location(),
		reconcileAfter: billing.ReconcileAfter,
		now:            time.Now,
		logger:         logger,
	}
}

// GetStatus returns the current rent status of a lease.
func (s *StatusService) GetStatus(ctx context.Context, actorID, leaseID string) (*model.RentStatusReport, error) {
	pc, err := s.resolver.Resolve(ctx, actorID, leaseID)
	if err != nil {
		return nil, err
	}

	history, err := s.payments.ListByLease(ctx, pc.Lease.ID)
	if err != nil {
		return nil, sqlerr.HandleError(err)
	}

	autopay, err := s.subscriptions.GetLiveByLease(ctx, pc.Lease.ID)
	if err != nil {
		return nil, sqlerr.HandleError(err)
	}

	report := DeriveStatus(&pc.Lease, history, autopay, dateOf(s.now(), s.location))
	return &report, nil
}

// ReconcilePayment refreshes one ledger row from the processor on behalf of
// an actor allowed to see its lease.
func (s *StatusService) ReconcilePayment(ctx context.Context, actorID, paymentID string) (*model.RentPayment, error) {
	payment, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, sqlerr.HandleError(err)
	}

	if _, err := s.resolver.Resolve(ctx, actorID, payment.LeaseID); err != nil {
		return nil, err
	}

	updated, _, err := s.reconcile(ctx, payment)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ReconcileResult counts the outcome of a reconciliation sweep.
type ReconcileResult struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`

	Autopay AutopayResult `json:"autopay"`
}

// ReconcilePending sweeps in-flight ledger rows that have not changed for
// reconcileAfter and pulls their state from the processor, then records the
// charges billed by autopay subscriptions.
func (s *StatusService) ReconcilePending(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult

	cutoff := s.now().Add(-s.reconcileAfter)
	pending, err := s.payments.ListInFlightBefore(ctx, cutoff, reconcileBatchSize)
	if err != nil {
		return result, err
	}

	for i := range pending {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		result.Checked++
		_, changed, err := s.reconcile(ctx, &pending[i])
		if err != nil {
			result.Failed++
			s.logger.Warn().
				Err(err).
				Str("payment_id", pending[i].ID).
				Msg("failed to reconcile payment")
			continue
		}
		if changed {
			result.Updated++
		}
	}

	result.Autopay, err = s.SyncAutopay(ctx)
	if err != nil {
		return result, err
	}

	s.logger.Info().
		Int("checked", result.Checked).
		Int("updated", result.Updated).
		Int("failed", result.Failed).
		Int("autopay_recorded", result.Autopay.Recorded).
		Int("autopay_updated", result.Autopay.Updated).
		Int("autopay_failed", result.Autopay.Failed).
		Msg("reconciliation sweep finished")

	return result, nil
}

// reconcile applies the processor's state to the ledger row when it differs.
func (s *StatusService) reconcile(ctx context.Context, p *model.RentPayment) (*model.RentPayment, bool, error) {
	if p.ProcessorPaymentID == nil {
		return p, false, nil
	}

	fetch := s.processor.GetCharge
	if p.Kind == model.PaymentKindSubscription {
		fetch = s.processor.GetSubscriptionCharge
	}

	charge, err := fetch(ctx, *p.ProcessorPaymentID)
	if err != nil {
		if errors.Is(err, payments.ErrUnavailable) {
			return nil, false, errs.NewServiceUnavailableError("The payment processor is unavailable")
		}
		if errors.Is(err, payments.ErrNotFound) {
			return nil, false, errs.NewUnprocessableError("The processor has no record of this payment", "PROCESSOR_PAYMENT_NOT_FOUND")
		}
		return nil, false, err
	}

	return s.apply(ctx, p, charge)
}

// apply writes the charge's status onto the ledger row and queues a receipt
// when the row becomes succeeded.
func (s *StatusService) apply(ctx context.Context, p *model.RentPayment, charge *payments.Charge) (*model.RentPayment, bool, error) {
	if charge.Status == p.Status {
		return p, false, nil
	}

	update := repository.StatusUpdate{Status: charge.Status}
	if charge.FailureCode != "" {
		update.FailureCode = &charge.FailureCode
	}
	if charge.FailureMessage != "" {
		update.FailureMessage = &charge.FailureMessage
	}
	if charge.Status == model.PaymentStatusSucceeded && p.PaidAt == nil {
		now := s.now()
		update.PaidAt = &now
	}

	updated, err := s.payments.UpdatePaymentStatus(ctx, p.ID, update)
	if err != nil {
		return nil, false, sqlerr.HandleError(err)
	}

	log := s.logger.With().Str("payment_id", p.ID).Logger()
	log.Info().
		Str("from", string(p.Status)).
		Str("to", string(updated.Status)).
		Msg("payment reconciled")

	if updated.Status == model.PaymentStatusSucceeded {
		s.sendReceipt(ctx, updated, &log)
	}

	return updated, true, nil
}

// sendReceipt loads the parties of a payment's lease and queues its receipt.
func (s *StatusService) sendReceipt(ctx context.Context, p *model.RentPayment, log *zerolog.Logger) {
	pc, err := s.resolver.Load(ctx, p.LeaseID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load lease for payment receipt")
		return
	}
	enqueueReceipt(ctx, s.enqueuer, pc, p, s.now(), s.location, log)
}
