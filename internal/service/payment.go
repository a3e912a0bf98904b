package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/deppfellow/tenantflow/internal/config"
	"github.com/deppfellow/tenantflow/internal/errs"
	"github.com/deppfellow/tenantflow/internal/lib/fees"
	"github.com/deppfellow/tenantflow/internal/lib/lock"
	"github.com/deppfellow/tenantflow/internal/lib/payments"
	"github.com/deppfellow/tenantflow/internal/model"
	"github.com/deppfellow/tenantflow/internal/sqlerr"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// compensationTimeout bounds the cleanup call made after a failed ledger
// write. It runs detached from the request context.
const compensationTimeout = 30 * time.Second

// PaymentService creates one-time charges and autopay subscriptions and
// keeps the local ledger in sync with the processor.
type PaymentService struct {
	resolver      *ContextResolver
	payments      PaymentStore
	subscriptions SubscriptionStore
	processor     payments.Processor
	enqueuer      Enqueuer
	locker        Locker
	schedule      fees.Schedule
	billing       *config.BillingConfig
	location      *time.Location
	newBackOff    func() backoff.BackOff
	now           func() time.Time
	logger        *zerolog.Logger
}

func NewPaymentService(
	resolver *ContextResolver,
	paymentStore PaymentStore,
	subscriptionStore SubscriptionStore,
	processor payments.Processor,
	enqueuer Enqueuer,
	locker Locker,
	billing *config.BillingConfig,
	logger *zerolog.Logger,
) *PaymentService {
	return &PaymentService{
		resolver:      resolver,
		payments:      paymentStore,
		subscriptions: subscriptionStore,
		processor:     processor,
		enqueuer:      enqueuer,
		locker:        locker,
		schedule:      fees.DefaultSchedule(),
		billing:       billing,
		location:      billing.Location(),
		newBackOff:    defaultLedgerBackOff,
		now:           time.Now,
		logger:        logger,
	}
}

// OneTimePaymentInput is a validated one-time payment request.
type OneTimePaymentInput struct {
	// Amount is optional; the lease rent is charged when zero.
	Amount decimal.Decimal
	Unit   fees.AmountUnit

	// PaymentMethodID overrides the tenant's default method. Only the
	// tenant may supply one.
	PaymentMethodID   string
	PaymentMethodType model.PaymentMethodType

	// IdempotencyKey is the caller's key, usually the Idempotency-Key header.
	IdempotencyKey string
}

// PaymentResult is a ledger row plus whether it was replayed from an
// earlier request with the same key.
type PaymentResult struct {
	Payment  *model.RentPayment `json:"payment"`
	Replayed bool               `json:"replayed"`
}

// QuoteFees previews the fees of a payment on a lease.
func (s *PaymentService) QuoteFees(ctx context.Context, actorID, leaseID string, amount decimal.Decimal, unit fees.AmountUnit, method model.PaymentMethodType) (*fees.Breakdown, error) {
	pc, err := s.resolver.Resolve(ctx, actorID, leaseID)
	if err != nil {
		return nil, err
	}

	amountCents, err := s.amountFor(&pc.Lease, amount, unit, pc.Lease.RentAmountCents)
	if err != nil {
		return nil, err
	}

	breakdown, err := s.schedule.Calculate(amountCents, method, pc.Owner.PlanTier)
	if err != nil {
		return nil, feeError(err)
	}
	return &breakdown, nil
}

// CreateOneTimePayment charges the tenant for the open rent period, the
// earliest one not yet fully paid.
//
// The ledger key is derived from the lease and the caller's key, so a
// retried request replays the recorded outcome instead of charging twice
// even after the open period has moved on. Failed or canceled attempts may
// be retried under the same key; each attempt reaches the processor as
// "<key>:<attempt>".
func (s *PaymentService) CreateOneTimePayment(ctx context.Context, actorID, leaseID string, in OneTimePaymentInput) (*PaymentResult, error) {
	pc, err := s.resolver.Resolve(ctx, actorID, leaseID)
	if err != nil {
		return nil, err
	}

	method, err := s.billableParties(pc, in.PaymentMethodID, in.PaymentMethodType)
	if err != nil {
		return nil, err
	}

	history, err := s.payments.ListByLease(ctx, pc.Lease.ID)
	if err != nil {
		return nil, sqlerr.HandleError(err)
	}

	today := dateOf(s.now(), s.location)
	ledger := indexLedger(history)
	periodDue := ledger.openPeriod(&pc.Lease, today)

	// Without an amount the rest of the open period is charged.
	outstanding := pc.Lease.RentAmountCents - ledger.period(periodDue).paidCents
	if outstanding <= 0 {
		outstanding = pc.Lease.RentAmountCents
	}

	amountCents, err := s.amountFor(&pc.Lease, in.Amount, in.Unit, outstanding)
	if err != nil {
		return nil, err
	}

	breakdown, err := s.schedule.Calculate(amountCents, method.Type, pc.Owner.PlanTier)
	if err != nil {
		return nil, feeError(err)
	}

	key := PaymentIdempotencyKey(pc.Lease.ID, today, in.IdempotencyKey, amountCents)

	log := s.logger.With().
		Str("lease_id", pc.Lease.ID).
		Str("idempotency_key", key).
		Logger()

	held, err := s.lock(ctx, "payment:"+key)
	if err != nil {
		return nil, err
	}
	defer s.unlock(held, &log)

	latest, err := s.payments.GetLatestByKey(ctx, key)
	if err != nil {
		return nil, sqlerr.HandleError(err)
	}

	attempt := 1
	if latest != nil {
		if !latest.Status.Retryable() {
			if reusedKey(latest, in, amountCents, method.Type) {
				log.Warn().Str("payment_id", latest.ID).Msg("idempotency key reused for a different payment")
				return nil, errs.NewUnprocessableError("This idempotency key was already used for a different payment", "IDEMPOTENCY_KEY_REUSED")
			}
			log.Info().Str("payment_id", latest.ID).Msg("replaying payment for idempotency key")
			return &PaymentResult{Payment: latest, Replayed: true}, nil
		}
		attempt = latest.Attempt + 1
	}

	row := &model.RentPayment{
		LeaseID:           pc.Lease.ID,
		TenantID:          pc.Tenant.ID,
		OwnerID:           pc.Owner.ID,
		Kind:              model.PaymentKindOneTime,
		PaymentMethodType: method.Type,
		AmountCents:       breakdown.AmountCents,
		PlatformFeeCents:  breakdown.PlatformFeeCents,
		ProcessorFeeCents: breakdown.ProcessorFeeCents,
		NetAmountCents:    breakdown.NetAmountCents,
		Currency:          s.currency(&pc.Lease),
		PeriodDueDate:     periodDue,
		IdempotencyKey:    key,
		Attempt:           attempt,
	}

	charge, chargeErr := s.processor.CreateCharge(ctx, payments.ChargeRequest{
		AmountCents:          breakdown.AmountCents,
		ApplicationFeeCents:  breakdown.TotalFeeCents(),
		Currency:             row.Currency,
		CustomerID:           *pc.Tenant.StripeCustomerID,
		PaymentMethodID:      method.ID,
		PaymentMethodType:    method.Type,
		DestinationAccountID: *pc.Owner.StripeConnectedAccountID,
		Description:          fmt.Sprintf("Rent for %s, due %s", pc.Property.Name, periodDue.Format(time.DateOnly)),
		IdempotencyKey:       row.ProcessorKey(),
		Metadata: map[string]string{
			"lease_id":        pc.Lease.ID,
			"tenant_id":       pc.Tenant.ID,
			"period_due_date": periodDue.Format(time.DateOnly),
			"idempotency_key": key,
			"attempt":         fmt.Sprint(attempt),
		},
	})

	var decline *payments.DeclineError
	switch {
	case errors.As(chargeErr, &decline):
		row.Status = model.PaymentStatusFailed
		row.FailureCode = &decline.Code
		row.FailureMessage = &decline.Message

		if _, err := s.writePayment(ctx, row); err != nil {
			log.Error().Err(err).Msg("failed to record declined payment")
		}
		log.Info().Str("decline_code", decline.Code).Msg("payment declined")
		return nil, errs.NewPaymentRequiredError(declineMessage(decline), "PAYMENT_DECLINED")

	case errors.Is(chargeErr, payments.ErrUnavailable):
		return nil, errs.NewServiceUnavailableError("The payment processor is unavailable, retry with the same Idempotency-Key")

	case chargeErr != nil:
		return nil, fmt.Errorf("create charge: %w", chargeErr)
	}

	row.ProcessorPaymentID = &charge.ID
	row.Status = charge.Status
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

	saved, err := s.writePayment(ctx, row)
	if err != nil {
		log.Error().Err(err).Str("charge_id", charge.ID).Msg("ledger write failed after charge, compensating")
		return nil, s.compensateCharge(ctx, charge.ID, &log)
	}

	log.Info().
		Str("payment_id", saved.ID).
		Str("status", string(saved.Status)).
		Int("attempt", saved.Attempt).
		Msg("payment recorded")

	if saved.Status == model.PaymentStatusSucceeded {
		enqueueReceipt(ctx, s.enqueuer, pc, saved, s.now(), s.location, &log)
	}

	return &PaymentResult{Payment: saved}, nil
}

// ListPayments returns a lease's ledger, newest period first.
func (s *PaymentService) ListPayments(ctx context.Context, actorID, leaseID string) ([]model.RentPayment, error) {
	pc, err := s.resolver.Resolve(ctx, actorID, leaseID)
	if err != nil {
		return nil, err
	}

	history, err := s.payments.ListByLease(ctx, pc.Lease.ID)
	if err != nil {
		return nil, sqlerr.HandleError(err)
	}
	return history, nil
}

type paymentMethod struct {
	ID   string
	Type model.PaymentMethodType
}

// billableParties checks the lease can be charged and picks the payment
// method.
func (s *PaymentService) billableParties(pc *model.PaymentContext, overrideID string, overrideType model.PaymentMethodType) (*paymentMethod, error) {
	if !pc.Lease.IsActive(s.now()) {
		return nil, errs.NewUnprocessableError("Rent can only be collected on an active lease", "LEASE_NOT_ACTIVE")
	}

	if pc.Owner.StripeConnectedAccountID == nil || *pc.Owner.StripeConnectedAccountID == "" {
		return nil, errs.NewUnprocessableError("The property owner has not finished payout setup", "OWNER_PAYOUTS_NOT_READY")
	}

	noMethod := errs.NewUnprocessableError("No payment method on file", "PAYMENT_METHOD_REQUIRED").
		WithAction(&errs.Action{
			Type:    errs.ActionTypeUpdatePaymentMethod,
			Message: "Add a payment method to pay rent",
		})

	if pc.Tenant.StripeCustomerID == nil || *pc.Tenant.StripeCustomerID == "" {
		return nil, noMethod
	}

	if overrideID != "" {
		if !pc.IsTenant() {
			return nil, errs.NewForbiddenError("Only the tenant can choose the payment method", true)
		}
		return &paymentMethod{ID: overrideID, Type: overrideType}, nil
	}

	if pc.Tenant.DefaultPaymentMethodID == nil || pc.Tenant.DefaultPaymentMethodType == nil {
		return nil, noMethod
	}
	return &paymentMethod{ID: *pc.Tenant.DefaultPaymentMethodID, Type: *pc.Tenant.DefaultPaymentMethodType}, nil
}

// amountFor normalizes the requested amount, defaulting to defaultCents.
func (s *PaymentService) amountFor(lease *model.Lease, amount decimal.Decimal, unit fees.AmountUnit, defaultCents int64) (int64, error) {
	if amount.IsZero() {
		return defaultCents, nil
	}

	cents, err := fees.NormalizeToCents(amount, unit, lease.RentAmountCents)
	if err != nil {
		return 0, feeError(err)
	}
	return cents, nil
}

func (s *PaymentService) currency(lease *model.Lease) string {
	if lease.Currency != "" {
		return lease.Currency
	}
	return "usd"
}

// lock takes the in-flight lock of an idempotency key.
func (s *PaymentService) lock(ctx context.Context, name string) (Unlocker, error) {
	held, err := s.locker.Acquire(ctx, name, s.billing.PaymentLockTTL)
	if errors.Is(err, lock.ErrHeld) {
		code := "PAYMENT_IN_PROGRESS"
		return nil, errs.NewConflictError("A request with this idempotency key is already in progress", true, &code)
	}
	if err != nil {
		return nil, errs.NewServiceUnavailableError("Could not acquire payment lock")
	}
	return held, nil
}

func (s *PaymentService) unlock(held Unlocker, log *zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := held.Release(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to release payment lock")
	}
}

func (s *PaymentService) writePayment(ctx context.Context, row *model.RentPayment) (*model.RentPayment, error) {
	return retryWrite(ctx, s.logger, s.newBackOff, s.billing.LedgerWriteAttempts, "rent_payment",
		func(ctx context.Context) (*model.RentPayment, error) {
			return s.payments.UpsertPayment(ctx, row)
		})
}

// compensateCharge reverses a charge the ledger could not record and
// returns the error to report to the caller.
func (s *PaymentService) compensateCharge(ctx context.Context, chargeID string, log *zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	reversed, err := s.processor.CancelCharge(ctx, chargeID, "ledger_write_failed")
	if err != nil {
		// The tenant may have been charged without a ledger row; the
		// reconciliation sweep cannot see it, so this needs an operator.
		log.Error().Err(err).Str("charge_id", chargeID).Msg("CRITICAL: compensation failed, charge not recorded")
		return errs.NewInternalServerError()
	}

	log.Warn().
		Str("charge_id", chargeID).
		Str("status", string(reversed.Status)).
		Msg("charge reversed after ledger write failure")
	return errs.NewServiceUnavailableError("The payment could not be recorded and was reversed")
}

// reusedKey reports whether a request carries the key of a recorded payment
// but asks for a different one. A request without an amount matches any
// recorded amount, since its default depends on the ledger at the time.
func reusedKey(recorded *model.RentPayment, in OneTimePaymentInput, amountCents int64, method model.PaymentMethodType) bool {
	if recorded.PaymentMethodType != method {
		return true
	}
	return !in.Amount.IsZero() && recorded.AmountCents != amountCents
}

// feeError maps fee and amount validation errors onto 400s.
func feeError(err error) error {
	code := "INVALID_AMOUNT"
	switch {
	case errors.Is(err, fees.ErrUnknownPaymentMethod):
		code = "INVALID_PAYMENT_METHOD"
	case errors.Is(err, fees.ErrFeesExceedAmount):
		code = "AMOUNT_BELOW_FEES"
	}

	var message string
	switch {
	case errors.Is(err, fees.ErrNonPositiveAmount):
		message = fees.ErrNonPositiveAmount.Error()
	case errors.Is(err, fees.ErrTooManyDecimals):
		message = fees.ErrTooManyDecimals.Error()
	case errors.Is(err, fees.ErrFractionalCents):
		message = fees.ErrFractionalCents.Error()
	case errors.Is(err, fees.ErrAmountTooLarge):
		message = fees.ErrAmountTooLarge.Error()
	case errors.Is(err, fees.ErrUnknownUnit):
		message = fees.ErrUnknownUnit.Error()
	case errors.Is(err, fees.ErrUnknownPaymentMethod):
		message = fees.ErrUnknownPaymentMethod.Error()
	case errors.Is(err, fees.ErrFeesExceedAmount):
		message = "amount is too small to cover fees"
	default:
		message = "invalid amount"
	}

	return errs.NewBadRequestError(message, true, &code, nil, nil)
}

func declineMessage(d *payments.DeclineError) string {
	if d.Message != "" {
		return d.Message
	}
	return "Your payment was declined"
}
