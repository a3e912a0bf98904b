package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/deppfellow/tenantflow/internal/config"
	"github.com/deppfellow/tenantflow/internal/lib/email"
	"github.com/deppfellow/tenantflow/internal/lib/job"
	"github.com/deppfellow/tenantflow/internal/lib/lock"
	"github.com/deppfellow/tenantflow/internal/model"
	"github.com/deppfellow/tenantflow/internal/sqlerr"
	"github.com/rs/zerolog"
)

// sweepLockTTL bounds how long one instance owns the daily sweep.
const sweepLockTTL = 10 * time.Minute

// ReminderService runs the daily rent reminder sweep.
type ReminderService struct {
	leases        LeaseStore
	payments      PaymentStore
	subscriptions SubscriptionStore
	notifications NotificationStore
	enqueuer      Enqueuer
	locker        Locker
	thresholds    []int
	location      *time.Location
	now           func() time.Time
	logger        *zerolog.Logger
}

func NewReminderService(
	leases LeaseStore,
	paymentStore PaymentStore,
	subscriptionStore SubscriptionStore,
	notifications NotificationStore,
	enqueuer Enqueuer,
	locker Locker,
	billing *config.BillingConfig,
	logger *zerolog.Logger,
) *ReminderService {
	return &ReminderService{
		leases:        leases,
		payments:      paymentStore,
		subscriptions: subscriptionStore,
		notifications: notifications,
		enqueuer:      enqueuer,
		locker:        locker,
		thresholds:    billing.ReminderThresholds,
		location:      billing.Location(),
		now:           time.Now,
		logger:        logger,
	}
}

// SweepResult counts the outcome of a reminder sweep.
type SweepResult struct {
	Scanned  int `json:"scanned"`
	Enqueued int `json:"enqueued"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Sweep walks active leases and queues at most one reminder per lease per
// threshold per day. Only one instance sweeps at a time.
func (s *ReminderService) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	today := dateOf(s.now(), s.location)

	held, err := s.locker.Acquire(ctx, "reminder-sweep:"+today.Format(time.DateOnly), sweepLockTTL)
	if errors.Is(err, lock.ErrHeld) {
		s.logger.Info().Msg("reminder sweep already running elsewhere")
		return result, nil
	}
	if err != nil {
		return result, err
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Msg("failed to release reminder sweep lock")
		}
	}()

	leases, err := s.leases.ListActiveLeases(ctx)
	if err != nil {
		return result, err
	}

	for i := range leases {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		result.Scanned++
		switch outcome := s.remind(ctx, &leases[i], today); outcome {
		case reminderEnqueued:
			result.Enqueued++
		case reminderSkipped:
			result.Skipped++
		case reminderFailed:
			result.Failed++
		}
	}

	s.logger.Info().
		Int("scanned", result.Scanned).
		Int("enqueued", result.Enqueued).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("reminder sweep finished")

	return result, nil
}

type reminderOutcome int

const (
	reminderNotDue reminderOutcome = iota
	reminderEnqueued
	reminderSkipped
	reminderFailed
)

// DaysToDue returns the day count used for reminders, measured against the
// open period: the earliest unpaid one, which is the next period once the
// current one is paid. inFlight is set when a payment or an autopay charge
// for that period awaits the processor.
func DaysToDue(lease *model.Lease, history []model.RentPayment, autopay *model.RentSubscription, today time.Time) (days int, due time.Time, inFlight bool) {
	ledger := indexLedger(history)
	due = ledger.openPeriod(lease, today)
	return daysBetween(today, due), due, ledger.inFlight(due, autopay)
}

func (s *ReminderService) remind(ctx context.Context, lease *model.ActiveLease, today time.Time) reminderOutcome {
	log := s.logger.With().Str("lease_id", lease.ID).Logger()

	if !lease.IsActive(today) {
		return reminderNotDue
	}

	history, err := s.payments.ListByLease(ctx, lease.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load payment history")
		return reminderFailed
	}

	var autopay *model.RentSubscription
	if lease.HasAutopay {
		autopay, err = s.subscriptions.GetLiveByLease(ctx, lease.ID)
		if err != nil {
			log.Error().Err(err).Msg("failed to load autopay subscription")
			return reminderFailed
		}
	}

	days, due, inFlight := DaysToDue(&lease.Lease, history, autopay, today)
	if !slices.Contains(s.thresholds, days) {
		return reminderNotDue
	}

	// Autopay collects on the due date; only overdue reminders still apply.
	if days >= 0 && lease.HasAutopay {
		return reminderSkipped
	}
	if inFlight {
		return reminderSkipped
	}

	sent, err := s.notifications.ReminderExists(ctx, lease.ID, days, today)
	if err != nil {
		log.Error().Err(err).Msg("failed to check reminder log")
		return reminderFailed
	}
	if sent {
		return reminderSkipped
	}

	payload := job.RentReminderPayload{
		To:           lease.TenantEmail,
		FirstName:    lease.TenantFirstName,
		LeaseID:      lease.ID,
		PropertyName: lease.PropertyName,
		AmountCents:  lease.RentAmountCents,
		Currency:     lease.Currency,
		DueDate:      due.Format("January 2, 2006"),
		DaysUntilDue: days,
		Threshold:    days,
		SentOn:       today.Format(time.DateOnly),
	}

	taskID, err := s.enqueuer.EnqueueRentReminder(ctx, payload)
	outcome := reminderEnqueued
	switch {
	case errors.Is(err, job.ErrAlreadyQueued):
		// Queued by an earlier run that died before logging it.
		taskID = job.ReminderTaskID(lease.ID, days, today)
		outcome = reminderSkipped
	case err != nil:
		log.Error().Err(err).Int("threshold", days).Msg("failed to enqueue rent reminder")
		return reminderFailed
	}

	threshold := days
	leaseID := lease.ID
	_, err = s.notifications.CreateNotification(ctx, &model.Notification{
		UserID:    lease.TenantID,
		LeaseID:   &leaseID,
		Kind:      model.NotificationRentReminder,
		Threshold: &threshold,
		SentOn:    today,
		Subject: email.RentReminder{
			PropertyName: lease.PropertyName,
			AmountCents:  lease.RentAmountCents,
			Currency:     lease.Currency,
			DaysUntilDue: days,
		}.Subject(),
		TaskID: &taskID,
	})
	if err != nil && sqlerr.ErrCode(err) != sqlerr.UniqueViolation {
		log.Warn().Err(err).Int("threshold", days).Msg("reminder queued but not logged")
	}

	log.Debug().Int("threshold", days).Str("task_id", taskID).Msg("rent reminder processed")
	return outcome
}
