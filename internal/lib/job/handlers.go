package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deppfellow/tenantflow/internal/lib/email"
	"github.com/hibiken/asynq"
)

// handleRentReminderTask sends a rent reminder email.
func (j *JobService) handleRentReminderTask(ctx context.Context, t *asynq.Task) error {
	var p RentReminderPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		// A malformed payload will never succeed; skip retries.
		return fmt.Errorf("failed to unmarshal rent reminder payload: %v: %w", err, asynq.SkipRetry)
	}

	log := j.logger.With().
		Str("type", "rent_reminder").
		Str("lease_id", p.LeaseID).
		Int("threshold", p.Threshold).
		Logger()

	log.Info().Msg("Processing rent reminder task")

	messageID, err := j.mailer.SendRentReminder(ctx, p.To, email.RentReminder{
		FirstName:    p.FirstName,
		PropertyName: p.PropertyName,
		AmountCents:  p.AmountCents,
		Currency:     p.Currency,
		DueDate:      p.DueDate,
		DaysUntilDue: p.DaysUntilDue,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to send rent reminder")
		return err
	}

	log.Info().Str("message_id", messageID).Msg("Successfully sent rent reminder")
	return nil
}

// handlePaymentReceiptTask sends a payment receipt email.
func (j *JobService) handlePaymentReceiptTask(ctx context.Context, t *asynq.Task) error {
	var p PaymentReceiptPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal payment receipt payload: %v: %w", err, asynq.SkipRetry)
	}

	log := j.logger.With().
		Str("type", "payment_receipt").
		Str("payment_id", p.PaymentID).
		Logger()

	log.Info().Msg("Processing payment receipt task")

	messageID, err := j.mailer.SendPaymentReceipt(ctx, p.To, email.PaymentReceipt{
		FirstName:         p.FirstName,
		PropertyName:      p.PropertyName,
		PaymentID:         p.PaymentID,
		AmountCents:       p.AmountCents,
		PlatformFeeCents:  p.PlatformFeeCents,
		ProcessorFeeCents: p.ProcessorFeeCents,
		Currency:          p.Currency,
		PeriodDueDate:     p.PeriodDueDate,
		PaidAt:            p.PaidAt,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to send payment receipt")
		return err
	}

	log.Info().Str("message_id", messageID).Msg("Successfully sent payment receipt")
	return nil
}
