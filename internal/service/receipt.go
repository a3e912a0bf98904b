package service

import (
	"context"
	"errors"
	"time"

	"github.com/deppfellow/tenantflow/internal/lib/job"
	"github.com/deppfellow/tenantflow/internal/model"
	"github.com/rs/zerolog"
)

// enqueueReceipt queues the receipt of a succeeded payment. The task id is
// derived from the payment, so a payment is receipted once however many
// paths observe it succeed.
func enqueueReceipt(
	ctx context.Context,
	enqueuer Enqueuer,
	pc *model.PaymentContext,
	p *model.RentPayment,
	now time.Time,
	location *time.Location,
	log *zerolog.Logger,
) {
	paidAt := now
	if p.PaidAt != nil {
		paidAt = *p.PaidAt
	}

	_, err := enqueuer.EnqueuePaymentReceipt(ctx, job.PaymentReceiptPayload{
		To:                pc.Tenant.Email,
		FirstName:         pc.Tenant.FirstName,
		PaymentID:         p.ID,
		PropertyName:      pc.Property.Name,
		AmountCents:       p.AmountCents,
		PlatformFeeCents:  p.PlatformFeeCents,
		ProcessorFeeCents: p.ProcessorFeeCents,
		Currency:          p.Currency,
		PeriodDueDate:     p.PeriodDueDate.Format("January 2, 2006"),
		PaidAt:            paidAt.In(location).Format("January 2, 2006"),
	})
	if err != nil && !errors.Is(err, job.ErrAlreadyQueued) {
		log.Warn().Err(err).Str("payment_id", p.ID).Msg("failed to enqueue payment receipt")
	}
}
