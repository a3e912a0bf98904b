package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/deppfellow/tenantflow/internal/lib/fees"
	"github.com/deppfellow/tenantflow/internal/model"
	"github.com/deppfellow/tenantflow/internal/sqlerr"
)

// ExportService aggregates a lease's ledger for analytics and downloads.
type ExportService struct {
	resolver *ContextResolver
	payments PaymentStore
}

func NewExportService(resolver *ContextResolver, paymentStore PaymentStore) *ExportService {
	return &ExportService{resolver: resolver, payments: paymentStore}
}

// Summarize aggregates a ledger. Only succeeded payments count toward the
// collected totals; on-time means settled by due date plus grace days.
func Summarize(lease *model.Lease, history []model.RentPayment) model.PaymentSummary {
	summary := model.PaymentSummary{
		LeaseID:      lease.ID,
		Currency:     lease.Currency,
		PaymentCount: len(history),
	}

	for i := range history {
		p := &history[i]
		switch p.Status {
		case model.PaymentStatusSucceeded:
			summary.SucceededCount++
			summary.CollectedCents += p.AmountCents
			summary.PlatformFeesCents += p.PlatformFeeCents
			summary.ProcessorFeesCents += p.ProcessorFeeCents
			summary.NetToOwnerCents += p.NetAmountCents

			if p.IsLate(lease.GracePeriodDays) {
				summary.LateCount++
			} else {
				summary.OnTimeCount++
			}
		case model.PaymentStatusFailed:
			summary.FailedCount++
		}
	}

	return summary
}

var csvHeader = []string{
	"payment_id", "period_due_date", "status", "kind", "payment_method",
	"amount", "platform_fee", "processor_fee", "net_amount", "currency",
	"attempt", "paid_at", "failure_code", "created_at",
}

// WriteCSV writes the ledger as CSV with amounts in major units.
func WriteCSV(w io.Writer, history []model.RentPayment) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for i := range history {
		p := &history[i]

		paidAt := ""
		if p.PaidAt != nil {
			paidAt = p.PaidAt.UTC().Format(time.RFC3339)
		}
		failureCode := ""
		if p.FailureCode != nil {
			failureCode = *p.FailureCode
		}

		record := []string{
			p.ID,
			p.PeriodDueDate.Format(time.DateOnly),
			string(p.Status),
			string(p.Kind),
			string(p.PaymentMethodType),
			fees.CentsToDecimal(p.AmountCents).StringFixed(2),
			fees.CentsToDecimal(p.PlatformFeeCents).StringFixed(2),
			fees.CentsToDecimal(p.ProcessorFeeCents).StringFixed(2),
			fees.CentsToDecimal(p.NetAmountCents).StringFixed(2),
			p.Currency,
			strconv.Itoa(p.Attempt),
			paidAt,
			failureCode,
			p.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// Summary returns the aggregated ledger of a lease.
func (s *ExportService) Summary(ctx context.Context, actorID, leaseID string) (*model.PaymentSummary, error) {
	pc, history, err := s.load(ctx, actorID, leaseID)
	if err != nil {
		return nil, err
	}

	summary := Summarize(&pc.Lease, history)
	return &summary, nil
}

// ExportCSV streams the ledger of a lease as CSV and returns the download
// file name.
func (s *ExportService) ExportCSV(ctx context.Context, actorID, leaseID string, w io.Writer) (string, error) {
	pc, history, err := s.load(ctx, actorID, leaseID)
	if err != nil {
		return "", err
	}

	if err := WriteCSV(w, history); err != nil {
		return "", fmt.Errorf("write payments csv: %w", err)
	}
	return fmt.Sprintf("rent-payments-%s.csv", pc.Lease.ID), nil
}

func (s *ExportService) load(ctx context.Context, actorID, leaseID string) (*model.PaymentContext, []model.RentPayment, error) {
	pc, err := s.resolver.Resolve(ctx, actorID, leaseID)
	if err != nil {
		return nil, nil, err
	}

	history, err := s.payments.ListByLease(ctx, pc.Lease.ID)
	if err != nil {
		return nil, nil, sqlerr.HandleError(err)
	}
	return pc, history, nil
}
