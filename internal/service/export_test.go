package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"testing"
	"time"

	"github.com/deppfellow/tenantflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledger() []model.RentPayment {
	onTime := time.Date(2026, 1, 3, 15, 0, 0, 0, time.UTC)
	late := time.Date(2026, 2, 9, 15, 0, 0, 0, time.UTC)

	return []model.RentPayment{
		{
			ID: "pay-1", LeaseID: leaseID, Status: model.PaymentStatusSucceeded, Kind: model.PaymentKindOneTime,
			PaymentMethodType: model.PaymentMethodCard, AmountCents: 125000, PlatformFeeCents: 3750,
			ProcessorFeeCents: 3655, NetAmountCents: 117595, Currency: "usd",
			PeriodDueDate: date(2026, 1, 1), Attempt: 1, PaidAt: &onTime, CreatedAt: onTime,
		},
		{
			ID: "pay-2", LeaseID: leaseID, Status: model.PaymentStatusFailed, Kind: model.PaymentKindOneTime,
			PaymentMethodType: model.PaymentMethodCard, AmountCents: 125000, PlatformFeeCents: 3750,
			ProcessorFeeCents: 3655, NetAmountCents: 117595, Currency: "usd",
			PeriodDueDate: date(2026, 2, 1), Attempt: 1, FailureCode: ptr("card_declined"), CreatedAt: late,
		},
		{
			ID: "pay-3", LeaseID: leaseID, Status: model.PaymentStatusSucceeded, Kind: model.PaymentKindSubscription,
			PaymentMethodType: model.PaymentMethodACH, AmountCents: 125000, PlatformFeeCents: 3750,
			ProcessorFeeCents: 500, NetAmountCents: 120750, Currency: "usd",
			PeriodDueDate: date(2026, 2, 1), Attempt: 2, PaidAt: &late, CreatedAt: late,
		},
	}
}

func TestSummarize(t *testing.T) {
	lease := testLease()

	summary := Summarize(&lease, ledger())

	assert.Equal(t, model.PaymentSummary{
		LeaseID:            leaseID,
		Currency:           "usd",
		PaymentCount:       3,
		SucceededCount:     2,
		FailedCount:        1,
		OnTimeCount:        1,
		LateCount:          1,
		CollectedCents:     250000,
		PlatformFeesCents:  7500,
		ProcessorFeesCents: 4155,
		NetToOwnerCents:    238345,
	}, summary)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, ledger()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{
		"pay-1", "2026-01-01", "succeeded", "one_time", "card",
		"1250.00", "37.50", "36.55", "1175.95", "usd",
		"1", "2026-01-03T15:00:00Z", "", "2026-01-03T15:00:00Z",
	}, records[1])
	assert.Equal(t, "card_declined", records[2][12])
	assert.Empty(t, records[2][11])
}

func TestExportService(t *testing.T) {
	store := &fakePaymentStore{rows: ledger()}
	svc := NewExportService(NewContextResolver(newFakeLeaseStore()), store)

	summary, err := svc.Summary(context.Background(), ownerID, leaseID)
	require.NoError(t, err)
	assert.Equal(t, int64(250000), summary.CollectedCents)

	var buf bytes.Buffer
	name, err := svc.ExportCSV(context.Background(), tenantID, leaseID, &buf)
	require.NoError(t, err)
	assert.Equal(t, "rent-payments-lease-1.csv", name)
	assert.Contains(t, buf.String(), "pay-3")

	_, err = svc.ExportCSV(context.Background(), strangerID, leaseID, &bytes.Buffer{})
	requireHTTPError(t, err, http.StatusForbidden)
}
