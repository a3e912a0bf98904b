package service

import (
	"fmt"
	"time"

	"github.com/deppfellow/tenantflow/internal/model"
)

// Rent periods are calendar months. Due dates are plain dates, represented
// as midnight UTC so they compare equal to DATE columns read back from
// Postgres. A period is paid once its succeeded payments add up to the rent.

// dateOf returns the calendar date of t in loc as midnight UTC.
func dateOf(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// sameDate reports whether two dates fall on the same calendar day.
func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// daysBetween returns the whole days from a to b (negative when b is before a).
func daysBetween(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// dueDateIn returns the lease's due date in the given month, clamping the due
// day to the month length.
func dueDateIn(lease *model.Lease, year int, month time.Month) time.Time {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	day := min(max(lease.DueDay, 1), lastDay)
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// nextMonthDue returns the due date of the period after due.
func nextMonthDue(lease *model.Lease, due time.Time) time.Time {
	first := time.Date(due.Year(), due.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return dueDateIn(lease, first.Year(), first.Month())
}

// prevMonthDue returns the due date of the period before due.
func prevMonthDue(lease *model.Lease, due time.Time) time.Time {
	first := time.Date(due.Year(), due.Month()-1, 1, 0, 0, 0, 0, time.UTC)
	return dueDateIn(lease, first.Year(), first.Month())
}

// arrearsMonths bounds how many periods before the current one are searched
// for unpaid rent.
const arrearsMonths = 3

// maxPrepaidPeriods bounds the forward search for the first unpaid period.
const maxPrepaidPeriods = 36

// firstDue returns the lease's first due date on or after its start date.
func firstDue(lease *model.Lease) time.Time {
	start := time.Date(lease.StartDate.Year(), lease.StartDate.Month(), lease.StartDate.Day(), 0, 0, 0, 0, time.UTC)
	due := dueDateIn(lease, start.Year(), start.Month())
	if start.After(due) {
		due = nextMonthDue(lease, due)
	}
	return due
}

// calendarDue returns the due date of today's month, or the lease's first
// due date when the lease starts later.
func calendarDue(lease *model.Lease, today time.Time) time.Time {
	due := dueDateIn(lease, today.Year(), today.Month())
	if first := firstDue(lease); first.After(due) {
		return first
	}
	return due
}

// lastDueOnOrBefore returns the latest due date on or before today and
// false when the lease has no due date yet.
func lastDueOnOrBefore(lease *model.Lease, today time.Time) (time.Time, bool) {
	due := calendarDue(lease, today)
	if due.After(today) {
		due = prevMonthDue(lease, due)
	}
	if due.Before(firstDue(lease)) {
		return time.Time{}, false
	}
	return due, true
}

// periodLedger is what the ledger holds for one rent period.
type periodLedger struct {
	paidCents int64
	inFlight  bool
	autopay   bool
}

type ledgerIndex map[string]*periodLedger

func periodKey(due time.Time) string {
	return due.Format(time.DateOnly)
}

// indexLedger groups the payment history by rent period.
func indexLedger(history []model.RentPayment) ledgerIndex {
	index := ledgerIndex{}
	for i := range history {
		p := &history[i]

		key := periodKey(p.PeriodDueDate)
		entry, ok := index[key]
		if !ok {
			entry = &periodLedger{}
			index[key] = entry
		}

		switch {
		case p.Status == model.PaymentStatusSucceeded:
			entry.paidCents += p.AmountCents
		case p.Status.InFlight():
			entry.inFlight = true
		}
		if p.Kind == model.PaymentKindSubscription {
			entry.autopay = true
		}
	}
	return index
}

func (x ledgerIndex) period(due time.Time) periodLedger {
	if entry, ok := x[periodKey(due)]; ok {
		return *entry
	}
	return periodLedger{}
}

// settled reports whether succeeded payments cover the full rent of the
// period.
func (x ledgerIndex) settled(lease *model.Lease, due time.Time) bool {
	return x.period(due).paidCents >= lease.RentAmountCents
}

// inFlight reports whether a payment for the period awaits the processor.
// An active autopay subscription anchored on or before the period counts
// until the ledger records its charge.
func (x ledgerIndex) inFlight(due time.Time, autopay *model.RentSubscription) bool {
	entry := x.period(due)
	if entry.inFlight {
		return true
	}
	return autopay != nil &&
		autopay.Status == model.SubscriptionStatusActive &&
		!dateOf(autopay.BillingAnchor, time.UTC).After(due) &&
		!entry.autopay
}

// openPeriod returns the earliest period that is not fully paid, searching
// back at most arrearsMonths before the current period.
func (x ledgerIndex) openPeriod(lease *model.Lease, today time.Time) time.Time {
	first := firstDue(lease)

	due := calendarDue(lease, today)
	for range arrearsMonths {
		prev := prevMonthDue(lease, due)
		if prev.Before(first) {
			break
		}
		due = prev
	}

	for range maxPrepaidPeriods {
		if !x.settled(lease, due) {
			return due
		}
		due = nextMonthDue(lease, due)
	}
	return due
}

// OpenPeriodDue returns the due date new payments are credited to: the
// earliest unpaid period due on or before today, or the first unpaid period
// after today when nothing is outstanding.
func OpenPeriodDue(lease *model.Lease, history []model.RentPayment, today time.Time) time.Time {
	return indexLedger(history).openPeriod(lease, today)
}

// NextBillingDue returns the first due date strictly after today, used to
// anchor autopay so the current period is never charged twice.
func NextBillingDue(lease *model.Lease, today time.Time) time.Time {
	due := calendarDue(lease, today)
	if !due.After(today) {
		due = nextMonthDue(lease, due)
	}
	return due
}

// PaymentIdempotencyKey derives the ledger key of a one-time payment:
// rent:<lease>:<caller key>, or rent:<lease>:<day>:<amount> when the caller
// sent no key.
func PaymentIdempotencyKey(leaseID string, today time.Time, callerKey string, amountCents int64) string {
	if callerKey != "" {
		return fmt.Sprintf("rent:%s:%s", leaseID, callerKey)
	}
	return fmt.Sprintf("rent:%s:%s:%d", leaseID, today.Format(time.DateOnly), amountCents)
}

// AutopayChargeKey derives the ledger key of a charge billed by an autopay
// subscription.
func AutopayChargeKey(leaseID, chargeID string) string {
	return fmt.Sprintf("autopay:%s:%s", leaseID, chargeID)
}

// autopayPeriod returns the due date closest to the day a subscription
// charge was billed.
func autopayPeriod(lease *model.Lease, billed time.Time) time.Time {
	day := dateOf(billed, time.UTC)
	due := dueDateIn(lease, day.Year(), day.Month())
	switch gap := daysBetween(day, due); {
	case gap > 15:
		due = prevMonthDue(lease, due)
	case gap < -15:
		due = nextMonthDue(lease, due)
	}
	return due
}

// SubscriptionIdempotencyKey derives the key of an autopay enrollment. The
// enrollment number keeps a re-enrollment after a cancellation from replaying
// the canceled subscription.
func SubscriptionIdempotencyKey(leaseID string, anchor time.Time, enrollment int) string {
	return fmt.Sprintf("autopay:%s:%s:%d", leaseID, anchor.Format(time.DateOnly), enrollment)
}
