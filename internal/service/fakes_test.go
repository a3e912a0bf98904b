package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/deppfellow/tenantflow/internal/config"
	"github.com/deppfellow/tenantflow/internal/errs"
	"github.com/deppfellow/tenantflow/internal/lib/job"
	"github.com/deppfellow/tenantflow/internal/lib/lock"
	"github.com/deppfellow/tenantflow/internal/lib/payments"
	"github.com/deppfellow/tenantflow/internal/model"
	"github.com/deppfellow/tenantflow/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	tenantID   = "user_tenant"
	ownerID    = "user_owner"
	strangerID = "user_stranger"
	leaseID    = "lease-1"
	propertyID = "property-1"
)

// fixedNow is Wednesday 2026-03-04, three days after the test lease's first
// due date.
var fixedNow = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func testBilling() *config.BillingConfig {
	b := config.DefaultBillingConfig()
	b.LedgerWriteAttempts = 3
	return b
}

func testLease() model.Lease {
	return model.Lease{
		ID:              leaseID,
		PropertyID:      propertyID,
		TenantID:        tenantID,
		Unit:            "4B",
		RentAmountCents: 125000,
		Currency:        "usd",
		DueDay:          1,
		GracePeriodDays: 5,
		StartDate:       date(2026, 3, 1),
		Status:          model.LeaseStatusActive,
	}
}

// ---- lease store ----

type fakeLeaseStore struct {
	leases     map[string]model.Lease
	properties map[string]model.Property
	users      map[string]model.User
	active     []model.ActiveLease
}

func newFakeLeaseStore() *fakeLeaseStore {
	return &fakeLeaseStore{
		leases: map[string]model.Lease{leaseID: testLease()},
		properties: map[string]model.Property{
			propertyID: {ID: propertyID, OwnerID: ownerID, Name: "Maple Court"},
		},
		users: map[string]model.User{
			tenantID: {
				ID:                       tenantID,
				Email:                    "tenant@example.com",
				FirstName:                "Ada",
				Role:                     model.UserRoleTenant,
				StripeCustomerID:         ptr("cus_123"),
				DefaultPaymentMethodID:   ptr("pm_card"),
				DefaultPaymentMethodType: ptr(model.PaymentMethodCard),
			},
			ownerID: {
				ID:                       ownerID,
				Email:                    "owner@example.com",
				Role:                     model.UserRoleOwner,
				PlanTier:                 model.PlanStarter,
				StripeConnectedAccountID: ptr("acct_123"),
			},
		},
	}
}

func (f *fakeLeaseStore) GetLease(_ context.Context, id string) (*model.Lease, error) {
	l, ok := f.leases[id]
	if !ok {
		return nil, fmt.Errorf("table:leases: %w", pgx.ErrNoRows)
	}
	return &l, nil
}

func (f *fakeLeaseStore) GetProperty(_ context.Context, id string) (*model.Property, error) {
	p, ok := f.properties[id]
	if !ok {
		return nil, fmt.Errorf("table:properties: %w", pgx.ErrNoRows)
	}
	return &p, nil
}

func (f *fakeLeaseStore) GetUser(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("table:users: %w", pgx.ErrNoRows)
	}
	return &u, nil
}

func (f *fakeLeaseStore) ListActiveLeases(context.Context) ([]model.ActiveLease, error) {
	return f.active, nil
}

// ---- payment store ----

type fakePaymentStore struct {
	mu       sync.Mutex
	rows     []model.RentPayment
	seq      int
	upserts  int
	upsertFn func(p *model.RentPayment) error
	updates  []repository.StatusUpdate
}

func (f *fakePaymentStore) GetPayment(_ context.Context, id string) (*model.RentPayment, error) {
	for i := range f.rows {
		if f.rows[i].ID == id {
			p := f.rows[i]
			return &p, nil
		}
	}
	return nil, fmt.Errorf("table:rent_payments: %w", pgx.ErrNoRows)
}

func (f *fakePaymentStore) GetLatestByKey(_ context.Context, key string) (*model.RentPayment, error) {
	var latest *model.RentPayment
	for i := range f.rows {
		if f.rows[i].IdempotencyKey == key && (latest == nil || f.rows[i].Attempt > latest.Attempt) {
			p := f.rows[i]
			latest = &p
		}
	}
	return latest, nil
}

func (f *fakePaymentStore) UpsertPayment(_ context.Context, p *model.RentPayment) (*model.RentPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.upserts++
	if f.upsertFn != nil {
		if err := f.upsertFn(p); err != nil {
			return nil, err
		}
	}

	for i := range f.rows {
		if f.rows[i].IdempotencyKey == p.IdempotencyKey && f.rows[i].Attempt == p.Attempt {
			id := f.rows[i].ID
			f.rows[i] = *p
			f.rows[i].ID = id
			saved := f.rows[i]
			return &saved, nil
		}
	}

	f.seq++
	saved := *p
	saved.ID = fmt.Sprintf("pay-%d", f.seq)
	saved.CreatedAt = fixedNow
	f.rows = append(f.rows, saved)
	return &saved, nil
}

func (f *fakePaymentStore) UpdatePaymentStatus(_ context.Context, id string, u repository.StatusUpdate) (*model.RentPayment, error) {
	f.updates = append(f.updates, u)
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].Status = u.Status
			f.rows[i].FailureCode = u.FailureCode
			f.rows[i].FailureMessage = u.FailureMessage
			if u.PaidAt != nil {
				f.rows[i].PaidAt = u.PaidAt
			}
			p := f.rows[i]
			return &p, nil
		}
	}
	return nil, fmt.Errorf("table:rent_payments: %w", pgx.ErrNoRows)
}

func (f *fakePaymentStore) ListByLease(_ context.Context, id string) ([]model.RentPayment, error) {
	var out []model.RentPayment
	for _, p := range f.rows {
		if p.LeaseID == id {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePaymentStore) ListInFlightBefore(_ context.Context, cutoff time.Time, limit int) ([]model.RentPayment, error) {
	var out []model.RentPayment
	for _, p := range f.rows {
		if p.Status.InFlight() && p.ProcessorPaymentID != nil && p.UpdatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

// ---- subscription store ----

type fakeSubscriptionStore struct {
	rows     []model.RentSubscription
	createFn func(*model.RentSubscription) error
	creates  int
}

func (f *fakeSubscriptionStore) GetLiveByLease(_ context.Context, id string) (*model.RentSubscription, error) {
	for i := range f.rows {
		if f.rows[i].LeaseID == id && f.rows[i].Status.Live() {
			s := f.rows[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeSubscriptionStore) CountByLease(_ context.Context, id string) (int, error) {
	n := 0
	for _, s := range f.rows {
		if s.LeaseID == id {
			n++
		}
	}
	return n, nil
}

func (f *fakeSubscriptionStore) CreateSubscription(_ context.Context, s *model.RentSubscription) (*model.RentSubscription, error) {
	f.creates++
	if f.createFn != nil {
		if err := f.createFn(s); err != nil {
			return nil, err
		}
	}
	saved := *s
	saved.ID = fmt.Sprintf("sub-%d", len(f.rows)+1)
	f.rows = append(f.rows, saved)
	return &saved, nil
}

func (f *fakeSubscriptionStore) ListLive(context.Context) ([]model.RentSubscription, error) {
	var out []model.RentSubscription
	for _, s := range f.rows {
		if s.Status.Live() && s.ProcessorSubscriptionID != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubscriptionStore) MarkCanceled(_ context.Context, id string, at time.Time) (*model.RentSubscription, error) {
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].Status = model.SubscriptionStatusCanceled
			f.rows[i].CanceledAt = &at
			s := f.rows[i]
			return &s, nil
		}
	}
	return nil, fmt.Errorf("table:rent_subscriptions: %w", pgx.ErrNoRows)
}

// ---- notification store ----

type fakeNotificationStore struct {
	rows []model.Notification
}

func (f *fakeNotificationStore) ReminderExists(_ context.Context, id string, threshold int, day time.Time) (bool, error) {
	for _, n := range f.rows {
		if n.LeaseID != nil && *n.LeaseID == id && n.Threshold != nil && *n.Threshold == threshold && sameDate(n.SentOn, day) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeNotificationStore) CreateNotification(_ context.Context, n *model.Notification) (*model.Notification, error) {
	saved := *n
	saved.ID = fmt.Sprintf("note-%d", len(f.rows)+1)
	f.rows = append(f.rows, saved)
	return &saved, nil
}

// ---- enqueuer ----

type fakeEnqueuer struct {
	reminders  []job.RentReminderPayload
	receipts   []job.PaymentReceiptPayload
	reminderFn func(job.RentReminderPayload) error
}

func (f *fakeEnqueuer) EnqueueRentReminder(_ context.Context, p job.RentReminderPayload) (string, error) {
	if f.reminderFn != nil {
		if err := f.reminderFn(p); err != nil {
			return "", err
		}
	}
	f.reminders = append(f.reminders, p)
	day, _ := time.Parse(time.DateOnly, p.SentOn)
	return job.ReminderTaskID(p.LeaseID, p.Threshold, day), nil
}

func (f *fakeEnqueuer) EnqueuePaymentReceipt(_ context.Context, p job.PaymentReceiptPayload) (string, error) {
	f.receipts = append(f.receipts, p)
	return "receipt:" + p.PaymentID, nil
}

// ---- locker ----

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
}

type fakeLock struct {
	locker *fakeLocker
	name   string
}

func (l *fakeLock) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	delete(l.locker.held, l.name)
	return nil
}

func (f *fakeLocker) Acquire(_ context.Context, name string, _ time.Duration) (Unlocker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held == nil {
		f.held = map[string]bool{}
	}
	if f.held[name] {
		return nil, lock.ErrHeld
	}
	f.held[name] = true
	f.acquired = append(f.acquired, name)
	return &fakeLock{locker: f, name: name}, nil
}

// ---- processor ----

type fakeProcessor struct {
	charges       []payments.ChargeRequest
	subscriptions []payments.SubscriptionRequest
	canceled      []string
	subCanceled   []string

	chargeResult *payments.Charge
	chargeErr    error
	getResult    *payments.Charge
	getErr       error
	cancelErr    error
	subErr       error

	// invoices are the subscription charges by processor subscription id.
	invoices   map[string][]payments.Charge
	invoiceErr error
}

func (f *fakeProcessor) CreateCharge(_ context.Context, req payments.ChargeRequest) (*payments.Charge, error) {
	f.charges = append(f.charges, req)
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	if f.chargeResult != nil {
		c := *f.chargeResult
		return &c, nil
	}
	return &payments.Charge{ID: "pi_1", Status: model.PaymentStatusSucceeded, AmountCents: req.AmountCents}, nil
}

func (f *fakeProcessor) GetCharge(_ context.Context, id string) (*payments.Charge, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	c := *f.getResult
	c.ID = id
	return &c, nil
}

func (f *fakeProcessor) CancelCharge(_ context.Context, id string, _ string) (*payments.Charge, error) {
	f.canceled = append(f.canceled, id)
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &payments.Charge{ID: id, Status: model.PaymentStatusRefunded}, nil
}

func (f *fakeProcessor) CreateSubscription(_ context.Context, req payments.SubscriptionRequest) (*payments.Subscription, error) {
	f.subscriptions = append(f.subscriptions, req)
	if f.subErr != nil {
		return nil, f.subErr
	}
	return &payments.Subscription{ID: "sub_remote_1", Status: model.SubscriptionStatusActive}, nil
}

func (f *fakeProcessor) GetSubscription(_ context.Context, id string) (*payments.Subscription, error) {
	return &payments.Subscription{ID: id, Status: model.SubscriptionStatusActive}, nil
}

func (f *fakeProcessor) CancelSubscription(_ context.Context, id string) (*payments.Subscription, error) {
	f.subCanceled = append(f.subCanceled, id)
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &payments.Subscription{ID: id, Status: model.SubscriptionStatusCanceled}, nil
}

func (f *fakeProcessor) ListSubscriptionCharges(_ context.Context, id string, _ time.Time) ([]payments.Charge, error) {
	if f.invoiceErr != nil {
		return nil, f.invoiceErr
	}
	return f.invoices[id], nil
}

func (f *fakeProcessor) GetSubscriptionCharge(_ context.Context, id string) (*payments.Charge, error) {
	if f.invoiceErr != nil {
		return nil, f.invoiceErr
	}
	for _, charges := range f.invoices {
		for _, c := range charges {
			if c.ID == id {
				return &c, nil
			}
		}
	}
	return nil, payments.ErrNotFound
}

// ---- harness ----

type paymentHarness struct {
	leases        *fakeLeaseStore
	payments      *fakePaymentStore
	subscriptions *fakeSubscriptionStore
	processor     *fakeProcessor
	enqueuer      *fakeEnqueuer
	locker        *fakeLocker
	svc           *PaymentService
}

func newPaymentHarness(t *testing.T) *paymentHarness {
	t.Helper()

	h := &paymentHarness{
		leases:        newFakeLeaseStore(),
		payments:      &fakePaymentStore{},
		subscriptions: &fakeSubscriptionStore{},
		processor:     &fakeProcessor{},
		enqueuer:      &fakeEnqueuer{},
		locker:        &fakeLocker{},
	}

	h.svc = NewPaymentService(
		NewContextResolver(h.leases),
		h.payments,
		h.subscriptions,
		h.processor,
		h.enqueuer,
		h.locker,
		testBilling(),
		testLogger(),
	)
	h.svc.now = func() time.Time { return fixedNow }
	h.svc.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	return h
}

func requireHTTPError(t *testing.T, err error, status int) *errs.HTTPError {
	t.Helper()

	var httpErr *errs.HTTPError
	require.True(t, errors.As(err, &httpErr), "expected *errs.HTTPError, got %v", err)
	require.Equal(t, status, httpErr.Status, httpErr.Message)
	return httpErr
}
