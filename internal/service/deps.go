package service

import (
	"context"
	"time"

	"github.com/deppfellow/tenantflow/internal/lib/job"
	"github.com/deppfellow/tenantflow/internal/lib/lock"
	"github.com/deppfellow/tenantflow/internal/model"
	"github.com/deppfellow/tenantflow/internal/repository"
)

// LeaseStore reads leases and their parties.
type LeaseStore interface {
	GetLease(ctx context.Context, leaseID string) (*model.Lease, error)
	GetProperty(ctx context.Context, propertyID string) (*model.Property, error)
	GetUser(ctx context.Context, userID string) (*model.User, error)
	ListActiveLeases(ctx context.Context) ([]model.ActiveLease, error)
}

// PaymentStore persists the ledger.
type PaymentStore interface {
	GetPayment(ctx context.Context, paymentID string) (*model.RentPayment, error)
	GetLatestByKey(ctx context.Context, key string) (*model.RentPayment, error)
	UpsertPayment(ctx context.Context, p *model.RentPayment) (*model.RentPayment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID string, update repository.StatusUpdate) (*model.RentPayment, error)
	ListByLease(ctx context.Context, leaseID string) ([]model.RentPayment, error)
	ListInFlightBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.RentPayment, error)
}

// SubscriptionStore persists autopay subscriptions.
type SubscriptionStore interface {
	GetLiveByLease(ctx context.Context, leaseID string) (*model.RentSubscription, error)
	CountByLease(ctx context.Context, leaseID string) (int, error)
	CreateSubscription(ctx context.Context, s *model.RentSubscription) (*model.RentSubscription, error)
	MarkCanceled(ctx context.Context, subscriptionID string, at time.Time) (*model.RentSubscription, error)
	ListLive(ctx context.Context) ([]model.RentSubscription, error)
}

// NotificationStore records queued notifications.
type NotificationStore interface {
	ReminderExists(ctx context.Context, leaseID string, threshold int, day time.Time) (bool, error)
	CreateNotification(ctx context.Context, n *model.Notification) (*model.Notification, error)
}

// Enqueuer queues notification jobs.
type Enqueuer interface {
	EnqueueRentReminder(ctx context.Context, p job.RentReminderPayload) (string, error)
	EnqueuePaymentReceipt(ctx context.Context, p job.PaymentReceiptPayload) (string, error)
}

// Unlocker releases a held lock.
type Unlocker interface {
	Release(ctx context.Context) error
}

// Locker acquires named, expiring locks without waiting.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Unlocker, error)
}

// redisLocker adapts *lock.Locker to Locker.
type redisLocker struct {
	locker *lock.Locker
}

func (r redisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Unlocker, error) {
	l, err := r.locker.Acquire(ctx, name, ttl)
	if err != nil {
		return nil, err
	}
	return l, nil
}
