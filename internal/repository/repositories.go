package repository

import (
	"github.com/deppfellow/tenantflow/internal/server"
)

// Repositories is a container for all repository instances.
type Repositories struct {
	Lease        *LeaseRepository
	Payment      *PaymentRepository
	Subscription *SubscriptionRepository
	Notification *NotificationRepository
}

// NewRepositories constructs the repository container on top of the
// server's connection pool.
func NewRepositories(s *server.Server) *Repositories {
	return &Repositories{
		Lease:        NewLeaseRepository(s),
		Payment:      NewPaymentRepository(s),
		Subscription: NewSubscriptionRepository(s),
		Notification: NewNotificationRepository(s),
	}
}
