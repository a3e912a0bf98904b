package service

import (
	"github.com/deppfellow/tenantflow/internal/lib/job"
	"github.com/deppfellow/tenantflow/internal/lib/lock"
	"github.com/deppfellow/tenantflow/internal/lib/payments"
	"github.com/deppfellow/tenantflow/internal/repository"
	"github.com/deppfellow/tenantflow/internal/server"
)

type Services struct {
	Auth     *AuthService
	Job      *job.JobService
	Payment  *PaymentService
	Status   *StatusService
	Reminder *ReminderService
	Export   *ExportService
}

func NewService(s *server.Server, repos *repository.Repositories) (*Services, error) {
	authService := NewAuthService(s)

	billing := s.Config.Billing
	processor := payments.NewStripeProcessor(s.Config.Stripe.SecretKey, s.Logger)
	locker := redisLocker{locker: lock.NewLocker(s.Redis)}
	resolver := NewContextResolver(repos.Lease)

	return &Services{
		Job:  s.Job,
		Auth: authService,
		Payment: NewPaymentService(
			resolver, repos.Payment, repos.Subscription, processor, s.Job, locker, billing, s.Logger,
		),
		Status: NewStatusService(
			resolver, repos.Payment, repos.Subscription, processor, s.Job, billing, s.Logger,
		),
		Reminder: NewReminderService(
			repos.Lease, repos.Payment, repos.Subscription, repos.Notification, s.Job, locker, billing, s.Logger,
		),
		Export: NewExportService(resolver, repos.Payment),
	}, nil
}
