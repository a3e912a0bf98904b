package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/deppfellow/tenantflow/internal/model"
	"github.com/deppfellow/tenantflow/internal/server"
	"github.com/jackc/pgx/v5"
)

// NotificationRepository records queued notifications.
type NotificationRepository struct {
	server *server.Server
}

func NewNotificationRepository(s *server.Server) *NotificationRepository {
	return &NotificationRepository{server: s}
}

// ReminderExists reports whether a reminder for the lease and threshold was
// already recorded on day.
func (r *NotificationRepository) ReminderExists(ctx context.Context, leaseID string, threshold int, day time.Time) (bool, error) {
	stmt := `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE lease_id = @lease_id
				AND kind = @kind
				AND threshold = @threshold
				AND sent_on = @sent_on
		)
	`

	var exists bool
	err := r.server.DB.Pool.QueryRow(ctx, stmt, pgx.NamedArgs{
		"lease_id":  leaseID,
		"kind":      string(model.NotificationRentReminder),
		"threshold": threshold,
		"sent_on":   day,
	}).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check reminder for lease_id=%s threshold=%d: %w", leaseID, threshold, err)
	}

	return exists, nil
}

// CreateNotification inserts a notification row. A duplicate reminder
// surfaces as a unique violation.
func (r *NotificationRepository) CreateNotification(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	stmt := `
		INSERT INTO notifications (user_id, lease_id, kind, threshold, sent_on, subject, task_id)
		VALUES (@user_id, @lease_id, @kind, @threshold, @sent_on, @subject, @task_id)
		RETURNING id, user_id, lease_id, kind, threshold, sent_on, subject, task_id, created_at
	`

	rows, err := r.server.DB.Pool.Query(ctx, stmt, pgx.NamedArgs{
		"user_id":   n.UserID,
		"lease_id":  n.LeaseID,
		"kind":      string(n.Kind),
		"threshold": n.Threshold,
		"sent_on":   n.SentOn,
		"subject":   n.Subject,
		"task_id":   n.TaskID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute create notification query for user_id=%s: %w", n.UserID, err)
	}

	saved, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Notification])
	if err != nil {
		return nil, fmt.Errorf("failed to collect row from table:notifications: user_id=%s: %w", n.UserID, err)
	}

	return &saved, nil
}
