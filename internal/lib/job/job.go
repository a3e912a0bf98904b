// Package job provides background job processing using Asynq.
//
// Asynq is a Redis-backed job queue:
//   - You enqueue tasks (producer) using asynq.Client.
//   - A server runs workers that process those tasks (consumer) using asynq.Server.
package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/deppfellow/tenantflow/internal/config"
	"github.com/deppfellow/tenantflow/internal/lib/email"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// ErrAlreadyQueued is returned when a task with the same TaskID is already
// queued or was processed within its retention window.
var ErrAlreadyQueued = errors.New("task already queued")

// Mailer sends the notification emails produced by job handlers.
type Mailer interface {
	SendRentReminder(ctx context.Context, to string, data email.RentReminder) (string, error)
	SendPaymentReceipt(ctx context.Context, to string, data email.PaymentReceipt) (string, error)
}

// JobService holds the Asynq client (enqueue) and server (worker execution).
type JobService struct {
	// Client is used to enqueue tasks into Redis.
	Client *asynq.Client

	server *asynq.Server
	mailer Mailer
	logger *zerolog.Logger
}

// NewJobService creates a JobService configured to use Redis from cfg.
//
// Queue weights give "critical" tasks (receipts) the larger worker share.
func NewJobService(logger *zerolog.Logger, cfg *config.Config) *JobService {
	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Address}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				QueueCritical: 6,
				QueueDefault:  3,
				QueueLow:      1,
			},
			Logger:   newAsynqLogger(logger),
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Error().
					Err(err).
					Str("type", task.Type()).
					Int("retried", retried).
					Int("max_retry", maxRetry).
					Msg("task failed")
			}),
		},
	)

	return &JobService{
		Client: client,
		server: server,
		logger: logger,
	}
}

// InitHandlers sets the dependencies required by job handlers.
func (j *JobService) InitHandlers(cfg *config.Config, logger *zerolog.Logger) {
	j.mailer = email.NewClient(cfg, logger)
}

// Mux routes task types to their handlers.
func (j *JobService) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskRentReminder, j.handleRentReminderTask)
	mux.HandleFunc(TaskPaymentReceipt, j.handlePaymentReceiptTask)
	return mux
}

// Start starts the background worker server. asynq.Server.Start runs the
// workers in background goroutines and returns immediately.
func (j *JobService) Start() error {
	if j.mailer == nil {
		return errors.New("job handlers not initialized")
	}

	j.logger.Info().Msg("Starting background job server")

	if err := j.server.Start(j.Mux()); err != nil {
		return fmt.Errorf("failed to start job server: %w", err)
	}

	return nil
}

// Stop gracefully stops the job server and closes client resources.
func (j *JobService) Stop() {
	j.logger.Info().Msg("Stopping background job server")
	j.server.Shutdown()
	if err := j.Client.Close(); err != nil {
		j.logger.Warn().Err(err).Msg("failed to close job client")
	}
}

func (j *JobService) enqueue(ctx context.Context, task *asynq.Task) (string, error) {
	info, err := j.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return "", ErrAlreadyQueued
	}
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s task: %w", task.Type(), err)
	}

	j.logger.Debug().
		Str("type", task.Type()).
		Str("task_id", info.ID).
		Str("queue", info.Queue).
		Msg("task enqueued")

	return info.ID, nil
}

// asynqLogger adapts zerolog to asynq.Logger.
type asynqLogger struct {
	logger zerolog.Logger
}

func newAsynqLogger(logger *zerolog.Logger) *asynqLogger {
	return &asynqLogger{logger: logger.With().Str("component", "asynq").Logger()}
}

func (l *asynqLogger) Debug(args ...any) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...any) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...any) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
