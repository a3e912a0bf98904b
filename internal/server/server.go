// Package server defines the Server container that composes the app's main
// dependencies and owns their lifecycle:
//   - configuration
//   - logger + optional New Relic service wrapper
//   - database pool
//   - redis client
//   - background job worker server (asynq) and the cron scheduler
//   - http.Server
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/deppfellow/tenantflow/internal/config"
	"github.com/deppfellow/tenantflow/internal/database"
	"github.com/deppfellow/tenantflow/internal/lib/job"
	"github.com/deppfellow/tenantflow/internal/scheduler"
	"github.com/newrelic/go-agent/v3/integrations/nrredis-v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	loggerPkg "github.com/deppfellow/tenantflow/internal/logger"
)

// Server is the application container that holds shared resources. It is
// not the HTTP server itself.
type Server struct {
	Config        *config.Config
	Logger        *zerolog.Logger
	LoggerService *loggerPkg.LoggerService

	DB    *database.Database
	Redis *redis.Client

	// Job enqueues notification tasks and runs their workers.
	Job *job.JobService

	// Scheduler runs the reminder and reconciliation sweeps. Jobs are
	// registered by the caller once services exist.
	Scheduler *scheduler.Scheduler

	httpServer     *http.Server
	workersStarted bool
}

// New constructs a Server and initializes core dependencies. Nothing is
// started: call StartWorkers for background processing and
// SetupHTTPServer + Start for the API.
//
// A Redis ping failure does not block startup; idempotency locks and job
// enqueues report it per request instead.
func New(cfg *config.Config, logger *zerolog.Logger, loggerService *loggerPkg.LoggerService) (*Server, error) {
	db, err := database.New(cfg, logger, loggerService)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Address,
	})

	if loggerService != nil && loggerService.GetApplication() != nil {
		redisClient.AddHook(nrredis.NewHook(redisClient.Options()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error().Err(err).Msg("Failed to connect to Redis, continuing without Redis")
	}

	jobService := job.NewJobService(logger, cfg)
	jobService.InitHandlers(cfg, logger)

	return &Server{
		Config:        cfg,
		Logger:        logger,
		LoggerService: loggerService,
		DB:            db,
		Redis:         redisClient,
		Job:           jobService,
		Scheduler:     scheduler.New(cfg.Billing.Location(), logger),
	}, nil
}

// StartWorkers starts the asynq workers and the cron scheduler.
func (s *Server) StartWorkers() error {
	if err := s.Job.Start(); err != nil {
		return err
	}
	s.Scheduler.Start()
	s.workersStarted = true
	return nil
}

// SetupHTTPServer configures the internal net/http server around handler.
// Config timeouts are in seconds.
func (s *Server) SetupHTTPServer(handler http.Handler) {
	s.httpServer = &http.Server{
		Addr:         ":" + s.Config.Server.Port,
		Handler:      handler,
		ReadTimeout:  time.Duration(s.Config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.Config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.Config.Server.IdleTimeout) * time.Second,
	}
}

// Start runs the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	if s.httpServer == nil {
		return errors.New("HTTP server not initialized")
	}

	s.Logger.Info().
		Str("port", s.Config.Server.Port).
		Str("env", s.Config.Primary.Env).
		Msg("starting server")

	return s.httpServer.ListenAndServe()
}

// Shutdown stops the HTTP server (finishing in-flight requests until the ctx
// deadline), the scheduler and workers, then closes Redis and the database.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown HTTP server: %w", err))
		}
	}

	if err := s.Scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	if s.workersStarted {
		s.Job.Stop()
	}

	if err := s.Redis.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close redis client: %w", err))
	}

	if err := s.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database connection: %w", err))
	}

	return errors.Join(errs...)
}
