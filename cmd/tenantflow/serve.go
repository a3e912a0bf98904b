package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deppfellow/tenantflow/internal/database"
	"github.com/deppfellow/tenantflow/internal/handler"
	"github.com/deppfellow/tenantflow/internal/repository"
	"github.com/deppfellow/tenantflow/internal/router"
	"github.com/deppfellow/tenantflow/internal/server"
	"github.com/deppfellow/tenantflow/internal/service"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the job workers and the scheduled sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before starting")

	return cmd
}

func runServe(parent context.Context, migrate bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	log := rt.logger

	if migrate {
		if err := database.Migrate(ctx, &log, rt.cfg); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	srv, err := server.New(rt.cfg, &log, rt.loggerService)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	repos := repository.NewRepositories(srv)

	services, err := service.NewService(srv, repos)
	if err != nil {
		return fmt.Errorf("could not create services: %w", err)
	}

	if err := registerSweeps(srv, services); err != nil {
		return err
	}

	handlers := handler.NewHandlers(srv, services)
	srv.SetupHTTPServer(router.NewRouter(srv, handlers))

	if err := srv.StartWorkers(); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("server stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server exited properly")
	return nil
}

// registerSweeps schedules the reminder and reconciliation sweeps.
func registerSweeps(srv *server.Server, services *service.Services) error {
	billing := srv.Config.Billing

	if err := srv.Scheduler.Add("rent_reminders", billing.ReminderSchedule, func(ctx context.Context) error {
		_, err := services.Reminder.Sweep(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("failed to schedule reminders: %w", err)
	}

	if err := srv.Scheduler.Add("payment_reconciliation", billing.ReconcileSchedule, func(ctx context.Context) error {
		_, err := services.Status.ReconcilePending(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("failed to schedule reconciliation: %w", err)
	}

	return nil
}
