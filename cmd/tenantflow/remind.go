package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/deppfellow/tenantflow/internal/lib/utils"
	"github.com/deppfellow/tenantflow/internal/repository"
	"github.com/deppfellow/tenantflow/internal/server"
	"github.com/deppfellow/tenantflow/internal/service"
	"github.com/spf13/cobra"
)

func remindCmd() *cobra.Command {
	var reconcile bool

	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Run one rent reminder sweep now and print its result",
		Long: `Run one rent reminder sweep outside the schedule.

Reminders already queued today are not sent again, so running this next to
a serving instance is safe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runRemind(ctx, cmd, reconcile)
		},
	}

	cmd.Flags().BoolVar(&reconcile, "reconcile", false, "also reconcile in-flight payments with the processor")

	return cmd
}

func runRemind(ctx context.Context, cmd *cobra.Command, reconcile bool) (err error) {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	srv, err := server.New(rt.cfg, &rt.logger, rt.loggerService)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	defer func() {
		err = errors.Join(err, srv.Shutdown(ctx))
	}()

	services, err := service.NewService(srv, repository.NewRepositories(srv))
	if err != nil {
		return fmt.Errorf("could not create services: %w", err)
	}

	out := map[string]any{}

	sweep, err := services.Reminder.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("reminder sweep failed: %w", err)
	}
	out["reminders"] = sweep

	if reconcile {
		result, err := services.Status.ReconcilePending(ctx)
		if err != nil {
			return fmt.Errorf("reconciliation failed: %w", err)
		}
		out["reconciliation"] = result
	}

	return utils.PrintJSON(cmd.OutOrStdout(), out)
}
