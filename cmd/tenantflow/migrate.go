package main

import (
	"context"
	"fmt"

	"github.com/deppfellow/tenantflow/internal/database"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations to the latest version",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if err := database.Migrate(ctx, &rt.logger, rt.cfg); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			return nil
		},
	}
}
