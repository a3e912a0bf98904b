// Command tenantflow runs the rent payments API, its migrations and its
// background sweeps.
package main

import (
	"fmt"
	"os"

	"github.com/deppfellow/tenantflow/internal/config"
	"github.com/deppfellow/tenantflow/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "tenantflow",
		Short:         "Tenantflow rent payments backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(remindCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime is what every command needs before touching a dependency.
type runtime struct {
	cfg           *config.Config
	loggerService *logger.LoggerService
	logger        zerolog.Logger
}

func loadRuntime() (*runtime, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	loggerService := logger.NewLoggerService(cfg.Observability)

	return &runtime{
		cfg:           cfg,
		loggerService: loggerService,
		logger:        logger.NewLogger(cfg.Observability, loggerService),
	}, nil
}

func (r *runtime) close() {
	r.loggerService.Shutdown()
}
