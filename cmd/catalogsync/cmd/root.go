package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/catalogsync/backend/config"
	"github.com/catalogsync/backend/internal/infrastructure/logging"
)

var (
	cfg      *config.Config
	logger   *zap.Logger
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "catalogsync",
	Short: "Sync an external product catalog into the store",
	Long: `catalogsync pulls the DummyJSON product catalog page by page, reconciles
each batch against the destination store by external id and handle, and
writes creates and updates with retry.

Configuration is read from config.yaml, .env and CATALOGSYNC_* variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		logger = logging.NewLogger(cfg.Log.Level)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}
