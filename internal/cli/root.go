package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zoravur/dashboard-sync/internal/config"
	"github.com/zoravur/dashboard-sync/internal/logutil"
)

// RootOptions holds global flags and what PersistentPreRunE derives from them.
type RootOptions struct {
	ConfigPath string
	LogLevel   string

	Config config.Config
	Log    *zap.Logger
}

// NewRootCommand creates the dashboardd command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dashboardd",
		Short: "dashboardd - live users and todos over PostgreSQL change streams",
		Long: `dashboardd keeps live copies of the users and todos tables, applies
every committed change from the database's change stream and serves them
over HTTP and websocket.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			if opts.LogLevel != "" {
				cfg.Log.Level = opts.LogLevel
			}
			log, err := logutil.New(cfg.Log.Level, cfg.Log.Development)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			zap.ReplaceGlobals(log)
			opts.Config = cfg
			opts.Log = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.Log != nil {
				_ = opts.Log.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))

	return cmd
}
