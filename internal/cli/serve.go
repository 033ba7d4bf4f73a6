package cli

import (
	"github.com/spf13/cobra"

	"github.com/zoravur/dashboard-sync/internal/app"
	"github.com/zoravur/dashboard-sync/internal/config"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		addr   string
		mode   string
		resync bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the live sync server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			if mode != "" {
				cfg.Stream.Mode = mode
			}
			if cmd.Flags().Changed("resync") {
				cfg.Resync = resync
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			srv, err := app.NewServer(cmd.Context(), cfg, rootOpts.Log)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&mode, "stream", "", "change stream transport ("+config.ModeReplication+"|"+config.ModeNotify+")")
	cmd.Flags().BoolVar(&resync, "resync", false, "reload snapshots when the change stream recovers")
	return cmd
}
