package cli

import (
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zoravur/dashboard-sync/internal/store"
	"github.com/zoravur/dashboard-sync/migrations"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply, roll back or list schema migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			ctx := cmd.Context()
			log := rootOpts.Log

			db, err := store.Open(ctx, rootOpts.Config.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
			if err != nil {
				return fmt.Errorf("goose provider: %w", err)
			}

			switch action {
			case "up":
				results, err := provider.Up(ctx)
				for _, r := range results {
					log.Info("migrated", zap.String("source", r.Source.Path), zap.Duration("took", r.Duration))
				}
				return err
			case "down":
				r, err := provider.Down(ctx)
				if r != nil {
					log.Info("rolled back", zap.String("source", r.Source.Path))
				}
				return err
			default:
				statuses, err := provider.Status(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, s := range statuses {
					applied := "pending"
					if s.State == goose.StateApplied {
						applied = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(out, "%-40s %s\n", s.Source.Path, applied)
				}
				return nil
			}
		},
	}
	return cmd
}
