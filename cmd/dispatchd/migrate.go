package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/assaka/daino-sub010/engine"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, eng *engine.Engine) error {
				if err := eng.Dispatcher().Store().Migrate(ctx); err != nil {
					return err
				}
				a.logger.Info("migrations applied", slog.String("driver", a.driver))
				return nil
			})
		},
	}
}
