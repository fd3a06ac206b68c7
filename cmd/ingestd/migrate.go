package main

import (
	"context"

	"github.com/spf13/cobra"
)

// newMigrateCmd applies every owning package's InitSchema and exits,
// for deployments that run schema setup as a separate step ahead of
// serve/worker (e.g. a Kubernetes init container).
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the relational/session/queue schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			d, err := buildDeps(ctx, logger)
			if err != nil {
				return err
			}
			defer d.close()

			if err := d.initSchema(ctx); err != nil {
				return err
			}
			logger.Info("schema migration complete")
			return nil
		},
	}
}
