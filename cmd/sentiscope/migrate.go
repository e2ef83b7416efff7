package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/sentiscope/internal/store"
)

func migrateCMD(load loader) *cobra.Command {
	var opts store.MigrateOptions
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if !cfg.Storage.Postgres.Enabled() {
				return fmt.Errorf("postgres not configured (storage.postgres.url or host)")
			}
			if err := store.Migrate(cfg.Storage.Postgres.DSN(), opts); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
	migrate.Flags().StringVar(&opts.Dir, "dir", "", "migrations source, e.g. file://migrations (default: embedded)")
	migrate.Flags().StringVar(&opts.Direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&opts.Steps, "steps", 0, "number of steps (0 = all)")
	return migrate
}
