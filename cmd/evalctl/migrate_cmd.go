package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/evaluation-service/internal/persistence"
)

func migrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if dir != "" {
				cfg.Postgres.MigrationsDir = dir
			}
			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := pg.Ping(cmd.Context()); err != nil {
				return err
			}
			if err := persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				return err
			}
			fmt.Println("migrations applied from", cfg.Postgres.MigrationsDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory (defaults to POSTGRES_MIGRATIONS_DIR)")
	return cmd
}
