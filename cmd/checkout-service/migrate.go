package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vasiliy-maslov/marketplace-checkout/internal/db"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := db.ApplyMigrations(cfg.Postgres); err != nil {
				return err
			}
			log.Info().Str("db_name", cfg.Postgres.DBName).Msg("Migrations applied")
			return nil
		},
	}
}
