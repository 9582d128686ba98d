package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var down, status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if down && status {
				return fmt.Errorf("--down and --status are mutually exclusive")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			log := newLogger(cfg)
			defer log.Close()

			db, err := openDatabase(cmd.Context(), cfg.Database, log.Logger)
			if err != nil {
				return err
			}
			defer db.Close()

			switch {
			case status:
				return db.MigrationStatus()
			case down:
				if err := db.MigrateDown(); err != nil {
					return err
				}
				log.Info().Msg("rolled back one migration")
			default:
				if err := db.Migrate(); err != nil {
					return err
				}
				log.Info().Msg("database is up to date")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "Roll back the most recent migration")
	cmd.Flags().BoolVar(&status, "status", false, "Print the migration status")
	return cmd
}
