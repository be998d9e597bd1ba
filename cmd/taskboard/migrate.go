package main

import (
	"fmt"

	"github.com/spf13/cobra"

	pgInfra "github.com/fastygo/taskboard/internal/infrastructure/postgres"
)

func migrateCmd() *cobra.Command {
	var (
		down        int
		showVersion bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply the SQL migrations under MIGRATIONS_PATH to DATABASE_URL.

Examples:
  taskboard migrate
  taskboard migrate --down 1
  taskboard migrate --version`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()

			mg, err := pgInfra.NewMigrator(cfg, log)
			if err != nil {
				return fmt.Errorf("open migrations: %w", err)
			}
			defer mg.Close()

			switch {
			case showVersion:
				version, dirty, ok, err := mg.Version()
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", version, dirty)
				return nil
			case down > 0:
				return mg.Down(down)
			default:
				return mg.Up()
			}
		},
	}

	cmd.Flags().IntVar(&down, "down", 0, "roll back this many migrations")
	cmd.Flags().BoolVar(&showVersion, "version", false, "print the current schema version")

	return cmd
}
