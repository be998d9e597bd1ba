package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	pgInfra "github.com/fastygo/taskboard/internal/infrastructure/postgres"
	"github.com/fastygo/taskboard/repository/postgres"
)

func confirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <email>",
		Short: "Mark a registered account as confirmed",
		Long: `Confirm an account that signed up while AUTH_REQUIRE_CONFIRMATION is on.
This stands in for the confirmation link a mail provider would deliver.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Context.RequestTimeout)
			defer cancel()

			pool, err := pgInfra.NewPool(ctx, cfg.Database, log)
			if err != nil {
				return fmt.Errorf("postgres connection failed: %w", err)
			}
			defer pgInfra.Close(pool, log)

			if err := postgres.NewUserRepository(pool).Confirm(ctx, args[0]); err != nil {
				return fmt.Errorf("confirm %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "confirmed %s\n", args[0])
			return nil
		},
	}
}
