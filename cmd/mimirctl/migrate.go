package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/mimir/internal/config"
	"github.com/rafaeljc/mimir/internal/database"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(m *database.Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printStatus(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1 step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("steps must be an integer: %w", err)
				}
				steps = n
			}
			return withMigrator(cmd.Context(), func(m *database.Migrator) error {
				if err := m.Down(steps); err != nil {
					return err
				}
				return printStatus(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(m *database.Migrator) error {
				return printStatus(cmd, m)
			})
		},
	})

	return cmd
}

func withMigrator(ctx context.Context, fn func(*database.Migrator) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pool, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	db := database.OpenDB(pool)
	defer db.Close()

	m, err := database.NewMigrator(db)
	if err != nil {
		return err
	}
	return fn(m)
}

func printStatus(cmd *cobra.Command, m *database.Migrator) error {
	st, err := m.Status()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "version: %d\ndirty: %t\n", st.Version, st.Dirty)
	return nil
}
