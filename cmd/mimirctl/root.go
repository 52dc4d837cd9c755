package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mimirctl",
		Short: "Mimir operator CLI",
		Long: `mimirctl manages a Mimir deployment from the terminal.

Apply schema migrations, mint caller tokens for the data plane, check which
cohort a user would land in and call TelemetryService methods directly.

Database settings are read from the same MIMIR_* environment variables the
services use.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newMigrateCmd(),
		newTokenCmd(),
		newCohortCmd(),
		newCallCmd(),
	)
	return root
}
