package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/mimir/internal/auth"
)

// secretEnv matches the data plane's JWT secret variable so an operator shell
// configured for the service can mint tokens without repeating it.
const secretEnv = "MIMIR_SERVER_DATA_JWT_SECRET"

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Caller tokens for the data plane",
	}

	var (
		subject string
		role    string
		issuer  string
		secret  string
		ttl     time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Mint an HS256 token for a caller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if subject == "" {
				return errors.New("--subject is required")
			}
			if secret == "" {
				secret = os.Getenv(secretEnv)
			}
			if secret == "" {
				return fmt.Errorf("--secret or %s is required", secretEnv)
			}

			token, err := auth.Issue(secret, issuer, subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().StringVar(&subject, "subject", "", "caller identity (user id)")
	issue.Flags().StringVar(&role, "role", "", "caller role, e.g. admin")
	issue.Flags().StringVar(&issuer, "issuer", "", "iss claim; must match the data plane's JWT issuer when one is set")
	issue.Flags().StringVar(&secret, "secret", "", "HMAC secret (default $"+secretEnv+")")
	issue.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")

	cmd.AddCommand(issue)
	return cmd
}
