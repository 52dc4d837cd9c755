package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/rafaeljc/mimir/internal/auth"
	"github.com/rafaeljc/mimir/internal/dataapi"
)

func newCallCmd() *cobra.Command {
	var (
		addr    string
		token   string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "call <method> [payload|-]",
		Short: "Call a TelemetryService method and print the JSON response",
		Example: `  mimirctl call HealthCheck
  mimirctl call FetchConfig --token "$(mimirctl token issue --subject player-1)"
  echo '{"experiment_id":"checkout-v2"}' | mimirctl call GetAssignment - --token "$TOKEN"`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := []byte("{}")
			if len(args) == 2 {
				if args[1] == "-" {
					b, err := io.ReadAll(cmd.InOrStdin())
					if err != nil {
						return fmt.Errorf("read payload: %w", err)
					}
					payload = b
				} else {
					payload = []byte(args[1])
				}
			}

			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if token != "" {
				ctx = metadata.AppendToOutgoingContext(ctx, auth.HeaderAuthorization, "Bearer "+strings.TrimSpace(token))
			}

			raw, err := dataapi.NewClient(conn).Call(ctx, args[0], payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:50051", "data plane address")
	cmd.Flags().StringVar(&token, "token", "", "bearer token for authenticated methods")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "call deadline")
	return cmd
}
