package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/mimir/internal/cohort"
	"github.com/rafaeljc/mimir/internal/config"
)

type cohortResult struct {
	UserID       string  `json:"user_id"`
	ExperimentID string  `json:"experiment_id"`
	Strategy     string  `json:"strategy"`
	Bucket       float64 `json:"bucket"`
	Cohort       string  `json:"cohort"`
}

func newCohortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cohort",
		Short: "Offline cohort assignment checks",
	}

	var (
		userID       string
		experimentID string
		cohorts      string
		strategy     string
	)
	assign := &cobra.Command{
		Use:   "assign",
		Short: "Print the cohort a user would be assigned without touching storage",
		Long: `Runs the same deterministic assignment the services use. Users that
already hold a persisted assignment keep it regardless of this output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}

			dist, err := cohort.ParseDistribution([]byte(cohorts))
			if err != nil {
				return err
			}
			h, err := cohort.NewHasher(strategy)
			if err != nil {
				return err
			}
			engine := cohort.NewEngine(h)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cohortResult{
				UserID:       userID,
				ExperimentID: experimentID,
				Strategy:     engine.Strategy(),
				Bucket:       cohort.Normalize(h.Bucket(userID, experimentID)),
				Cohort:       engine.Assign(userID, experimentID, dist),
			})
		},
	}
	assign.Flags().StringVar(&userID, "user", "", "user id to assign")
	assign.Flags().StringVar(&experimentID, "experiment", "", "experiment id (salt for murmur3)")
	assign.Flags().StringVar(&cohorts, "cohorts", `{"control":0.5,"treatment":0.5}`, "cohort weights as a JSON object")
	assign.Flags().StringVar(&strategy, "strategy", config.HashStrategyRolling,
		fmt.Sprintf("hash strategy: %s or %s", config.HashStrategyRolling, config.HashStrategyMurmur3))

	cmd.AddCommand(assign)
	return cmd
}
