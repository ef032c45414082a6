package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carsuggester/roadtest/internal/store"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		variants    string
		control     string
		name        string
		description string
		traffic     float64
		metric      string
		activate    bool
	)

	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create a new experiment",
		Long: `Create a new experiment with the given variant allocations.

Allocations are percentages of included traffic and must sum to 100.
The control variant defaults to the first in the list.

Examples:
  roadtest create listing-cta --variants "control:50,treatment:50"
  roadtest create search-rank --variants "control:34,boost:33,ml:33" --traffic 20 --activate
  roadtest create price-badge --variants "off:50,on:50" --control off --metric lead_submitted`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			variantList, err := parseVariantSpec(variants, control)
			if err != nil {
				return err
			}

			status := store.StatusDraft
			if activate {
				status = store.StatusActive
			}
			if name == "" {
				name = id
			}

			exp := &store.Experiment{
				ID:                id,
				Name:              name,
				Description:       description,
				Status:            status,
				TrafficAllocation: traffic,
				Variants:          variantList,
				PrimaryMetric:     metric,
			}
			if err := exp.Validate(); err != nil {
				return err
			}

			return withStore(func(s *store.SQLiteStore) error {
				if err := s.CreateExperiment(context.Background(), exp); err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				fmt.Printf("Created experiment '%s' (%s) with %d variants:\n", exp.ID, exp.Status, len(exp.Variants))
				for _, v := range exp.Variants {
					marker := ""
					if v.IsControl {
						marker = " (control)"
					}
					fmt.Printf("  %s: %.0f%%%s\n", v.Name, v.Allocation, marker)
				}
				if traffic < 100 {
					fmt.Printf("  Traffic allocation: %.0f%%\n", traffic)
				}
				if !activate {
					fmt.Printf("\nActivate with: roadtest status %s active\n", exp.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&variants, "variants", "v", "", "comma-separated name:allocation pairs (required)")
	cmd.Flags().StringVar(&control, "control", "", "name of the control variant (default: first)")
	cmd.Flags().StringVar(&name, "name", "", "display name (default: id)")
	cmd.Flags().StringVar(&description, "description", "", "experiment description")
	cmd.Flags().Float64Var(&traffic, "traffic", 100, "percent of eligible users included")
	cmd.Flags().StringVar(&metric, "metric", "", "primary success metric name")
	cmd.Flags().BoolVar(&activate, "activate", false, "create as active instead of draft")
	cmd.MarkFlagRequired("variants")

	return cmd
}
