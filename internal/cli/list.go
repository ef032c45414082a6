package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/carsuggester/roadtest/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	Long:  `List all experiments with their status and participation counts.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		exps, err := s.ListExperiments(ctx)
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		if len(exps) == 0 {
			fmt.Println("No experiments yet. Create one with: roadtest create <id> --variants \"control:50,treatment:50\"")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tVARIANTS\tTRAFFIC\tPARTICIPANTS\tCONVERSIONS\tCREATED")

		for _, exp := range exps {
			counts, err := s.VariantCounts(ctx, exp.ID)
			if err != nil {
				return fmt.Errorf("failed to get counts for %s: %w", exp.ID, err)
			}

			participants := 0
			conversions := 0
			for _, c := range counts {
				participants += c.Participants
				conversions += c.Conversions
			}

			fmt.Fprintf(w, "%s\t%s\t%d\t%.0f%%\t%d\t%d\t%s\n",
				exp.ID,
				strings.ToUpper(string(exp.Status)),
				len(exp.Variants),
				exp.TrafficAllocation,
				participants,
				conversions,
				exp.CreatedAt.Format("2006-01-02"),
			)
		}

		w.Flush()
		return nil
	})
}
