package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/carsuggester/roadtest/internal/stats"
	"github.com/carsuggester/roadtest/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results <id>",
	Short: "Show detailed results for an experiment",
	Long:  `Show per-variant conversion rates, confidence intervals, significance against control and the current recommendation.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	id := args[0]

	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		exp, err := s.GetExperiment(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("experiment '%s' not found", id)
			}
			return fmt.Errorf("failed to get experiment: %w", err)
		}

		counts, err := s.VariantCounts(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get counts: %w", err)
		}

		results := stats.Aggregate(exp, counts, stats.DefaultMinSample)

		fmt.Printf("EXPERIMENT: %s\n", exp.ID)
		fmt.Printf("STATUS: %s\n", exp.Status)
		if exp.PrimaryMetric != "" {
			fmt.Printf("METRIC: %s\n", exp.PrimaryMetric)
		}
		fmt.Printf("CREATED: %s\n", exp.CreatedAt.Format("2006-01-02"))
		fmt.Println()

		fmt.Println("VARIANT           USERS    EXPOSURES  CONV   RATE     95% CI             UPLIFT")
		fmt.Println(strings.Repeat("─", 84))

		for _, v := range results.Variants {
			indicator := ""
			if v.IsControl {
				indicator = " (control)"
			}
			if v.IsWinner {
				indicator = " ← WINNER"
			}

			ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", v.CILower*100, v.CIUpper*100)
			if v.Exposures == 0 {
				ciStr = "N/A"
			}
			upliftStr := "-"
			if !v.IsControl && v.Uplift != 0 {
				upliftStr = fmt.Sprintf("%+.1f%%", v.Uplift)
			}

			name := v.Name
			if len(name) > 16 {
				name = name[:13] + "..."
			}

			fmt.Printf("%-16s  %-7d  %-9d  %-5d  %-7s  %-17s  %s%s\n",
				name,
				v.Participants,
				v.Exposures,
				v.Conversions,
				formatPercent(v.ConversionRate),
				ciStr,
				upliftStr,
				indicator,
			)
		}

		fmt.Println()

		for _, v := range results.Variants {
			if v.IsControl {
				continue
			}
			if v.Significant {
				fmt.Printf("Significance: \"%s\" vs control at %.0f%% confidence\n", v.Name, v.SignificanceLevel)
			} else if v.SignificanceLevel >= 80 {
				fmt.Printf("Significance: \"%s\" vs control at %.0f%% (not yet significant)\n", v.Name, v.SignificanceLevel)
			}
		}

		switch results.Recommendation {
		case stats.RecommendDeclareWinner:
			fmt.Println("Recommendation: declare a winner")
		case stats.RecommendInconclusive:
			fmt.Println("Recommendation: inconclusive (significance reached but nothing beats control)")
		default:
			fmt.Printf("Recommendation: continue (%d participants so far)\n", results.TotalParticipants)
		}

		return nil
	})
}
