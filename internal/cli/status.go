package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carsuggester/roadtest/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status <id> <draft|active|paused|completed>",
	Short: "Change an experiment's lifecycle status",
	Long: `Change an experiment's lifecycle status.

Only active experiments assign new users. Pausing stops new assignments
but existing users keep their variant.

Example:
  roadtest status listing-cta active`,
	Args: cobra.ExactArgs(2),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	id := args[0]
	status := store.ExperimentStatus(args[1])

	switch status {
	case store.StatusDraft, store.StatusActive, store.StatusPaused, store.StatusCompleted:
	default:
		return fmt.Errorf("invalid status %q, want draft, active, paused or completed", args[1])
	}

	return withStore(func(s *store.SQLiteStore) error {
		if err := s.UpdateExperimentStatus(context.Background(), id, status); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("experiment '%s' not found", id)
			}
			return fmt.Errorf("failed to update status: %w", err)
		}
		fmt.Printf("Experiment '%s' is now %s\n", id, status)
		return nil
	})
}
