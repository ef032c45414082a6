package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/carsuggester/roadtest/internal/store"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all stored data",
	Long: `Delete all stored data: experiments, flags, assignments, events and
the installation id. Used for testing and data-deletion requests.

Example:
  roadtest clear --yes`,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "skip confirmation")
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	if !clearYes {
		prompt := promptui.Prompt{
			Label:     "Delete ALL experiment data",
			IsConfirm: true,
		}
		if _, err := prompt.Run(); err != nil {
			if err == promptui.ErrInterrupt {
				os.Exit(0)
			}
			fmt.Println("Aborted.")
			return nil
		}
	}

	return withStore(func(s *store.SQLiteStore) error {
		if err := s.ClearAll(context.Background()); err != nil {
			return fmt.Errorf("failed to clear data: %w", err)
		}
		fmt.Println("All data deleted. A new installation id will be generated on next use.")
		return nil
	})
}
