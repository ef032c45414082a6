package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carsuggester/roadtest/internal/engine"
	"github.com/carsuggester/roadtest/internal/identity"
	"github.com/carsuggester/roadtest/internal/store"
)

func init() {
	rootCmd.AddCommand(newAssignCmd())
}

func newAssignCmd() *cobra.Command {
	var (
		userID string
		cflags contextFlags
	)

	cmd := &cobra.Command{
		Use:   "assign <experiment>",
		Short: "Evaluate an experiment for a user",
		Long: `Evaluate an experiment and print the assigned variant.

Without --user the installation id is used, which is how the embedded
SDK evaluates. The assignment is persisted: repeating the command
returns the same variant and records another exposure.

Examples:
  roadtest assign listing-cta
  roadtest assign listing-cta --user u-123 --platform ios --version 2.4.0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			experimentID := args[0]

			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()

				if userID == "" {
					id, err := identity.InstallationID(ctx, s)
					if err != nil {
						return err
					}
					userID = id
				}

				eng := engine.New(s, cliLogger())
				variantID, config, ok := eng.Evaluate(ctx, userID, experimentID, cflags.context())
				if !ok {
					fmt.Printf("No assignment for user %s (inactive, excluded or mistargeted)\n", userID)
					return nil
				}

				fmt.Printf("User %s: variant '%s'\n", userID, variantID)
				if len(config) > 0 {
					fmt.Printf("Config: %s\n", config)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id (default: installation id)")
	cflags.register(cmd)

	return cmd
}

// cliLogger keeps engine warnings visible without turning CLI output into
// a log stream.
func cliLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)
}
