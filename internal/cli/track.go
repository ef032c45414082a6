package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/carsuggester/roadtest/internal/engine"
	"github.com/carsuggester/roadtest/internal/identity"
	"github.com/carsuggester/roadtest/internal/store"
)

func init() {
	rootCmd.AddCommand(newTrackCmd())
}

func newTrackCmd() *cobra.Command {
	var (
		userID    string
		eventType string
		name      string
		value     float64
		metadata  []string
	)

	cmd := &cobra.Command{
		Use:   "track <experiment>",
		Short: "Record a conversion or custom event",
		Long: `Record a conversion or custom event for a user's assignment.

Recording for a user with no assignment is a no-op; evaluate first with
'roadtest assign'. The first conversion per user counts for the primary
metric, repeats are kept in the log as custom events.

Examples:
  roadtest track listing-cta --type conversion
  roadtest track listing-cta --user u-123 --type custom --name dealer_call --value 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			experimentID := args[0]

			if eventType != string(store.EventConversion) && eventType != string(store.EventCustom) {
				return fmt.Errorf("invalid type %q, want conversion or custom", eventType)
			}

			var md map[string]string
			for _, pair := range metadata {
				k, v, found := strings.Cut(pair, "=")
				if !found {
					return fmt.Errorf("invalid metadata %q, want key=value", pair)
				}
				if md == nil {
					md = make(map[string]string)
				}
				md[k] = v
			}

			var valuePtr *float64
			if cmd.Flags().Changed("value") {
				valuePtr = &value
			}

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
				if eventType == string(store.EventConversion) {
					eng.RecordConversion(ctx, userID, experimentID, name, valuePtr, md)
				} else {
					if name == "" {
						return fmt.Errorf("custom events need --name")
					}
					eng.RecordCustom(ctx, userID, experimentID, name, valuePtr, md)
				}

				if _, err := s.GetAssignment(ctx, userID, experimentID); err != nil {
					fmt.Printf("No assignment for user %s; nothing recorded\n", userID)
					return nil
				}
				fmt.Printf("Recorded %s event for user %s\n", eventType, userID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id (default: installation id)")
	cmd.Flags().StringVarP(&eventType, "type", "t", "conversion", "event type (conversion or custom)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "event name")
	cmd.Flags().Float64Var(&value, "value", 0, "numeric event value")
	cmd.Flags().StringArrayVar(&metadata, "metadata", nil, "metadata key=value pairs (repeatable)")

	return cmd
}
