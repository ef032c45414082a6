package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/carsuggester/roadtest/internal/store"
)

func init() {
	flagCmd := &cobra.Command{
		Use:   "flag",
		Short: "Manage feature flags",
		Long:  `Create, list and toggle feature flags.`,
	}
	flagCmd.AddCommand(newFlagCreateCmd())
	flagCmd.AddCommand(flagListCmd)
	flagCmd.AddCommand(newFlagToggleCmd("enable", true))
	flagCmd.AddCommand(newFlagToggleCmd("disable", false))
	flagCmd.AddCommand(flagRolloutCmd)
	rootCmd.AddCommand(flagCmd)
}

func newFlagCreateCmd() *cobra.Command {
	var (
		name    string
		rollout float64
		value   string
		enable  bool
	)

	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create a feature flag",
		Long: `Create a feature flag with a rollout percentage and optional value.

Examples:
  roadtest flag create dark-mode --rollout 25 --enable
  roadtest flag create search-radius --rollout 100 --value '{"km": 50}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flag := &store.FeatureFlag{
				ID:                args[0],
				Name:              name,
				Enabled:           enable,
				RolloutPercentage: rollout,
			}
			if flag.Name == "" {
				flag.Name = flag.ID
			}
			if value != "" {
				if !json.Valid([]byte(value)) {
					return fmt.Errorf("flag value must be valid JSON")
				}
				flag.Value = json.RawMessage(value)
			}
			if err := flag.Validate(); err != nil {
				return err
			}

			return withStore(func(s *store.SQLiteStore) error {
				if err := s.CreateFlag(context.Background(), flag); err != nil {
					return fmt.Errorf("failed to create flag: %w", err)
				}
				state := "disabled"
				if flag.Enabled {
					state = "enabled"
				}
				fmt.Printf("Created flag '%s' (%s, %.0f%% rollout)\n", flag.ID, state, flag.RolloutPercentage)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name (default: id)")
	cmd.Flags().Float64Var(&rollout, "rollout", 0, "rollout percentage, 0-100")
	cmd.Flags().StringVar(&value, "value", "", "typed JSON payload the flag carries")
	cmd.Flags().BoolVar(&enable, "enable", false, "create enabled")

	return cmd
}

var flagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all feature flags",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *store.SQLiteStore) error {
			flags, err := s.ListFlags(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list flags: %w", err)
			}

			if len(flags) == 0 {
				fmt.Println("No flags yet. Create one with: roadtest flag create <id>")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tENABLED\tROLLOUT\tVALUE\tCREATED")
			for _, f := range flags {
				value := "-"
				if len(f.Value) > 0 {
					value = string(f.Value)
					if len(value) > 24 {
						value = value[:21] + "..."
					}
				}
				fmt.Fprintf(w, "%s\t%t\t%.0f%%\t%s\t%s\n",
					f.ID, f.Enabled, f.RolloutPercentage, value, f.CreatedAt.Format("2006-01-02"))
			}
			w.Flush()
			return nil
		})
	},
}

func newFlagToggleCmd(verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: capitalize(verb) + " a feature flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()
				flag, err := s.GetFlag(ctx, args[0])
				if err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("flag '%s' not found", args[0])
					}
					return fmt.Errorf("failed to get flag: %w", err)
				}
				flag.Enabled = enabled
				if err := s.UpdateFlag(ctx, flag); err != nil {
					return fmt.Errorf("failed to update flag: %w", err)
				}
				fmt.Printf("Flag '%s' %sd\n", flag.ID, verb)
				return nil
			})
		},
	}
}

var flagRolloutCmd = &cobra.Command{
	Use:   "rollout <id> <percent>",
	Short: "Set a flag's rollout percentage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pct, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid percentage %q: %w", args[1], err)
		}
		if pct < 0 || pct > 100 {
			return fmt.Errorf("rollout %.2f out of range [0,100]", pct)
		}

		return withStore(func(s *store.SQLiteStore) error {
			ctx := context.Background()
			flag, err := s.GetFlag(ctx, args[0])
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("flag '%s' not found", args[0])
				}
				return fmt.Errorf("failed to get flag: %w", err)
			}
			flag.RolloutPercentage = pct
			if err := s.UpdateFlag(ctx, flag); err != nil {
				return fmt.Errorf("failed to update flag: %w", err)
			}
			fmt.Printf("Flag '%s' rollout set to %.0f%%\n", flag.ID, pct)
			return nil
		})
	},
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
