package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/carsuggester/roadtest/internal/engine"
	"github.com/carsuggester/roadtest/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// parseVariantSpec parses "control:50,treatment:50" into variants. The
// variant named control (or the first one when control is empty) is marked
// as the control arm. Variant ids are the given names.
func parseVariantSpec(spec, control string) ([]store.Variant, error) {
	parts := strings.Split(spec, ",")
	if len(parts) < 2 {
		return nil, fmt.Errorf("need at least 2 variants. Example: --variants \"control:50,treatment:50\"")
	}

	variants := make([]store.Variant, 0, len(parts))
	for _, part := range parts {
		name, allocStr, found := strings.Cut(strings.TrimSpace(part), ":")
		if !found || name == "" {
			return nil, fmt.Errorf("invalid variant %q, want name:allocation", part)
		}
		alloc, err := strconv.ParseFloat(allocStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid allocation for variant %q: %w", name, err)
		}
		variants = append(variants, store.Variant{
			ID:         name,
			Name:       name,
			Allocation: alloc,
		})
	}

	controlIdx := 0
	if control != "" {
		controlIdx = -1
		for i, v := range variants {
			if v.Name == control {
				controlIdx = i
				break
			}
		}
		if controlIdx < 0 {
			return nil, fmt.Errorf("control variant %q not in variant list", control)
		}
	}
	variants[controlIdx].IsControl = true

	return variants, nil
}

// contextFlags are the evaluation-context flags shared by the commands
// that evaluate experiments and flags.
type contextFlags struct {
	platform string
	version  string
	sessions int
	segments string
}

func (f *contextFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.platform, "platform", "", "caller platform (ios, android, web)")
	cmd.Flags().StringVar(&f.version, "version", "", "caller app version")
	cmd.Flags().IntVar(&f.sessions, "sessions", 0, "caller session count")
	cmd.Flags().StringVar(&f.segments, "segments", "", "comma-separated segment tags")
}

func (f *contextFlags) context() engine.Context {
	c := engine.Context{
		Platform:     f.platform,
		AppVersion:   f.version,
		SessionCount: f.sessions,
	}
	if f.segments != "" {
		for _, s := range strings.Split(f.segments, ",") {
			c.Segments = append(c.Segments, strings.TrimSpace(s))
		}
	}
	return c
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
