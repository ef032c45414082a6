package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/carsuggester/roadtest/internal/store"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export [experiment]",
	Short: "Export stored data",
	Long: `Export data for debugging, analysis or compliance review.

Without arguments, exports everything (definitions, assignments, events)
as one JSON document. With an experiment id, exports that experiment's
raw event log in CSV or JSON.

Examples:
  roadtest export > backup.json
  roadtest export listing-cta --format csv > events.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "event export format (csv or json)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		if len(args) == 0 {
			dump, err := s.ExportAll(ctx)
			if err != nil {
				return fmt.Errorf("failed to export data: %w", err)
			}
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(dump)
		}

		id := args[0]
		if _, err := s.GetExperiment(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("experiment '%s' not found", id)
			}
			return fmt.Errorf("failed to get experiment: %w", err)
		}

		events, err := s.ListEvents(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get events: %w", err)
		}

		if exportFormat == "csv" {
			return exportCSV(events)
		}
		return exportJSON(events)
	})
}

func exportCSV(events []*store.Event) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	if err := w.Write([]string{"timestamp", "user_id", "variant_id", "event_type", "event_name", "value"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, e := range events {
		value := ""
		if e.Value != nil {
			value = strconv.FormatFloat(*e.Value, 'f', -1, 64)
		}
		row := []string{
			strconv.FormatInt(e.CreatedAt.Unix(), 10),
			e.UserID,
			e.VariantID,
			string(e.Type),
			e.Name,
			value,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	return nil
}

type jsonExport struct {
	Events []jsonEvent `json:"events"`
}

type jsonEvent struct {
	Timestamp int64             `json:"timestamp"`
	UserID    string            `json:"user_id"`
	VariantID string            `json:"variant_id"`
	EventType string            `json:"event_type"`
	EventName string            `json:"event_name,omitempty"`
	Value     *float64          `json:"value,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func exportJSON(events []*store.Event) error {
	export := jsonExport{
		Events: make([]jsonEvent, len(events)),
	}

	for i, e := range events {
		export.Events[i] = jsonEvent{
			Timestamp: e.CreatedAt.Unix(),
			UserID:    e.UserID,
			VariantID: e.VariantID,
			EventType: string(e.Type),
			EventName: e.Name,
			Value:     e.Value,
			Metadata:  e.Metadata,
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
