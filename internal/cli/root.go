package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath string
)

var rootCmd = &cobra.Command{
	Use:   "roadtest",
	Short: "Roadtest - the experimentation engine behind the CarSuggester app",
	Long: `Roadtest runs A/B experiments and feature flags for the CarSuggester app.
Deterministic client-side bucketing, embedded SQLite, local statistics.
Single Go binary, no external services.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("RT_DB_PATH", "./roadtest.db"), "database path")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
