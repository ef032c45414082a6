package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carsuggester/roadtest/internal/engine"
	"github.com/carsuggester/roadtest/internal/identity"
	"github.com/carsuggester/roadtest/internal/server"
	"github.com/carsuggester/roadtest/internal/store"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the roadtest HTTP server.

Public endpoints evaluate experiments and flags and ingest events;
the /api operator endpoints are protected by a token printed at start
(and available later via 'roadtest token').

Example:
  roadtest serve --port 8080`,
	RunE: runServe,
}

func init() {
	defaultPort := 8080
	if p := os.Getenv("RT_PORT"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			defaultPort = parsed
		}
	}

	serveCmd.Flags().IntVarP(&port, "port", "p", defaultPort, "port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

		// Make sure an installation id exists before serving so local SDK
		// use and the HTTP surface share one identity.
		if _, err := identity.InstallationID(context.Background(), s); err != nil {
			return err
		}

		eng := engine.New(s, logger)
		srv := server.New(s, eng, port, tokenFilePath(), logger)

		fmt.Printf("roadtest running on http://localhost:%d\n", port)
		fmt.Printf("Operator token: %s\n", srv.Token())
		fmt.Println("Press Ctrl+C to stop")

		return srv.Start()
	})
}
