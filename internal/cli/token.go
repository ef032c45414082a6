package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show the operator API token",
	Long: `Show the token protecting the operator API of a running server.

Use it as a bearer token:
  curl -H "Authorization: Bearer $(roadtest token)" localhost:8080/api/experiments`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(tokenFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no server running. Start with: roadtest serve")
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	token := string(data)
	if token == "" {
		return fmt.Errorf("token file is empty. Restart the server with: roadtest serve")
	}

	fmt.Println(token)
	return nil
}

// tokenFilePath puts the token file alongside the database.
func tokenFilePath() string {
	return filepath.Join(filepath.Dir(dbPath), ".roadtest-token")
}
