package main

import (
	"os"

	"github.com/carsuggester/roadtest/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
