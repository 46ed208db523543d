package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/rcliao/context-memory/internal/cli"
)

func main() {
	// Load .env if present (optional)
	_ = godotenv.Load()

	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
