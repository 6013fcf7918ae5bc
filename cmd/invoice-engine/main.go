package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/billfold-ai/invoice-engine/cmd/invoice-engine/commands"
)

func main() {
	// Missing .env is fine, environment variables still apply.
	godotenv.Load()

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
