package main

import (
	"github.com/joho/godotenv"

	"github.com/tabwarden/tabwarden/internal/cli"
)

func main() {
	// TABWARDEN_ variables may come from a .env next to the binary.
	_ = godotenv.Load()

	cli.Execute()
}
