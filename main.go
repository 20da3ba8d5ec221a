package main

import (
	"os"

	"github.com/cbusillo/product-connect/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
