package main

import (
	"context"
	"os"

	"music-enricher/cmd/music-enricher/commands"
	"music-enricher/internal/shared"
)

var version = "dev"

func main() {
	if err := commands.NewRootCommand(version).ExecuteContext(context.Background()); err != nil {
		shared.ColorError.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
