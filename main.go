package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pathoai/patho-console/cmd"
)

// These are set via -ldflags "-X main.Version=... -X main.Commit=... -X main.Date=...".
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

func main() {
	// Wire build metadata into the CLI so `--version` and `version` subcommand work.
	cmd.SetVersion(Version, Commit, Date)

	// Set up context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		cancel()
	}()

	// Execute the root command with context
	if err := cmd.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
