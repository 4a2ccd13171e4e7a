// Package main is the entry point for the vantage CLI.
//
// vantage provisions the cloud backend for a camera analytics deployment and
// configures the camera fleet: API enablement, service accounts, IAM, storage,
// API keys, workload identity, the API gateway, then device discovery,
// configuration, and licensing. Every run is checkpointed and resumable.
//
// Commands: init, deploy, resume, scan, configure.
//
// For detailed usage information, run:
//
//	vantage --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vantage-deploy/vantage/cmd/vantage/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// SIGTERM cancels outright. SIGINT is handled inside the pipeline runner
	// as a graceful pause, so it is deliberately not wired to the context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := commands.Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
