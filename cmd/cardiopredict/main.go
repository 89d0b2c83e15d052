package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	root := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// printVersion prints version information
func printVersion(a *app) {
	fmt.Fprintf(a.out, "Cardio Predict\n")
	fmt.Fprintf(a.out, "Version: %s\n", version)
	fmt.Fprintf(a.out, "Build Time: %s\n", buildTime)
	fmt.Fprintf(a.out, "Git Commit: %s\n", gitCommit)
	fmt.Fprintf(a.out, "Built with: %s\n", runtime.Version())
}
