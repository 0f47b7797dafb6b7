package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackzampolin/epubaudio/internal/ui"
)

func main() {
	// Set up context with signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	os.Exit(execute(ctx, os.Args[1:]))
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string) int {
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.Error("%v", err)
		return 1
	}
	return 0
}
