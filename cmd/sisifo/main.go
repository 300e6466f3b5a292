package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/nelsonpires5/sisifo/internal/cmd"
	"github.com/nelsonpires5/sisifo/internal/metrics"
	"github.com/nelsonpires5/sisifo/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer := telemetry.Init("sisifo", cmd.Version)
	shutdownMeter := metrics.Init("sisifo")
	defer func() {
		shutdownTracer(context.Background())
		shutdownMeter(context.Background())
	}()

	rootCmd := cmd.NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
