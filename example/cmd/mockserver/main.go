// Standalone mock backend for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/pulsedeck login -c example/config.yaml -u admin -p admin
//	go run ./cmd/pulsedeck watch -c example/config.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jpalmerr/pulsedeck/example/mockbackend"
)

func main() {
	fmt.Println("Mock backend starting on :9999")
	fmt.Printf("Sign in with %s / %s\n", mockbackend.Username, mockbackend.Password)
	fmt.Println("Services cycle between healthy and unhealthy")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := mockbackend.New(logger).Run(ctx, ":9999"); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
