package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsedeck"
	"github.com/jpalmerr/pulsedeck/message"
)

const (
	shutdownTimeout = 10 * time.Second
)

// watchCmd follows the live channels until interrupted.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live updates from the backend",
	Long: `Follow live updates from the backend.

The command will:
  - Revalidate the stored session
  - Fetch services, events and metrics
  - Open the configured WebSocket channels, reconnecting with backoff
  - Refetch each query on its interval
  - Serve the local mirror when listen_port is set

It runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  pulsedeck watch
  pulsedeck watch -c /etc/pulsedeck/config.yaml`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	var outMu sync.Mutex
	// the dashboard has already applied each message when this runs
	printMessage := func(path string, msg message.Message) {
		outMu.Lock()
		defer outMu.Unlock()
		switch m := msg.(type) {
		case message.StatusChange:
			fmt.Fprintf(out, "service %d: %s -> %s\n", m.ServiceID, m.OldStatus, m.NewStatus)
		case message.NewEvent:
			fmt.Fprintf(out, "[%s] %s: %s\n", m.Event.Severity, m.Event.ServiceName, m.Event.Title)
		case message.NewAlert:
			fmt.Fprintf(out, "ALERT %s: %s\n", m.Alert.ServiceName, m.Alert.Title)
		case message.AlertResolved:
			fmt.Fprintf(out, "alert %d resolved\n", m.AlertID)
		}
	}

	c, err := openClient(cmd, pulsedeck.WithMessageCallback(printMessage))
	if err != nil {
		return err
	}
	defer c.Close()

	c.logger.Info("config loaded",
		"api_base", c.cfg.APIBase,
		"channels", c.cfg.Channels,
		"listen_port", c.cfg.ListenPort,
	)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runUntilDone(ctx, c.dash, c.logger)
}

// runUntilDone runs dash until ctx ends, then waits up to shutdownTimeout
// for it to stop.
func runUntilDone(ctx context.Context, dash *pulsedeck.Dashboard, logger *slog.Logger) error {
	// start dashboard - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- dash.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, pulsedeck.ErrNotAuthenticated) {
			return errNotLoggedIn
		}
		if err != nil {
			return fmt.Errorf("watch error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("watch error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
