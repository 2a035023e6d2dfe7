package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/pulsedeck"
	"github.com/jpalmerr/pulsedeck/example/mockbackend"
	"github.com/jpalmerr/pulsedeck/message"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start mock backend (see mockbackend)
	backend := mockbackend.New(logger.With("component", "mock"))
	go func() {
		if err := backend.Run(ctx, ":9999"); err != nil {
			logger.Error("mock backend error", "error", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	// print pushes after the dashboard has applied them
	onMessage := func(path string, msg message.Message) {
		switch m := msg.(type) {
		case message.StatusChange:
			fmt.Printf("  service %d: %s -> %s\n", m.ServiceID, m.OldStatus, m.NewStatus)
		case message.NewEvent:
			fmt.Printf("  [%s] %s\n", m.Event.Severity, m.Event.Title)
		case message.NewAlert:
			fmt.Printf("  ALERT %s\n", m.Alert.Title)
		}
	}

	dash, err := pulsedeck.New(
		pulsedeck.WithAPIBase("http://localhost:9999"),
		pulsedeck.WithChannels(pulsedeck.ChannelServices, pulsedeck.ChannelEvents, pulsedeck.ChannelMonitoring, pulsedeck.ChannelAlerts),
		pulsedeck.WithWSBase("ws://localhost:9999"),
		pulsedeck.WithRefreshInterval(pulsedeck.QueryLive, 10*time.Second),
		pulsedeck.WithListenPort(8080),
		pulsedeck.WithTitle("PulseDeck Demo"),
		pulsedeck.WithLogger(logger),
		pulsedeck.WithMessageCallback(onMessage),
	)
	if err != nil {
		logger.Error("failed to create dashboard", "error", err)
		os.Exit(1)
	}
	defer func() { _ = dash.Close() }()

	if err := dash.Login(ctx, mockbackend.Username, mockbackend.Password); err != nil {
		logger.Error("login failed", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   PulseDeck Demo                                      ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080 in your browser          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Mock backend on :9999 with 4 services               ║")
	fmt.Println("  ║   Statuses change every 20-60s                        ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	if err := dash.Start(ctx); err != nil {
		logger.Error("dashboard error", "error", err)
		os.Exit(1)
	}
}
