// Package pulsedeck is a client SDK for a container monitoring backend.
//
// A [Dashboard] authenticates a user, mirrors service health, host and
// container metrics and the event stream into in-memory stores, and keeps
// them current through WebSocket channels with bounded reconnection plus
// periodic REST refetches.
//
// # Quick Start
//
//	st, _ := storage.Open(storage.DriverFile, storage.DefaultPath())
//	d, _ := pulsedeck.New(
//	    pulsedeck.WithAPIBase("https://monitor.example.com"),
//	    pulsedeck.WithWSBase("wss://monitor.example.com"),
//	    pulsedeck.WithStorage(st),
//	    pulsedeck.WithListenPort(8080),
//	)
//	defer d.Close()
//
//	if err := d.Login(ctx, "admin", password); err != nil {
//	    return err
//	}
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	d.Start(ctx) // blocks until context is cancelled
//
// # Sessions
//
// The session is persisted under two keys: the serialized session and the
// raw token read by the REST client on every request. A restarted process
// revalidates the stored token with [Dashboard.CheckAuth] before trusting
// it. Any 401 outside login clears the session.
//
// # Channels
//
// [Dashboard.Start] opens [ChannelServices], [ChannelEvents] and
// [ChannelMonitoring]. Each channel reconnects after 1s, 2s, 4s, 8s and 16s
// and is abandoned after five failed reconnects. [Dashboard.Mode] reports
// [ModeLive] while every channel is open and [ModePolling] otherwise; the
// refetch scheduler keeps the stores current in both modes.
//
// # Architecture
//
// PulseDeck consists of several internal packages (under internal/):
//
//   - internal/api: REST client with token auth and error normalization
//   - internal/wsclient: per-path connection state machine over gorilla/websocket
//   - internal/session: session store and startup auth gate
//   - internal/store: domain stores with pub/sub for change notification
//   - internal/poller: refetch scheduler with a worker pool
//   - internal/storage: durable key/value storage (file, Badger, memory)
//   - internal/server: mirror HTTP server with JSON snapshots and Server-Sent Events
//   - internal/telemetry: Prometheus collectors
//   - dashboard: embedded mirror page
//
// The internal packages are not part of the public API and may change
// without notice.
package pulsedeck
