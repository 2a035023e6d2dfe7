// Package server provides the local mirror HTTP server for PulseDeck.
//
// The mirror exposes the client's in-memory stores to browsers and scripts:
//
//   - Dashboard: the embedded HTML page at "/"
//   - REST: JSON snapshots under "/api/"
//   - Server-Sent Events: a snapshot on connect, then one frame per change, at "/api/sse"
//   - Prometheus: client telemetry at "/metrics"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests. It is started by
// [pulsedeck.Dashboard.Start] when a listen port is configured.
package server
