// Package wsclient maintains the client's long-lived WebSocket channels.
//
// A [Registry] owns at most one logical connection per path. Each logical
// connection is a small state machine:
//
//	connecting ──open──▶ open ──close──▶ retrying ──timer──▶ connecting
//	                                         │
//	                                 attempts exhausted
//	                                         ▼
//	                                     abandoned
//
// Dial failures, read errors and server closes are all treated as a close.
// After a close the registry waits [Backoff](attempts) before redialling and
// gives up once the configured number of attempts has been spent. A
// successful open resets the attempt counter. [Registry.Disconnect] moves a
// connection to closed from any state, cancelling a pending retry.
//
// All timers go through a single [Scheduler], so tests can drive the whole
// reconnect sequence without sleeping.
//
// Inbound frames are decoded with [message.Decode]. Malformed frames are
// logged and dropped; the connection stays open. Decoded messages are handed
// to the path's [Handler] from one goroutine per socket, so delivery order
// matches arrival order.
package wsclient
