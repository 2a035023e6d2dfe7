// Package store holds the client-side caches of backend state.
//
// The main components are:
//
//   - [ServicesStore]: the service list and aggregate stats
//   - [EventsStore]: the newest-first event stream, bounded to [MaxEvents]
//   - [MetricsStore]: host and container resource samples
//
// Every store is an explicit instance owned by whoever constructs it; there
// are no package-level singletons. Stores are safe for concurrent access and
// publish a [Change] after every mutation. Subscribers receive changes via
// buffered channels with non-blocking sends (slow subscribers miss changes
// rather than block the writer) and re-read the store's snapshot.
package store
