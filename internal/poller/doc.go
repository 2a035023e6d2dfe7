// Package poller keeps cached backend queries fresh.
//
// Each cached query (service list, stats, events, metrics) is a [Job] with
// its own refetch interval. The [Scheduler] runs every job once at start,
// then ticks at the GCD of the intervals and runs whichever jobs are due,
// through a bounded worker pool. [Scheduler.Trigger] runs a job immediately,
// which is how a successful mutation invalidates the queries it affects.
//
// The main components are:
//
//   - [Scheduler]: Runs jobs on their intervals with a worker pool
//   - [Job]: One refreshable query
//   - [Result]: Outcome of one job run
package poller
