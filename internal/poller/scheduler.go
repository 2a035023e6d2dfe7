package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is one periodically refreshed query.
type Job struct {
	// Name identifies the job for Trigger and in results. Names must be unique.
	Name string

	// Interval is the refetch interval for this job.
	// If 0, the scheduler's global interval is used.
	Interval time.Duration

	// Timeout bounds a single run. If 0, the run is bounded only by the
	// scheduler's lifetime.
	Timeout time.Duration

	// Run performs the fetch and applies its result.
	Run func(ctx context.Context) error
}

// Result holds the outcome of one job run.
type Result struct {
	// Job is the name of the job that ran.
	Job string

	// Triggered is true when the run was requested through Trigger rather
	// than by the interval.
	Triggered bool

	// Duration is how long Run took.
	Duration time.Duration

	// FinishedAt is when Run returned.
	FinishedAt time.Time

	// Error is Run's error, or a panic converted to an error.
	Error error
}

// triggerBuffer bounds pending Trigger requests; extra requests for a job
// already pending are coalesced.
const triggerBuffer = 32

// Scheduler runs refetch jobs on their intervals.
//
// Scheduler implements a worker pool pattern, running due jobs with
// configurable concurrency. Results are emitted to a channel that can be
// consumed by the caller.
//
// The scheduler runs all jobs immediately on start, then uses a
// tick-and-check pattern where it ticks at the GCD of all job intervals
// and runs only jobs that are due. [Scheduler.Trigger] runs a job out of
// band, which is how cached queries are invalidated after a mutation.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	jobs           []Job
	byName         map[string]Job
	interval       time.Duration // global default interval
	maxConcurrency int
	results        chan Result
	triggers       chan string
	logger         *slog.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	deferred  bool
	closeOnce sync.Once
	pending   map[string]bool

	// per-job timing for tick-and-check pattern
	lastRunAt    map[string]time.Time
	baseInterval time.Duration
}

// NewScheduler creates a new refetch [Scheduler].
//
// Parameters:
//   - jobs: Queries to refresh
//   - interval: Default interval for jobs that do not set one
//   - maxConcurrency: Maximum number of jobs running at once
//   - logger: Logger for scheduler events (panic recovery, etc.)
//
// The scheduler must be started with [Scheduler.Start] and stopped with
// [Scheduler.Stop]. Results are available via [Scheduler.Results].
func NewScheduler(jobs []Job, interval time.Duration, maxConcurrency int, logger *slog.Logger) *Scheduler {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]Job, len(jobs))
	for _, j := range jobs {
		byName[j.Name] = j
	}
	return &Scheduler{
		jobs:           jobs,
		byName:         byName,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		results:        make(chan Result, len(jobs)+triggerBuffer),
		triggers:       make(chan string, triggerBuffer),
		logger:         logger,
		pending:        make(map[string]bool),
	}
}

// Results returns a receive-only channel that emits [Result] values.
//
// The channel is closed when the scheduler stops. Consumers should read from
// this channel until it is closed to receive all results.
func (s *Scheduler) Results() <-chan Result {
	return s.results
}

// Jobs returns the names of the scheduled jobs, in registration order.
func (s *Scheduler) Jobs() []string {
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.Name
	}
	return names
}

// calculateBaseInterval determines the tick interval for the scheduler.
// Uses the GCD of all job intervals to ensure timely refreshes.
func (s *Scheduler) calculateBaseInterval() time.Duration {
	if len(s.jobs) == 0 {
		return s.interval
	}

	intervals := make([]time.Duration, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.Interval > 0 {
			intervals = append(intervals, j.Interval)
		} else {
			intervals = append(intervals, s.interval)
		}
	}

	result := intervals[0]
	for _, d := range intervals[1:] {
		result = gcdDuration(result, d)
	}

	// floor at 1 second to prevent CPU thrashing
	if result < time.Second {
		result = time.Second
	}

	return result
}

// gcdDuration calculates the greatest common divisor of two durations.
func gcdDuration(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// DeferFirstRun makes [Scheduler.Start] wait one interval before running
// each job instead of running every job at once. Use it when the caller has
// already fetched everything. It has no effect after Start.
func (s *Scheduler) DeferFirstRun() {
	s.mu.Lock()
	s.deferred = true
	s.mu.Unlock()
}

// Start begins the refresh loop in a background goroutine.
//
// Start is non-blocking and returns immediately. The scheduler will:
//  1. Run all jobs immediately, unless [Scheduler.DeferFirstRun] was called
//  2. Tick at the GCD of all job intervals
//  3. Run only jobs that are due on each tick, plus any triggered jobs
//  4. Continue until [Scheduler.Stop] is called or the context is cancelled
//
// If ctx is nil, context.Background() is used as the parent context.
// Start is idempotent; subsequent calls after the first are no-ops.
// If Stop was called before Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.lastRunAt = make(map[string]time.Time, len(s.jobs))
	s.baseInterval = s.calculateBaseInterval()
	deferred := s.deferred
	if deferred {
		now := time.Now()
		for _, j := range s.jobs {
			s.lastRunAt[j.Name] = now
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx // capture under lock to avoid race
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.results) })

		if !deferred {
			s.runDueJobs(runCtx, true)
		}

		ticker := time.NewTicker(s.baseInterval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.runDueJobs(runCtx, false)
			case name := <-s.triggers:
				s.runTriggered(runCtx, name)
			}
		}
	}()
}

// Stop halts the scheduler and waits for all goroutines to complete.
//
// Stop cancels the scheduler's context and blocks until:
//   - The refresh loop exits
//   - All in-flight jobs complete
//   - The results channel is closed
//
// Stop is idempotent and safe to call multiple times. Calling Stop before
// Start is a safe no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	// ensure channel is closed even if Start() was never called
	s.closeOnce.Do(func() { close(s.results) })
}

// Trigger asks the scheduler to run the named job now, outside its
// interval. It reports whether the request was accepted: false for an
// unknown job or a stopped scheduler. A job already waiting to be triggered
// is not queued twice.
func (s *Scheduler) Trigger(name string) bool {
	if _, ok := s.byName[name]; !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if s.pending[name] {
		return true
	}

	select {
	case s.triggers <- name:
		s.pending[name] = true
		return true
	default:
		s.logger.Warn("refresh trigger dropped, queue full", "job", name)
		return false
	}
}

// runTriggered runs one triggered job and resets its interval clock.
func (s *Scheduler) runTriggered(ctx context.Context, name string) {
	s.mu.Lock()
	delete(s.pending, name)
	s.lastRunAt[name] = time.Now()
	s.mu.Unlock()

	job, ok := s.byName[name]
	if !ok {
		return
	}
	s.runJobs(ctx, []Job{job}, true)
}

// runDueJobs runs only jobs that are due based on their intervals.
// If immediate is true, runs all jobs regardless of timing.
//
// TIMING SEMANTIC: lastRunAt is updated when a run STARTS, not when it
// completes. This prevents concurrent runs of the same job but means
// effective interval = configured interval + run duration for slow jobs.
func (s *Scheduler) runDueJobs(ctx context.Context, immediate bool) {
	now := time.Now()
	due := make([]Job, 0, len(s.jobs))

	s.mu.Lock()
	for _, j := range s.jobs {
		if immediate {
			due = append(due, j)
			s.lastRunAt[j.Name] = now
			continue
		}

		interval := j.Interval
		if interval == 0 {
			interval = s.interval // use global default
		}

		lastRun, exists := s.lastRunAt[j.Name]
		if !exists || now.Sub(lastRun) >= interval {
			due = append(due, j)
			s.lastRunAt[j.Name] = now
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}

	s.runJobs(ctx, due, false)
}

// runJobs runs a subset of jobs concurrently, respecting maxConcurrency.
func (s *Scheduler) runJobs(ctx context.Context, jobs []Job, triggered bool) {
	queue := make(chan Job, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < min(s.maxConcurrency, len(jobs)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range queue {
				result := s.runJob(ctx, j)
				result.Triggered = triggered
				select {
				case s.results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for _, j := range jobs {
		select {
		case queue <- j:
		case <-ctx.Done():
			close(queue)
			wg.Wait()
			return
		}
	}
	close(queue)

	wg.Wait()
}

// runJob runs a single job and returns the result.
func (s *Scheduler) runJob(ctx context.Context, j Job) Result {
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.safeRun(ctx, j)
	finished := time.Now()

	return Result{
		Job:        j.Name,
		Duration:   finished.Sub(start),
		FinishedAt: finished,
		Error:      err,
	}
}

// safeRun calls the job with panic recovery.
// If the job panics, it logs the full stack trace with a correlation ID
// and returns a user-friendly error containing the ID.
func (s *Scheduler) safeRun(ctx context.Context, j Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			stack := debug.Stack()

			// log full context for debugging
			s.logger.Error("refresh job panic",
				"correlation_id", correlationID,
				"job", j.Name,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(stack),
			)

			err = fmt.Errorf("refresh job panic (correlation_id: %s)", correlationID)
		}
	}()
	if j.Run == nil {
		return fmt.Errorf("job %q has no run function", j.Name)
	}
	return j.Run(ctx)
}
