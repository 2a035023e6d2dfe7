package pulsedeck

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/pulsedeck/internal/api"
	"github.com/jpalmerr/pulsedeck/internal/poller"
)

// Query names accepted by [WithRefreshInterval] and [Dashboard.Invalidate].
const (
	QueryServices      = "services"
	QueryStats         = "stats"
	QueryEvents        = "events"
	QueryServerMetrics = "server_metrics"
	QueryDockerMetrics = "docker_metrics"
	QuerySummary       = "summary"
	QueryLive          = "live"
)

// defaultRefresh holds the refetch interval of every query.
var defaultRefresh = map[string]time.Duration{
	QueryServices:      30 * time.Second,
	QueryStats:         30 * time.Second,
	QueryEvents:        30 * time.Second,
	QueryServerMetrics: 30 * time.Second,
	QueryDockerMetrics: 30 * time.Second,
	QuerySummary:       10 * time.Second,
	QueryLive:          5 * time.Second,
}

// queryOrder fixes the order jobs are registered in.
var queryOrder = []string{
	QueryServices,
	QueryStats,
	QueryEvents,
	QueryServerMetrics,
	QueryDockerMetrics,
	QuerySummary,
	QueryLive,
}

// Queries returns every query name in registration order.
func Queries() []string {
	return append([]string(nil), queryOrder...)
}

// DefaultRefreshInterval returns the built-in refetch interval for query.
func DefaultRefreshInterval(query string) (time.Duration, bool) {
	d, ok := defaultRefresh[query]
	return d, ok
}

// query returns the fetch function for name.
func (d *Dashboard) query(name string) func(context.Context) error {
	switch name {
	case QueryServices:
		return d.fetchServices
	case QueryStats:
		return d.fetchStats
	case QueryEvents:
		return d.fetchEvents
	case QueryServerMetrics:
		return d.fetchServerMetrics
	case QueryDockerMetrics:
		return d.fetchDockerMetrics
	case QuerySummary:
		return d.fetchSummary
	case QueryLive:
		return d.fetchLive
	default:
		return nil
	}
}

func (d *Dashboard) fetchServices(ctx context.Context) error {
	d.services.SetLoading(true)
	defer d.services.SetLoading(false)

	services, err := d.client.ListServices(ctx)
	if err != nil {
		d.services.SetError(api.Detail(err, "Failed to load services"))
		return fmt.Errorf("list services: %w", err)
	}
	d.services.SetServices(services)
	d.services.SetError("")
	return nil
}

func (d *Dashboard) fetchStats(ctx context.Context) error {
	stats, err := d.client.ServiceStats(ctx)
	if err != nil {
		return fmt.Errorf("service stats: %w", err)
	}
	d.services.SetStats(*stats)
	return nil
}

func (d *Dashboard) fetchEvents(ctx context.Context) error {
	d.events.SetLoading(true)
	defer d.events.SetLoading(false)

	events, err := d.client.ListEvents(ctx)
	if err != nil {
		d.events.SetError(api.Detail(err, "Failed to load events"))
		return fmt.Errorf("list events: %w", err)
	}
	d.events.SetEvents(events)
	d.events.SetError("")
	return nil
}

func (d *Dashboard) fetchServerMetrics(ctx context.Context) error {
	samples, err := d.client.ServerMetrics(ctx, d.metricsHours)
	if err != nil {
		d.metrics.SetError(api.Detail(err, "Failed to load server metrics"))
		return fmt.Errorf("server metrics: %w", err)
	}
	d.metrics.SetServerHistory(samples)
	return nil
}

func (d *Dashboard) fetchDockerMetrics(ctx context.Context) error {
	samples, err := d.client.DockerMetrics(ctx, "", d.metricsHours)
	if err != nil {
		d.metrics.SetError(api.Detail(err, "Failed to load container metrics"))
		return fmt.Errorf("docker metrics: %w", err)
	}
	d.metrics.SetDockerHistory("", samples)
	return nil
}

func (d *Dashboard) fetchSummary(ctx context.Context) error {
	summary, err := d.client.MetricsSummary(ctx)
	if err != nil {
		return fmt.Errorf("metrics summary: %w", err)
	}
	d.metrics.SetSummary(*summary)
	return nil
}

func (d *Dashboard) fetchLive(ctx context.Context) error {
	live, err := d.client.LiveMetrics(ctx)
	if err != nil {
		return fmt.Errorf("live metrics: %w", err)
	}
	d.metrics.SetLive(*live)
	return nil
}

// Refresh fetches every query once, in parallel, and stores the results.
// It returns the first error; the other queries still complete.
func (d *Dashboard) Refresh(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(d.maxConcurrency)

	for _, name := range queryOrder {
		fetch := d.query(name)
		g.Go(func() error { return fetch(ctx) })
	}
	return g.Wait()
}

// Invalidate refetches the named queries. While [Dashboard.Start] is
// running the refetch is handed to the refresh scheduler and Invalidate
// returns at once; otherwise the queries are fetched before it returns.
func (d *Dashboard) Invalidate(ctx context.Context, queries ...string) error {
	d.mu.Lock()
	sched := d.scheduler
	d.mu.Unlock()

	for _, name := range queries {
		if d.query(name) == nil {
			return fmt.Errorf("unknown query %q", name)
		}
	}

	var g errgroup.Group
	for _, name := range queries {
		if sched != nil && sched.Trigger(name) {
			continue
		}
		fetch := d.query(name)
		g.Go(func() error { return fetch(ctx) })
	}
	return g.Wait()
}

// jobs builds the refresh scheduler's jobs.
func (d *Dashboard) jobs() []poller.Job {
	jobs := make([]poller.Job, 0, len(queryOrder))
	for _, name := range queryOrder {
		jobs = append(jobs, poller.Job{
			Name:     name,
			Interval: d.refresh[name],
			Timeout:  d.requestTimeout,
			Run:      d.query(name),
		})
	}
	return jobs
}

// DiscoverServices asks the backend to scan for containers, then refetches
// the service list and stats.
func (d *Dashboard) DiscoverServices(ctx context.Context) (*api.DiscoverResult, error) {
	res, err := d.client.DiscoverServices(ctx)
	if err != nil {
		return nil, err
	}
	d.invalidateAfterMutation(ctx, QueryServices, QueryStats)
	return res, nil
}

// StartContainer starts the container behind service id.
func (d *Dashboard) StartContainer(ctx context.Context, id int) (*api.ActionResult, error) {
	res, err := d.client.StartContainer(ctx, id)
	if err != nil {
		return nil, err
	}
	d.invalidateAfterMutation(ctx, QueryServices, QueryStats)
	return res, nil
}

// StopContainer stops the container behind service id.
func (d *Dashboard) StopContainer(ctx context.Context, id int) (*api.ActionResult, error) {
	res, err := d.client.StopContainer(ctx, id)
	if err != nil {
		return nil, err
	}
	d.invalidateAfterMutation(ctx, QueryServices, QueryStats)
	return res, nil
}

// CheckServiceHealth runs a health check for service id now.
func (d *Dashboard) CheckServiceHealth(ctx context.Context, id int) (*api.ActionResult, error) {
	res, err := d.client.CheckServiceHealth(ctx, id)
	if err != nil {
		return nil, err
	}
	d.invalidateAfterMutation(ctx, QueryServices)
	return res, nil
}

// CollectServerMetrics asks the backend to sample the host now.
func (d *Dashboard) CollectServerMetrics(ctx context.Context) error {
	if _, err := d.client.CollectServerMetrics(ctx); err != nil {
		return err
	}
	d.invalidateAfterMutation(ctx, QueryServerMetrics, QuerySummary)
	return nil
}

// CollectDockerMetrics asks the backend to sample every container now.
func (d *Dashboard) CollectDockerMetrics(ctx context.Context) error {
	if _, err := d.client.CollectDockerMetrics(ctx); err != nil {
		return err
	}
	d.invalidateAfterMutation(ctx, QueryDockerMetrics, QuerySummary)
	return nil
}

// invalidateAfterMutation refetches after a successful mutation. A failed
// refetch does not fail the mutation.
func (d *Dashboard) invalidateAfterMutation(ctx context.Context, queries ...string) {
	if err := d.Invalidate(ctx, queries...); err != nil {
		d.logger.Warn("refetch after mutation failed", "queries", queries, "error", err)
	}
}
