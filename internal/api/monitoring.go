package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jpalmerr/pulsedeck/model"
)

// ServerMetrics returns host samples from the last hours hours.
func (c *Client) ServerMetrics(ctx context.Context, hours int) ([]model.ServerMetrics, error) {
	q := url.Values{}
	q.Set("hours", strconv.Itoa(normalizeHours(hours)))

	var metrics []model.ServerMetrics
	if err := c.do(ctx, http.MethodGet, "/monitoring/server_metrics/?"+q.Encode(), nil, &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

// CollectServerMetrics asks the backend to take and store a host sample now.
func (c *Client) CollectServerMetrics(ctx context.Context) (*model.ServerMetrics, error) {
	var m model.ServerMetrics
	if err := c.do(ctx, http.MethodPost, "/monitoring/server_metrics/", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DockerMetrics returns container samples from the last hours hours. An
// empty containerID returns samples for every container.
func (c *Client) DockerMetrics(ctx context.Context, containerID string, hours int) ([]model.DockerMetrics, error) {
	q := url.Values{}
	if containerID != "" {
		q.Set("container_id", containerID)
	}
	q.Set("hours", strconv.Itoa(normalizeHours(hours)))

	var metrics []model.DockerMetrics
	if err := c.do(ctx, http.MethodGet, "/monitoring/docker_metrics/?"+q.Encode(), nil, &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

// CollectDockerMetrics asks the backend to sample every container now.
func (c *Client) CollectDockerMetrics(ctx context.Context) ([]model.DockerMetrics, error) {
	var metrics []model.DockerMetrics
	if err := c.do(ctx, http.MethodPost, "/monitoring/docker_metrics/", nil, &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

// MetricsSummary returns the current-state rollup.
func (c *Client) MetricsSummary(ctx context.Context) (*model.MetricsSummary, error) {
	var s model.MetricsSummary
	if err := c.do(ctx, http.MethodGet, "/monitoring/summary/", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// LiveMetrics returns a fresh host and container snapshot.
func (c *Client) LiveMetrics(ctx context.Context) (*model.LiveMetrics, error) {
	var live model.LiveMetrics
	if err := c.do(ctx, http.MethodGet, "/monitoring/live/", nil, &live); err != nil {
		return nil, err
	}
	return &live, nil
}

func normalizeHours(hours int) int {
	if hours < 1 {
		return 1
	}
	return hours
}
