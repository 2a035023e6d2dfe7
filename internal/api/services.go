package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jpalmerr/pulsedeck/model"
)

// DiscoverResult is the outcome of a service discovery run.
type DiscoverResult struct {
	DiscoveredCount int             `json:"discovered_count"`
	Services        []model.Service `json:"services"`
}

// ActionResult is the acknowledgement of a service action.
type ActionResult struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// ListServices returns every monitored service.
func (c *Client) ListServices(ctx context.Context) ([]model.Service, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/services/", nil, &raw); err != nil {
		return nil, err
	}
	services, err := decodeList[model.Service](raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode services: %w", err)
	}
	return services, nil
}

// ServiceStats returns aggregate service counts.
func (c *Client) ServiceStats(ctx context.Context) (*model.ServiceStats, error) {
	var stats model.ServiceStats
	if err := c.do(ctx, http.MethodGet, "/services/stats/", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// DiscoverServices asks the backend to sync services from running containers.
func (c *Client) DiscoverServices(ctx context.Context) (*DiscoverResult, error) {
	var res DiscoverResult
	if err := c.do(ctx, http.MethodPost, "/services/discover_services/", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// StartContainer starts the container backing service id.
func (c *Client) StartContainer(ctx context.Context, id int) (*ActionResult, error) {
	return c.serviceAction(ctx, id, "start_container")
}

// StopContainer stops the container backing service id.
func (c *Client) StopContainer(ctx context.Context, id int) (*ActionResult, error) {
	return c.serviceAction(ctx, id, "stop_container")
}

// CheckServiceHealth triggers an immediate health check of service id.
func (c *Client) CheckServiceHealth(ctx context.Context, id int) (*ActionResult, error) {
	return c.serviceAction(ctx, id, "check_health")
}

func (c *Client) serviceAction(ctx context.Context, id int, action string) (*ActionResult, error) {
	var res ActionResult
	path := fmt.Sprintf("/services/%d/%s/", id, action)
	if err := c.do(ctx, http.MethodPost, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListEvents returns the event log, newest first.
func (c *Client) ListEvents(ctx context.Context) ([]model.Event, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/events/", nil, &raw); err != nil {
		return nil, err
	}
	events, err := decodeList[model.Event](raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}

// ListAlerts returns triggered alerts.
func (c *Client) ListAlerts(ctx context.Context) ([]model.Alert, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/alerts/", nil, &raw); err != nil {
		return nil, err
	}
	alerts, err := decodeList[model.Alert](raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode alerts: %w", err)
	}
	return alerts, nil
}
