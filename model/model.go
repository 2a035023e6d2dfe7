// Package model defines the value records mirrored from the monitoring
// backend's REST API and WebSocket channels.
//
// Records are plain structs with JSON tags matching the backend's wire
// format. The client treats them as read-mostly cache entries: they are
// replaced wholesale by fetches and pushes, never mutated field by field.
package model

import (
	"encoding/json"
	"time"
)

// User is the authenticated account returned by the auth endpoints.
type User struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	IsSuperuser bool   `json:"is_superuser"`
}

// ServiceStatus is the health state reported for a monitored service.
type ServiceStatus string

const (
	StatusHealthy     ServiceStatus = "healthy"
	StatusUnhealthy   ServiceStatus = "unhealthy"
	StatusUnknown     ServiceStatus = "unknown"
	StatusMaintenance ServiceStatus = "maintenance"
)

// Service is a monitored service (docker container, HTTP or TCP endpoint).
type Service struct {
	ID            int            `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	ServiceType   string         `json:"service_type"`
	Status        ServiceStatus  `json:"status"`
	ContainerName string         `json:"container_name,omitempty"`
	ImageName     string         `json:"image_name,omitempty"`
	EndpointURL   string         `json:"endpoint_url,omitempty"`
	Port          int            `json:"port,omitempty"`
	CheckInterval int            `json:"check_interval,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     *time.Time     `json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `json:"updated_at,omitempty"`
	LastChecked   *time.Time     `json:"last_checked,omitempty"`
	CreatedBy     int            `json:"created_by,omitempty"`
	IsHealthy     bool           `json:"is_healthy"`
}

// ServiceStats aggregates service counts by health and type.
type ServiceStats struct {
	TotalServices     int            `json:"total_services"`
	HealthyServices   int            `json:"healthy_services"`
	UnhealthyServices int            `json:"unhealthy_services"`
	ServiceTypes      map[string]int `json:"service_types"`
}

// Severity grades an [Event].
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event is one entry of the backend's event stream.
//
// REST responses carry the owning service id in Service while pushed
// events carry it in ServiceID; [Event.ServiceRef] returns whichever is set.
type Event struct {
	ID          int            `json:"id"`
	Service     int            `json:"service,omitempty"`
	ServiceID   int            `json:"service_id,omitempty"`
	ServiceName string         `json:"service_name"`
	EventType   string         `json:"event_type"`
	Severity    Severity       `json:"severity"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// ServiceRef returns the id of the service the event belongs to.
func (e Event) ServiceRef() int {
	if e.ServiceID != 0 {
		return e.ServiceID
	}
	return e.Service
}

// ServerMetrics is one host resource sample.
type ServerMetrics struct {
	Timestamp      time.Time `json:"timestamp"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryPercent  float64   `json:"memory_percent"`
	MemoryUsedMB   float64   `json:"memory_used_mb"`
	MemoryTotalMB  float64   `json:"memory_total_mb"`
	DiskPercent    float64   `json:"disk_percent"`
	DiskUsedGB     float64   `json:"disk_used_gb"`
	DiskTotalGB    float64   `json:"disk_total_gb"`
	NetworkRxMB    float64   `json:"network_rx_mb"`
	NetworkTxMB    float64   `json:"network_tx_mb"`
	LoadAverage1m  float64   `json:"load_average_1m"`
	LoadAverage5m  float64   `json:"load_average_5m"`
	LoadAverage15m float64   `json:"load_average_15m"`
}

// DockerMetrics is one container resource sample.
type DockerMetrics struct {
	ContainerID   string    `json:"container_id"`
	ContainerName string    `json:"container_name"`
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryUsageMB float64   `json:"memory_usage_mb"`
	MemoryLimitMB float64   `json:"memory_limit_mb"`
	NetworkRxMB   float64   `json:"network_rx_mb"`
	NetworkTxMB   float64   `json:"network_tx_mb"`
	BlockReadMB   float64   `json:"block_read_mb"`
	BlockWriteMB  float64   `json:"block_write_mb"`
}

// Container is a Docker container as listed by the backend.
// Ports are "host:container" pairs.
type Container struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Image   string            `json:"image"`
	Status  string            `json:"status"`
	Labels  map[string]string `json:"labels,omitempty"`
	Ports   []string          `json:"ports,omitempty"`
	Created int64             `json:"created,omitempty"`
}

// MetricsSummary is the backend's current-state rollup.
type MetricsSummary struct {
	CurrentCPU          float64 `json:"current_cpu"`
	CurrentMemory       float64 `json:"current_memory"`
	CurrentDisk         float64 `json:"current_disk"`
	CurrentLoad         float64 `json:"current_load"`
	TotalContainers     int     `json:"total_containers"`
	RunningContainers   int     `json:"running_containers"`
	HealthyContainers   int     `json:"healthy_containers"`
	ContainersWithPorts int     `json:"containers_with_ports"`
	TotalMemoryUsage    float64 `json:"total_memory_usage"`
	TotalCPUUsage       float64 `json:"total_cpu_usage"`
}

// LiveMetrics is a point-in-time snapshot of host and container usage.
type LiveMetrics struct {
	Server     ServerMetrics   `json:"server"`
	Docker     []DockerMetrics `json:"docker"`
	Containers []Container     `json:"containers"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Alert is a triggered alert rule instance.
type Alert struct {
	ID             int             `json:"id"`
	AlertRule      int             `json:"alert_rule,omitempty"`
	AlertRuleName  string          `json:"alert_rule_name"`
	Service        int             `json:"service,omitempty"`
	ServiceName    string          `json:"service_name"`
	Status         string          `json:"status"`
	Severity       Severity        `json:"severity,omitempty"`
	Title          string          `json:"title"`
	Message        string          `json:"message"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	TriggeredAt    time.Time       `json:"triggered_at"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}
